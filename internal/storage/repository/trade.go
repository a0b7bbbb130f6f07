package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
)

// TradeRepository реализует работу с историей сделок (append-only)
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый репозиторий для сделок
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

const tradeColumns = `id, agent_id, action, symbol, quantity, price, total, commission, realized_pnl, reasoning, confidence, success, created_at`

// Save сохраняет новую сделку
func (r *TradeRepository) Save(ctx context.Context, trade *domain.Trade) error {
	query := `
		INSERT INTO trades (agent_id, action, symbol, quantity, price, total, commission, realized_pnl, reasoning, confidence, success)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(
		ctx,
		query,
		trade.AgentID,
		trade.Action,
		trade.Symbol,
		trade.Quantity,
		trade.Price,
		trade.Total,
		trade.Commission,
		trade.RealizedPnL,
		trade.Reasoning,
		trade.Confidence,
		trade.Success,
	).Scan(&trade.ID, &trade.CreatedAt)
}

// SaveTx сохраняет сделку внутри транзакции
func (r *TradeRepository) SaveTx(tx *sql.Tx, trade *domain.Trade) error {
	query := `
		INSERT INTO trades (agent_id, action, symbol, quantity, price, total, commission, realized_pnl, reasoning, confidence, success)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`
	return tx.QueryRow(
		query,
		trade.AgentID,
		trade.Action,
		trade.Symbol,
		trade.Quantity,
		trade.Price,
		trade.Total,
		trade.Commission,
		trade.RealizedPnL,
		trade.Reasoning,
		trade.Confidence,
		trade.Success,
	).Scan(&trade.ID, &trade.CreatedAt)
}

// Recent получает последние N сделок по всем агентам (от новых к старым)
func (r *TradeRepository) Recent(ctx context.Context, limit int) ([]domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		ORDER BY created_at DESC
		LIMIT $1
	`
	return r.queryTrades(ctx, query, limit)
}

// ByAgent получает последние N сделок агента (от новых к старым)
func (r *TradeRepository) ByAgent(ctx context.Context, agentID int64, limit int) ([]domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE agent_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.queryTrades(ctx, query, agentID, limit)
}

// ByAgentSince получает сделки агента начиная с момента времени
func (r *TradeRepository) ByAgentSince(ctx context.Context, agentID int64, since time.Time) ([]domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE agent_id = $1 AND created_at >= $2
		ORDER BY created_at
	`
	return r.queryTrades(ctx, query, agentID, since)
}

// RealizedPnLSince возвращает суммарный реализованный P&L агента
// с момента времени. Сделки без realized_pnl не учитываются.
func (r *TradeRepository) RealizedPnLSince(ctx context.Context, agentID int64, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(realized_pnl), 0)
		FROM trades
		WHERE agent_id = $1 AND created_at >= $2 AND realized_pnl IS NOT NULL
	`
	var pnl float64
	if err := r.db.QueryRowContext(ctx, query, agentID, since).Scan(&pnl); err != nil {
		return 0, fmt.Errorf("failed to sum agent pnl: %w", err)
	}
	return pnl, nil
}

// SystemRealizedPnLSince возвращает суммарный реализованный P&L
// всех агентов с момента времени
func (r *TradeRepository) SystemRealizedPnLSince(ctx context.Context, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(realized_pnl), 0)
		FROM trades
		WHERE created_at >= $1 AND realized_pnl IS NOT NULL
	`
	var pnl float64
	if err := r.db.QueryRowContext(ctx, query, since).Scan(&pnl); err != nil {
		return 0, fmt.Errorf("failed to sum system pnl: %w", err)
	}
	return pnl, nil
}

// Stats возвращает количество прибыльных и убыточных закрытий агента
func (r *TradeRepository) Stats(ctx context.Context, agentID int64) (wins, losses int, err error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE realized_pnl > 0),
			COUNT(*) FILTER (WHERE realized_pnl < 0)
		FROM trades
		WHERE agent_id = $1 AND realized_pnl IS NOT NULL
	`
	if err := r.db.QueryRowContext(ctx, query, agentID).Scan(&wins, &losses); err != nil {
		return 0, 0, fmt.Errorf("failed to count trade stats: %w", err)
	}
	return wins, losses, nil
}

// queryTrades выполняет запрос и возвращает список сделок
func (r *TradeRepository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		err := rows.Scan(
			&t.ID,
			&t.AgentID,
			&t.Action,
			&t.Symbol,
			&t.Quantity,
			&t.Price,
			&t.Total,
			&t.Commission,
			&t.RealizedPnL,
			&t.Reasoning,
			&t.Confidence,
			&t.Success,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
