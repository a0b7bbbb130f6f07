package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kirillm/agent-arena/internal/domain"
)

// StockPriceRepository реализует работу с историей цен
type StockPriceRepository struct {
	db *sql.DB
}

// NewStockPriceRepository создает новый репозиторий для истории цен
func NewStockPriceRepository(db *sql.DB) *StockPriceRepository {
	return &StockPriceRepository{db: db}
}

// SaveBatch сохраняет пачку тиков одним insert
func (r *StockPriceRepository) SaveBatch(ctx context.Context, prices []domain.StockPrice) error {
	if len(prices) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn("stock_prices", "symbol", "price", "volume", "created_at"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}

	now := time.Now()
	for _, p := range prices {
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.Exec(p.Symbol, p.Price, p.Volume, createdAt); err != nil {
			stmt.Close()
			return fmt.Errorf("copy stock price: %w", err)
		}
	}

	if _, err := stmt.Exec(); err != nil {
		stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}

	return tx.Commit()
}

// HistorySince получает историю цен по символам начиная с момента
// времени, сгруппированную по символу (от старых к новым)
func (r *StockPriceRepository) HistorySince(ctx context.Context, symbols []string, since time.Time) (map[string][]domain.StockPrice, error) {
	query := `
		SELECT id, symbol, price, volume, created_at
		FROM stock_prices
		WHERE symbol = ANY($1) AND created_at >= $2
		ORDER BY symbol, created_at
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(symbols), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	history := make(map[string][]domain.StockPrice, len(symbols))
	for rows.Next() {
		var p domain.StockPrice
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Price, &p.Volume, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock price: %w", err)
		}
		history[p.Symbol] = append(history[p.Symbol], p)
	}
	return history, rows.Err()
}

// PruneOlderThan удаляет тики старше указанного момента.
// Возвращает количество удаленных строк.
func (r *StockPriceRepository) PruneOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM stock_prices WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune stock prices: %w", err)
	}
	return result.RowsAffected()
}
