package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillm/agent-arena/internal/domain"
)

// DecisionRepository реализует работу с решениями AI (append-only)
type DecisionRepository struct {
	db *sql.DB
}

// NewDecisionRepository создает новый репозиторий для решений
func NewDecisionRepository(db *sql.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// Save сохраняет решение агента за цикл. Записывается каждое решение,
// включая HOLD и отклоненные safety-гейтом.
func (r *DecisionRepository) Save(ctx context.Context, decision *domain.Decision) error {
	query := `
		INSERT INTO decisions (agent_id, action, symbol, quantity, confidence, reasoning, risk_assessment, target_price, stop_loss, executed, reject_reason, market_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`
	snapshot := sql.NullString{String: decision.MarketSnapshot, Valid: decision.MarketSnapshot != ""}
	return r.db.QueryRowContext(
		ctx,
		query,
		decision.AgentID,
		decision.Action,
		decision.Symbol,
		decision.Quantity,
		decision.Confidence,
		decision.Reasoning,
		decision.RiskAssessment,
		decision.TargetPrice,
		decision.StopLoss,
		decision.Executed,
		decision.RejectReason,
		snapshot,
	).Scan(&decision.ID, &decision.CreatedAt)
}

// ByAgent получает последние N решений агента (от новых к старым)
func (r *DecisionRepository) ByAgent(ctx context.Context, agentID int64, limit int) ([]domain.Decision, error) {
	query := `
		SELECT id, agent_id, action, symbol, quantity, confidence, reasoning, risk_assessment,
		       target_price, stop_loss, executed, reject_reason, COALESCE(market_snapshot::text, ''), created_at
		FROM decisions
		WHERE agent_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []domain.Decision
	for rows.Next() {
		var d domain.Decision
		err := rows.Scan(
			&d.ID,
			&d.AgentID,
			&d.Action,
			&d.Symbol,
			&d.Quantity,
			&d.Confidence,
			&d.Reasoning,
			&d.RiskAssessment,
			&d.TargetPrice,
			&d.StopLoss,
			&d.Executed,
			&d.RejectReason,
			&d.MarketSnapshot,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
