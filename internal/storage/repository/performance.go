package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
)

// PerformanceRepository реализует работу с историей стоимости счетов
type PerformanceRepository struct {
	db *sql.DB
}

// NewPerformanceRepository создает новый репозиторий для истории производительности
func NewPerformanceRepository(db *sql.DB) *PerformanceRepository {
	return &PerformanceRepository{db: db}
}

// Save сохраняет точку временного ряда
func (r *PerformanceRepository) Save(ctx context.Context, point *domain.PerformancePoint) error {
	query := `
		INSERT INTO performance_points (agent_id, account_value)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query, point.AgentID, point.AccountValue).
		Scan(&point.ID, &point.CreatedAt)
}

// Series получает временной ряд агента начиная с момента времени
// (от старых к новым)
func (r *PerformanceRepository) Series(ctx context.Context, agentID int64, since time.Time) ([]domain.PerformancePoint, error) {
	query := `
		SELECT id, agent_id, account_value, created_at
		FROM performance_points
		WHERE agent_id = $1 AND created_at >= $2
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, agentID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance series: %w", err)
	}
	defer rows.Close()

	var points []domain.PerformancePoint
	for rows.Next() {
		var p domain.PerformancePoint
		if err := rows.Scan(&p.ID, &p.AgentID, &p.AccountValue, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan performance point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
