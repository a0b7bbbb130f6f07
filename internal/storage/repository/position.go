package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillm/agent-arena/internal/domain"
)

// PositionRepository реализует работу с открытыми позициями
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository создает новый репозиторий для позиций
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

const positionColumns = `id, agent_id, symbol, side, quantity, entry_price, current_price, target_price, stop_loss, invalidation, opened_at, updated_at`

// GetByAgent получает все открытые позиции агента
func (r *PositionRepository) GetByAgent(ctx context.Context, agentID int64) ([]domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE agent_id = $1
		ORDER BY symbol
	`
	return r.queryPositions(ctx, query, agentID)
}

// GetAll получает все открытые позиции всех агентов
func (r *PositionRepository) GetAll(ctx context.Context) ([]domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		ORDER BY agent_id, symbol
	`
	return r.queryPositions(ctx, query)
}

// UpdatePrice обновляет текущую цену позиции (mark-to-market)
func (r *PositionRepository) UpdatePrice(ctx context.Context, positionID int64, price float64) error {
	query := `
		UPDATE positions
		SET current_price = $2, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, positionID, price)
	if err != nil {
		return fmt.Errorf("failed to update position price: %w", err)
	}
	return nil
}

// UpsertTx создает или обновляет позицию внутри транзакции.
// Уникальность по (agent_id, symbol, side): докупка сливается
// в существующую позицию, а не создает вторую.
func (r *PositionRepository) UpsertTx(tx *sql.Tx, position *domain.Position) error {
	query := `
		INSERT INTO positions (agent_id, symbol, side, quantity, entry_price, current_price, target_price, stop_loss, invalidation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (agent_id, symbol, side) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			entry_price = EXCLUDED.entry_price,
			current_price = EXCLUDED.current_price,
			target_price = EXCLUDED.target_price,
			stop_loss = EXCLUDED.stop_loss,
			invalidation = EXCLUDED.invalidation,
			updated_at = NOW()
		RETURNING id, opened_at, updated_at
	`
	return tx.QueryRow(
		query,
		position.AgentID,
		position.Symbol,
		position.Side,
		position.Quantity,
		position.EntryPrice,
		position.CurrentPrice,
		position.TargetPrice,
		position.StopLoss,
		position.Invalidation,
	).Scan(&position.ID, &position.OpenedAt, &position.UpdatedAt)
}

// DeleteTx удаляет позицию внутри транзакции (полное закрытие)
func (r *PositionRepository) DeleteTx(tx *sql.Tx, positionID int64) error {
	result, err := tx.Exec(`DELETE FROM positions WHERE id = $1`, positionID)
	if err != nil {
		return fmt.Errorf("failed to delete position %d: %w", positionID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// queryPositions выполняет запрос и возвращает список позиций
func (r *PositionRepository) queryPositions(ctx context.Context, query string, args ...interface{}) ([]domain.Position, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		err := rows.Scan(
			&p.ID,
			&p.AgentID,
			&p.Symbol,
			&p.Side,
			&p.Quantity,
			&p.EntryPrice,
			&p.CurrentPrice,
			&p.TargetPrice,
			&p.StopLoss,
			&p.Invalidation,
			&p.OpenedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
