package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillm/agent-arena/internal/domain"
)

// AgentRepository реализует работу с агентами
type AgentRepository struct {
	db *sql.DB
}

// NewAgentRepository создает новый репозиторий для агентов
func NewAgentRepository(db *sql.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// Create сохраняет нового агента
func (r *AgentRepository) Create(ctx context.Context, agent *domain.Agent) error {
	query := `
		INSERT INTO agents (name, model_label, cash_balance, account_value, starting_value, broker_tag)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(
		ctx,
		query,
		agent.Name,
		agent.ModelLabel,
		agent.CashBalance,
		agent.AccountValue,
		agent.StartingValue,
		agent.BrokerTag,
	).Scan(&agent.ID, &agent.CreatedAt, &agent.UpdatedAt)
}

// Get получает агента по id
func (r *AgentRepository) Get(ctx context.Context, id int64) (*domain.Agent, error) {
	query := `
		SELECT id, name, model_label, cash_balance, account_value, starting_value, broker_tag, created_at, updated_at
		FROM agents
		WHERE id = $1
	`
	agent := &domain.Agent{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&agent.ID,
		&agent.Name,
		&agent.ModelLabel,
		&agent.CashBalance,
		&agent.AccountValue,
		&agent.StartingValue,
		&agent.BrokerTag,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent %d: %w", id, err)
	}
	return agent, nil
}

// GetByName получает агента по имени
func (r *AgentRepository) GetByName(ctx context.Context, name string) (*domain.Agent, error) {
	query := `
		SELECT id, name, model_label, cash_balance, account_value, starting_value, broker_tag, created_at, updated_at
		FROM agents
		WHERE name = $1
	`
	agent := &domain.Agent{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&agent.ID,
		&agent.Name,
		&agent.ModelLabel,
		&agent.CashBalance,
		&agent.AccountValue,
		&agent.StartingValue,
		&agent.BrokerTag,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent %s: %w", name, err)
	}
	return agent, nil
}

// GetAll получает всех агентов в порядке создания
func (r *AgentRepository) GetAll(ctx context.Context) ([]domain.Agent, error) {
	query := `
		SELECT id, name, model_label, cash_balance, account_value, starting_value, broker_tag, created_at, updated_at
		FROM agents
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		var agent domain.Agent
		err := rows.Scan(
			&agent.ID,
			&agent.Name,
			&agent.ModelLabel,
			&agent.CashBalance,
			&agent.AccountValue,
			&agent.StartingValue,
			&agent.BrokerTag,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// UpdateValue обновляет баланс и стоимость счета агента
func (r *AgentRepository) UpdateValue(ctx context.Context, agentID int64, cashBalance, accountValue float64) error {
	query := `
		UPDATE agents
		SET cash_balance = $2, account_value = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, agentID, cashBalance, accountValue)
	if err != nil {
		return fmt.Errorf("failed to update agent %d: %w", agentID, err)
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

// UpdateValueTx обновляет баланс агента внутри транзакции
func (r *AgentRepository) UpdateValueTx(tx *sql.Tx, agentID int64, cashBalance, accountValue float64) error {
	query := `
		UPDATE agents
		SET cash_balance = $2, account_value = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := tx.Exec(query, agentID, cashBalance, accountValue)
	if err != nil {
		return fmt.Errorf("failed to update agent %d: %w", agentID, err)
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
