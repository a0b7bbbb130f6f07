package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/storage/repository"
)

// PostgresStorage является фасадом для работы с PostgreSQL через репозитории
type PostgresStorage struct {
	db          *sql.DB
	agents      *repository.AgentRepository
	positions   *repository.PositionRepository
	trades      *repository.TradeRepository
	decisions   *repository.DecisionRepository
	performance *repository.PerformanceRepository
	stockPrices *repository.StockPriceRepository
}

func NewPostgresStorage(host string, port int, user, password, dbname, sslmode string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*PostgresStorage, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	storage := &PostgresStorage{
		db:          db,
		agents:      repository.NewAgentRepository(db),
		positions:   repository.NewPositionRepository(db),
		trades:      repository.NewTradeRepository(db),
		decisions:   repository.NewDecisionRepository(db),
		performance: repository.NewPerformanceRepository(db),
		stockPrices: repository.NewStockPriceRepository(db),
	}

	if err := storage.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id SERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			model_label VARCHAR(100) NOT NULL,
			cash_balance DECIMAL(20, 8) NOT NULL,
			account_value DECIMAL(20, 8) NOT NULL,
			starting_value DECIMAL(20, 8) NOT NULL,
			broker_tag VARCHAR(50) NOT NULL DEFAULT 'simulated',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id SERIAL PRIMARY KEY,
			agent_id BIGINT NOT NULL REFERENCES agents(id),
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL CHECK (quantity > 0),
			entry_price DECIMAL(20, 8) NOT NULL,
			current_price DECIMAL(20, 8) NOT NULL,
			target_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			stop_loss DECIMAL(20, 8) NOT NULL DEFAULT 0,
			invalidation TEXT NOT NULL DEFAULT '',
			opened_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (agent_id, symbol, side)
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			agent_id BIGINT NOT NULL REFERENCES agents(id),
			action VARCHAR(20) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			total DECIMAL(20, 8) NOT NULL,
			commission DECIMAL(20, 8) NOT NULL DEFAULT 0,
			realized_pnl DECIMAL(20, 8),
			reasoning TEXT NOT NULL DEFAULT '',
			confidence DECIMAL(4, 3) NOT NULL DEFAULT 0,
			success BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id BIGSERIAL PRIMARY KEY,
			agent_id BIGINT NOT NULL REFERENCES agents(id),
			action VARCHAR(20) NOT NULL,
			symbol VARCHAR(20) NOT NULL DEFAULT '',
			quantity DECIMAL(20, 8) NOT NULL DEFAULT 0,
			confidence DECIMAL(4, 3) NOT NULL DEFAULT 0,
			reasoning TEXT NOT NULL DEFAULT '',
			risk_assessment TEXT NOT NULL DEFAULT '',
			target_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			stop_loss DECIMAL(20, 8) NOT NULL DEFAULT 0,
			executed BOOLEAN NOT NULL DEFAULT false,
			reject_reason TEXT NOT NULL DEFAULT '',
			market_snapshot JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS performance_points (
			id BIGSERIAL PRIMARY KEY,
			agent_id BIGINT NOT NULL REFERENCES agents(id),
			account_value DECIMAL(20, 8) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS stock_prices (
			id BIGSERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			volume BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		// Индексы
		`CREATE INDEX IF NOT EXISTS idx_positions_agent_id ON positions(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_agent_id ON trades(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_created_at ON trades(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_agent_id ON decisions(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_performance_agent_id ON performance_points(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_prices_symbol_created ON stock_prices(symbol, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// ==================== AGENTS ====================

func (s *PostgresStorage) Agents(ctx context.Context) ([]domain.Agent, error) {
	return s.agents.GetAll(ctx)
}

func (s *PostgresStorage) Agent(ctx context.Context, id int64) (*domain.Agent, error) {
	return s.agents.Get(ctx, id)
}

func (s *PostgresStorage) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	return s.agents.Create(ctx, agent)
}

func (s *PostgresStorage) AgentByName(ctx context.Context, name string) (*domain.Agent, error) {
	return s.agents.GetByName(ctx, name)
}

func (s *PostgresStorage) UpdateAgentValue(ctx context.Context, agentID int64, cashBalance, accountValue float64) error {
	return s.agents.UpdateValue(ctx, agentID, cashBalance, accountValue)
}

// ==================== POSITIONS ====================

func (s *PostgresStorage) PositionsByAgent(ctx context.Context, agentID int64) ([]domain.Position, error) {
	return s.positions.GetByAgent(ctx, agentID)
}

func (s *PostgresStorage) AllPositions(ctx context.Context) ([]domain.Position, error) {
	return s.positions.GetAll(ctx)
}

func (s *PostgresStorage) UpdatePositionPrice(ctx context.Context, positionID int64, price float64) error {
	return s.positions.UpdatePrice(ctx, positionID, price)
}

// ==================== TRADES ====================

func (s *PostgresStorage) SaveTrade(ctx context.Context, trade *domain.Trade) error {
	return s.trades.Save(ctx, trade)
}

func (s *PostgresStorage) RecentTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	return s.trades.Recent(ctx, limit)
}

func (s *PostgresStorage) TradesByAgent(ctx context.Context, agentID int64, limit int) ([]domain.Trade, error) {
	return s.trades.ByAgent(ctx, agentID, limit)
}

func (s *PostgresStorage) AgentTradesSince(ctx context.Context, agentID int64, since time.Time) ([]domain.Trade, error) {
	return s.trades.ByAgentSince(ctx, agentID, since)
}

func (s *PostgresStorage) AgentRealizedPnLSince(ctx context.Context, agentID int64, since time.Time) (float64, error) {
	return s.trades.RealizedPnLSince(ctx, agentID, since)
}

func (s *PostgresStorage) SystemRealizedPnLSince(ctx context.Context, since time.Time) (float64, error) {
	return s.trades.SystemRealizedPnLSince(ctx, since)
}

func (s *PostgresStorage) AgentStats(ctx context.Context, agentID int64) (wins, losses int, err error) {
	return s.trades.Stats(ctx, agentID)
}

// ==================== DECISIONS ====================

func (s *PostgresStorage) SaveDecision(ctx context.Context, decision *domain.Decision) error {
	return s.decisions.Save(ctx, decision)
}

func (s *PostgresStorage) DecisionsByAgent(ctx context.Context, agentID int64, limit int) ([]domain.Decision, error) {
	return s.decisions.ByAgent(ctx, agentID, limit)
}

// ==================== PERFORMANCE ====================

func (s *PostgresStorage) SavePerformancePoint(ctx context.Context, point *domain.PerformancePoint) error {
	return s.performance.Save(ctx, point)
}

func (s *PostgresStorage) PerformanceSeries(ctx context.Context, agentID int64, since time.Time) ([]domain.PerformancePoint, error) {
	return s.performance.Series(ctx, agentID, since)
}

// ==================== STOCK PRICES ====================

func (s *PostgresStorage) SaveStockPrices(ctx context.Context, prices []domain.StockPrice) error {
	return s.stockPrices.SaveBatch(ctx, prices)
}

func (s *PostgresStorage) PriceHistorySince(ctx context.Context, symbols []string, since time.Time) (map[string][]domain.StockPrice, error) {
	return s.stockPrices.HistorySince(ctx, symbols, since)
}

func (s *PostgresStorage) PruneStockPrices(ctx context.Context, olderThan time.Time) (int64, error) {
	return s.stockPrices.PruneOlderThan(ctx, olderThan)
}

// ==================== ATOMIC TRADE APPLICATION ====================

// TradeApplication атомарная мутация портфеля после исполнения:
// баланс агента и затронутая позиция меняются в одной транзакции —
// либо оба изменения, либо ни одного.
type TradeApplication struct {
	AgentID        int64
	CashBalance    float64
	AccountValue   float64
	Position       *domain.Position // nil => позиция не создается/не меняется
	DeletePosition int64            // id позиции для удаления, 0 => нет
	Trade          *domain.Trade
}

// ApplyTrade применяет исполнение в одной транзакции
func (s *PostgresStorage) ApplyTrade(ctx context.Context, app *TradeApplication) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.agents.UpdateValueTx(tx, app.AgentID, app.CashBalance, app.AccountValue); err != nil {
		return fmt.Errorf("update agent: %w", err)
	}

	if app.DeletePosition != 0 {
		if err := s.positions.DeleteTx(tx, app.DeletePosition); err != nil {
			return fmt.Errorf("delete position: %w", err)
		}
	}

	if app.Position != nil {
		if err := s.positions.UpsertTx(tx, app.Position); err != nil {
			return fmt.Errorf("upsert position: %w", err)
		}
	}

	if app.Trade != nil {
		if err := s.trades.SaveTx(tx, app.Trade); err != nil {
			return fmt.Errorf("save trade: %w", err)
		}
	}

	return tx.Commit()
}

// ==================== ADMIN ====================

// Reset уничтожает всю торговую историю и возвращает агентов к
// стартовым балансам. Только для операционного восстановления.
func (s *PostgresStorage) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	truncates := []string{
		`DELETE FROM positions`,
		`DELETE FROM trades`,
		`DELETE FROM decisions`,
		`DELETE FROM performance_points`,
		`DELETE FROM stock_prices`,
		`UPDATE agents SET cash_balance = starting_value, account_value = starting_value, updated_at = NOW()`,
	}
	for _, q := range truncates {
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("reset failed: %w", err)
		}
	}

	return tx.Commit()
}

// Close закрывает соединение с базой данных
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// DB возвращает указатель на *sql.DB
func (s *PostgresStorage) DB() *sql.DB {
	return s.db
}
