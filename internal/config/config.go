package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит все настройки приложения
type Config struct {
	Database  DatabaseConfig
	AI        AIConfig
	Telegram  TelegramConfig
	Market    MarketConfig
	Execution ExecutionConfig
	Engine    EngineConfig
	Admin     AdminConfig
	LogLevel  string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AIConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

type TelegramConfig struct {
	BotToken string
	ChatID   int64
	AdminIDs string
	Enabled  bool
}

// MarketConfig настройки источника рыночных данных
type MarketConfig struct {
	Symbols           []string
	NewsAPIKey        string // пустой ключ => новости отключены
	NewsBaseURL       string
	RequestsPerSecond float64
	BigMoverPercent   float64 // порог дневного изменения для запроса новостей
}

// ExecutionConfig параметры реалистичности симуляции исполнения
type ExecutionConfig struct {
	MaxSlippagePercent float64
	MaxDelayMs         int
	MinFillRatio       float64
	CommissionPercent  float64
	MinCommission      float64
}

// EngineConfig настройки торгового цикла
type EngineConfig struct {
	SafetyProfilePath string
	SafetyProfile     string
	AgentsPath        string
	MarketOpenHour    int
	MarketCloseHour   int
	Timezone          string
	WeekdaysOnly      bool
	CycleInterval     time.Duration
}

type AdminConfig struct {
	Port        int
	ResetSecret string
}

// Load загружает конфигурацию из .env файла и переменных окружения
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpenConns, err := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	maxIdleConns, err := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}

	connMaxLifetime, err := time.ParseDuration(getEnv("DB_CONN_MAX_LIFETIME", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}

	aiTimeout, err := time.ParseDuration(getEnv("AI_TIMEOUT", "90s"))
	if err != nil {
		return nil, fmt.Errorf("invalid AI_TIMEOUT: %w", err)
	}

	chatID, err := strconv.ParseInt(getEnv("TELEGRAM_CHAT_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
	}

	rps, err := strconv.ParseFloat(getEnv("MARKET_REQUESTS_PER_SECOND", "4"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MARKET_REQUESTS_PER_SECOND: %w", err)
	}

	bigMover, err := strconv.ParseFloat(getEnv("BIG_MOVER_PERCENT", "3"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid BIG_MOVER_PERCENT: %w", err)
	}

	maxSlippage, err := strconv.ParseFloat(getEnv("MAX_SLIPPAGE_PERCENT", "0.5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_SLIPPAGE_PERCENT: %w", err)
	}

	maxDelayMs, err := strconv.Atoi(getEnv("MAX_EXECUTION_DELAY_MS", "1500"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_EXECUTION_DELAY_MS: %w", err)
	}

	minFillRatio, err := strconv.ParseFloat(getEnv("MIN_FILL_RATIO", "0.85"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_FILL_RATIO: %w", err)
	}

	commissionPct, err := strconv.ParseFloat(getEnv("COMMISSION_PERCENT", "0.05"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid COMMISSION_PERCENT: %w", err)
	}

	minCommission, err := strconv.ParseFloat(getEnv("MIN_COMMISSION", "1"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_COMMISSION: %w", err)
	}

	openHour, err := strconv.Atoi(getEnv("MARKET_OPEN_HOUR", "9"))
	if err != nil {
		return nil, fmt.Errorf("invalid MARKET_OPEN_HOUR: %w", err)
	}

	closeHour, err := strconv.Atoi(getEnv("MARKET_CLOSE_HOUR", "16"))
	if err != nil {
		return nil, fmt.Errorf("invalid MARKET_CLOSE_HOUR: %w", err)
	}

	weekdaysOnly, err := strconv.ParseBool(getEnv("MARKET_WEEKDAYS_ONLY", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid MARKET_WEEKDAYS_ONLY: %w", err)
	}

	cycleInterval, err := time.ParseDuration(getEnv("CYCLE_INTERVAL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid CYCLE_INTERVAL: %w", err)
	}

	apiPort, err := strconv.Atoi(getEnv("API_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid API_PORT: %w", err)
	}

	config := &Config{
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            dbPort,
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "agent_arena"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    maxOpenConns,
			MaxIdleConns:    maxIdleConns,
			ConnMaxLifetime: connMaxLifetime,
		},
		AI: AIConfig{
			Provider: getEnv("AI_PROVIDER", "openai"),
			APIKey:   getEnv("AI_API_KEY", ""),
			BaseURL:  getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
			Timeout:  aiTimeout,
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   chatID,
			AdminIDs: getEnv("TELEGRAM_ADMIN_IDS", ""),
			Enabled:  getEnv("TELEGRAM_BOT_TOKEN", "") != "",
		},
		Market: MarketConfig{
			Symbols:           splitSymbols(getEnv("SYMBOL_UNIVERSE", "AAPL,MSFT,GOOGL,AMZN,NVDA,META,TSLA,JPM,V,UNH")),
			NewsAPIKey:        getEnv("NEWS_API_KEY", ""),
			NewsBaseURL:       getEnv("NEWS_BASE_URL", "https://finnhub.io/api/v1"),
			RequestsPerSecond: rps,
			BigMoverPercent:   bigMover,
		},
		Execution: ExecutionConfig{
			MaxSlippagePercent: maxSlippage,
			MaxDelayMs:         maxDelayMs,
			MinFillRatio:       minFillRatio,
			CommissionPercent:  commissionPct,
			MinCommission:      minCommission,
		},
		Engine: EngineConfig{
			SafetyProfilePath: getEnv("SAFETY_PROFILE_PATH", "config/safety.yaml"),
			SafetyProfile:     getEnv("SAFETY_PROFILE", "moderate"),
			AgentsPath:        getEnv("AGENTS_PATH", "config/agents.yaml"),
			MarketOpenHour:    openHour,
			MarketCloseHour:   closeHour,
			Timezone:          getEnv("MARKET_TIMEZONE", "America/New_York"),
			WeekdaysOnly:      weekdaysOnly,
			CycleInterval:     cycleInterval,
		},
		Admin: AdminConfig{
			Port:        apiPort,
			ResetSecret: getEnv("ADMIN_RESET_SECRET", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate проверяет обязательные поля конфигурации
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if len(c.Market.Symbols) == 0 {
		return fmt.Errorf("SYMBOL_UNIVERSE must contain at least one symbol")
	}
	if c.Execution.MinFillRatio <= 0 || c.Execution.MinFillRatio > 1 {
		return fmt.Errorf("MIN_FILL_RATIO must be in (0, 1]")
	}
	if c.Engine.MarketOpenHour >= c.Engine.MarketCloseHour {
		return fmt.Errorf("MARKET_OPEN_HOUR must be before MARKET_CLOSE_HOUR")
	}
	return nil
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.ToUpper(strings.TrimSpace(p))
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
