package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillm/agent-arena/internal/ai"
	"github.com/kirillm/agent-arena/internal/api"
	"github.com/kirillm/agent-arena/internal/config"
	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/engine"
	"github.com/kirillm/agent-arena/internal/events"
	"github.com/kirillm/agent-arena/internal/execution"
	"github.com/kirillm/agent-arena/internal/exits"
	"github.com/kirillm/agent-arena/internal/manager"
	"github.com/kirillm/agent-arena/internal/marketdata"
	"github.com/kirillm/agent-arena/internal/safety"
	"github.com/kirillm/agent-arena/internal/storage"
	"github.com/kirillm/agent-arena/internal/telegram"
	"github.com/kirillm/agent-arena/pkg/utils"
)

func main() {
	root := &cobra.Command{
		Use:   "arena",
		Short: "AI stock trading arena: autonomous agents competing on simulated execution",
	}

	root.AddCommand(serveCmd(), cycleCmd(), seedCmd(), resetCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app собранное приложение со всеми зависимостями
type app struct {
	cfg     *config.Config
	logger  *utils.Logger
	storage *storage.PostgresStorage
	halt    *execution.HaltSwitch
	engine  *engine.Engine
	bot     *telegram.Bot // nil если telegram выключен
}

// buildApp загружает конфиг и собирает граф зависимостей
func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)

	st, err := storage.NewPostgresStorage(
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password,
		cfg.Database.DBName, cfg.Database.SSLMode,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime,
	)
	if err != nil {
		return nil, fmt.Errorf("connect storage: %w", err)
	}

	limits, err := safety.LoadLimits(cfg.Engine.SafetyProfilePath, cfg.Engine.SafetyProfile)
	if err != nil {
		logger.Warn("Failed to load safety profile: %v, using defaults", err)
		limits = safety.DefaultLimits()
	}
	logger.Info("🛡 Safety profile: %s", limits.ProfileName)

	halt := execution.NewHaltSwitch()
	broker := execution.NewSimulatedBroker(cfg.Execution)

	synthetic := marketdata.NewSyntheticProvider()
	live := marketdata.NewLiveProvider(cfg.Market.RequestsPerSecond, logger)
	provider := marketdata.NewFailoverProvider(live, synthetic, logger)

	var news marketdata.NewsFetcher
	if cfg.Market.NewsAPIKey != "" {
		news = marketdata.NewFinnhubNewsFetcher(cfg.Market.NewsBaseURL, cfg.Market.NewsAPIKey, cfg.Market.RequestsPerSecond, logger)
	}

	chat := ai.NewClient(cfg.AI.Provider, cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Timeout)
	decisions := ai.NewDecisionClient(chat)

	observers := events.NewHub(events.NewLogObserver(logger))

	validator := safety.NewValidator(limits, st, observers, logger)

	eng, err := engine.NewEngine(cfg.Engine, cfg.Market, limits, engine.Deps{
		Store:     st,
		Provider:  provider,
		News:      news,
		Decisions: decisions,
		Validator: validator,
		Broker:    broker,
		Halt:      halt,
		Exits:     exits.NewManager(logger),
		Observer:  observers,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, storage: st, halt: halt, engine: eng}

	if cfg.Telegram.Enabled {
		bot, err := telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.AdminIDs, st, eng, halt, logger)
		if err != nil {
			logger.Error("Telegram bot disabled: %v", err)
		} else {
			a.bot = bot
			observers.Register(telegram.NewAlerter(bot))
		}
	}

	return a, nil
}

func (a *app) close() {
	if err := a.storage.Close(); err != nil {
		a.logger.Error("Failed to close storage: %v", err)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the arena: scheduler, HTTP API and telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.seedAgents(ctx); err != nil {
				return err
			}

			if a.bot != nil {
				go a.bot.Start(ctx)
			}

			server := api.NewServer(a.logger, a.storage, a.engine, a.halt, a.cfg.Admin)
			go func() {
				if err := server.Start(); err != nil {
					a.logger.Error("HTTP server stopped: %v", err)
				}
			}()

			a.runScheduler(ctx)
			a.logger.Info("Shutting down")
			return nil
		},
	}
}

// runScheduler гоняет циклы по таймеру до отмены контекста
func (a *app) runScheduler(ctx context.Context) {
	interval := a.cfg.Engine.CycleInterval
	a.logger.Info("⏰ Scheduler started, cycle every %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := a.engine.RunCycle(ctx, false)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrMarketClosed):
				// вне торговых часов, не ошибка
			case errors.Is(err, domain.ErrCycleInProgress):
				a.logger.Warn("Previous cycle still running, skipping tick")
			default:
				a.logger.Error("Cycle failed: %v", err)
			}
		}
	}
}

func (a *app) seedAgents(ctx context.Context) error {
	specs, err := manager.LoadRoster(a.cfg.Engine.AgentsPath)
	if err != nil {
		return fmt.Errorf("load agents roster: %w", err)
	}

	am := manager.NewAgentManager(a.storage, a.logger)
	created, err := am.Seed(ctx, specs)
	if err != nil {
		return fmt.Errorf("seed agents: %w", err)
	}
	if created > 0 {
		a.logger.Info("Seeded %d new agents", created)
	}
	return nil
}

func cycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run a single trading cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			return a.engine.RunCycle(cmd.Context(), true)
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create agents from the roster file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			return a.seedAgents(cmd.Context())
		},
	}
}

func resetCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe all trading history and restore starting balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing to reset without --yes")
			}

			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.storage.Reset(cmd.Context()); err != nil {
				return err
			}
			a.logger.Warn("🧨 Arena reset performed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the destructive reset")
	return cmd
}
