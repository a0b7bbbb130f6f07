package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/execution"
	"github.com/kirillm/agent-arena/internal/metrics"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// частота команд на пользователя
const maxCommandsPerMinute = 20

// ArenaStore читающий доступ бота к состоянию арены
type ArenaStore interface {
	Agents(ctx context.Context) ([]domain.Agent, error)
	PositionsByAgent(ctx context.Context, agentID int64) ([]domain.Position, error)
	RecentTrades(ctx context.Context, limit int) ([]domain.Trade, error)
	PerformanceSeries(ctx context.Context, agentID int64, since time.Time) ([]domain.PerformancePoint, error)
	AgentStats(ctx context.Context, agentID int64) (wins, losses int, err error)
}

// CycleRunner запуск торгового цикла по команде
type CycleRunner interface {
	RunCycle(ctx context.Context, force bool) error
}

// Bot операционный telegram-бот арены
type Bot struct {
	api       *tgbotapi.BotAPI
	chatID    int64
	auth      *AuthManager
	formatter *Formatter
	store     ArenaStore
	runner    CycleRunner
	halt      *execution.HaltSwitch
	logger    *utils.Logger
}

// NewBot создает бота и проверяет токен
func NewBot(token string, chatID int64, adminIDs string, store ArenaStore, runner CycleRunner, halt *execution.HaltSwitch, logger *utils.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info("Telegram bot authorized: @%s", api.Self.UserName)

	return &Bot{
		api:       api,
		chatID:    chatID,
		auth:      NewAuthManager(adminIDs),
		formatter: NewFormatter(),
		store:     store,
		runner:    runner,
		halt:      halt,
		logger:    logger.WithPrefix("telegram"),
	}, nil
}

// Start запускает обработку сообщений (блокирующий вызов)
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.SendMessage("🤖 Agent Arena bot started!\nUse /help to see available commands.")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			go b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage отправляет сообщение в основной чат
func (b *Bot) SendMessage(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send telegram message: %v", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send telegram reply: %v", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	if !b.auth.CheckRateLimit(userID, maxCommandsPerMinute) {
		b.reply(chatID, "⏳ Too many commands, slow down")
		return
	}

	switch message.Command() {
	case "status", "leaderboard":
		b.handleLeaderboard(ctx, chatID)
	case "positions":
		b.handlePositions(ctx, chatID)
	case "trades":
		b.handleTrades(ctx, chatID)
	case "cycle":
		b.requireAdmin(userID, chatID, func() { b.handleCycle(ctx, chatID) })
	case "halt":
		b.requireAdmin(userID, chatID, func() { b.handleHalt(chatID, message.CommandArguments()) })
	case "resume":
		b.requireAdmin(userID, chatID, func() { b.handleResume(chatID) })
	case "help":
		b.handleHelp(chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help")
	}
}

func (b *Bot) requireAdmin(userID, chatID int64, fn func()) {
	if !b.auth.IsAdmin(userID) {
		b.logger.Warn("Unauthorized admin command attempt from user %d", userID)
		b.reply(chatID, "🔒 Admin only")
		return
	}
	fn()
}

func (b *Bot) handleLeaderboard(ctx context.Context, chatID int64) {
	agents, err := b.store.Agents(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("❌ Error: %v", err))
		return
	}

	since := time.Now().AddDate(0, 0, -30)
	reports := make([]metrics.Report, 0, len(agents))
	for _, agent := range agents {
		wins, losses, err := b.store.AgentStats(ctx, agent.ID)
		if err != nil {
			b.logger.Warn("Failed to load stats for %s: %v", agent.Name, err)
		}
		series, err := b.store.PerformanceSeries(ctx, agent.ID, since)
		if err != nil {
			b.logger.Warn("Failed to load series for %s: %v", agent.Name, err)
		}
		reports = append(reports, metrics.Compute(agent, series, wins, losses))
	}

	b.reply(chatID, b.formatter.Leaderboard(reports))
}

func (b *Bot) handlePositions(ctx context.Context, chatID int64) {
	agents, err := b.store.Agents(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("❌ Error: %v", err))
		return
	}

	text := ""
	for _, agent := range agents {
		positions, err := b.store.PositionsByAgent(ctx, agent.ID)
		if err != nil {
			b.logger.Warn("Failed to load positions for %s: %v", agent.Name, err)
			continue
		}
		text += b.formatter.Positions(agent, positions) + "\n"
	}
	if text == "" {
		text = "No agents yet"
	}
	b.reply(chatID, text)
}

func (b *Bot) handleTrades(ctx context.Context, chatID int64) {
	trades, err := b.store.RecentTrades(ctx, 15)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("❌ Error: %v", err))
		return
	}

	agents, err := b.store.Agents(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("❌ Error: %v", err))
		return
	}
	names := make(map[int64]string, len(agents))
	for _, a := range agents {
		names[a.ID] = a.Name
	}

	b.reply(chatID, b.formatter.Trades(trades, names))
}

func (b *Bot) handleCycle(ctx context.Context, chatID int64) {
	b.reply(chatID, "🔄 Starting trading cycle...")
	go func() {
		err := b.runner.RunCycle(ctx, true)
		switch {
		case err == nil:
			b.reply(chatID, "✅ Cycle finished")
		case errors.Is(err, domain.ErrCycleInProgress):
			b.reply(chatID, "⏳ Cycle already in progress")
		default:
			b.reply(chatID, fmt.Sprintf("❌ Cycle failed: %v", err))
		}
	}()
}

func (b *Bot) handleHalt(chatID int64, args string) {
	reason := args
	if reason == "" {
		reason = "manual halt via telegram"
	}
	b.halt.Activate(reason)
	b.reply(chatID, b.formatter.HaltStatus(true, reason))
}

func (b *Bot) handleResume(chatID int64) {
	b.halt.Deactivate()
	b.reply(chatID, b.formatter.HaltStatus(false, ""))
}

func (b *Bot) handleHelp(chatID int64) {
	help := `📖 *Commands*

/status — leaderboard with ROI and win rate
/positions — open positions per agent
/trades — recent trades
/cycle — run a trading cycle now (admin)
/halt [reason] — stop all trading (admin)
/resume — resume trading (admin)
/help — this message`
	b.reply(chatID, help)
}
