package telegram

import (
	"fmt"
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/events"
)

// Alerter шлет критические события арены в telegram-чат.
// Реализует events.Observer; некритичный шум (обычные исполнения,
// старт цикла) в чат не попадает.
type Alerter struct {
	bot *Bot
}

// NewAlerter создает наблюдателя алертов
func NewAlerter(bot *Bot) *Alerter {
	return &Alerter{bot: bot}
}

func (a *Alerter) CycleStarted(cycleID int64, source string, at time.Time) {
	if source == domain.SourceSynthetic {
		a.bot.SendMessage(fmt.Sprintf("⚠️ Cycle %d running on synthetic market data", cycleID))
	}
}

func (a *Alerter) CycleFinished(cycleID int64, agentsProcessed int, err error) {
	if err != nil {
		a.bot.SendMessage(fmt.Sprintf("❌ Cycle %d failed: %v", cycleID, err))
	}
}

func (a *Alerter) AgentOutcome(outcome events.AgentOutcome) {
	if outcome.Err != nil {
		a.bot.SendMessage(fmt.Sprintf("⚠️ Agent %s failed this cycle: %v", outcome.AgentName, outcome.Err))
	}
}

func (a *Alerter) SafetyDenial(denial events.SafetyDenial) {
	if denial.Severity != domain.SeverityCritical {
		return
	}
	a.bot.SendMessage(fmt.Sprintf("⛔ *Safety alert* [%s]\nAgent: %s\n%s", denial.Check, denial.AgentName, denial.Reason))
}

func (a *Alerter) ExecutionResult(result events.ExecutionEvent) {
	if result.Success {
		return
	}
	a.bot.SendMessage(fmt.Sprintf("❌ Execution failed: %s %s — %s", result.Action, result.Symbol, result.Reason))
}

func (a *Alerter) ExitTriggered(exit events.ExitEvent) {
	emoji := "🎯"
	if exit.Trigger == "stop_loss" {
		emoji = "🛑"
	}
	a.bot.SendMessage(fmt.Sprintf("%s Forced exit: %s %s at $%.2f (%s)", emoji, exit.Side, exit.Symbol, exit.Price, exit.Trigger))
}
