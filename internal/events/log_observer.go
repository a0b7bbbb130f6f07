package events

import (
	"time"

	"github.com/kirillm/agent-arena/pkg/utils"
)

// LogObserver пишет события цикла в лог
type LogObserver struct {
	logger *utils.Logger
}

// NewLogObserver создает наблюдателя поверх логгера
func NewLogObserver(logger *utils.Logger) *LogObserver {
	return &LogObserver{logger: logger.WithPrefix("cycle")}
}

func (lo *LogObserver) CycleStarted(cycleID int64, source string, at time.Time) {
	lo.logger.Info("🔄 Cycle %d started (data source: %s)", cycleID, source)
}

func (lo *LogObserver) CycleFinished(cycleID int64, agentsProcessed int, err error) {
	if err != nil {
		lo.logger.Error("❌ Cycle %d failed after %d agents: %v", cycleID, agentsProcessed, err)
		return
	}
	lo.logger.Info("✅ Cycle %d complete: %d agents processed", cycleID, agentsProcessed)
}

func (lo *LogObserver) AgentOutcome(outcome AgentOutcome) {
	if outcome.Err != nil {
		lo.logger.Error("⚠️ Agent %s: processing failed: %v", outcome.AgentName, outcome.Err)
		return
	}
	if outcome.Executed {
		lo.logger.Info("💰 Agent %s: %s %s executed", outcome.AgentName, outcome.Action, outcome.Symbol)
		return
	}
	if outcome.RejectReason != "" {
		lo.logger.Info("🚫 Agent %s: %s %s rejected: %s", outcome.AgentName, outcome.Action, outcome.Symbol, outcome.RejectReason)
		return
	}
	lo.logger.Info("💤 Agent %s: %s", outcome.AgentName, outcome.Action)
}

func (lo *LogObserver) SafetyDenial(denial SafetyDenial) {
	switch denial.Severity {
	case "critical":
		lo.logger.Error("⛔ Safety denial [%s] for %s: %s", denial.Check, denial.AgentName, denial.Reason)
	default:
		lo.logger.Warn("🚫 Safety denial [%s] for %s: %s", denial.Check, denial.AgentName, denial.Reason)
	}
}

func (lo *LogObserver) ExecutionResult(result ExecutionEvent) {
	if !result.Success {
		lo.logger.Warn("❌ Execution failed: %s %s: %s", result.Action, result.Symbol, result.Reason)
		return
	}
	lo.logger.Info("✅ Executed %s %s: %.4f/%.4f @ $%.2f (slippage %.3f%%)",
		result.Action, result.Symbol, result.Executed, result.Requested, result.Price, result.Slippage)
}

func (lo *LogObserver) ExitTriggered(exit ExitEvent) {
	lo.logger.Info("🏁 Exit %s for agent %d: %s %s @ $%.2f", exit.Trigger, exit.AgentID, exit.Side, exit.Symbol, exit.Price)
}
