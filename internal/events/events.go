package events

import "time"

// Observer получает события торгового цикла. Оркестратор публикует,
// наблюдатели (логгер, telegram) подписываются — бизнес-логика не знает
// о каналах доставки.
type Observer interface {
	CycleStarted(cycleID int64, source string, at time.Time)
	CycleFinished(cycleID int64, agentsProcessed int, err error)
	AgentOutcome(outcome AgentOutcome)
	SafetyDenial(denial SafetyDenial)
	ExecutionResult(result ExecutionEvent)
	ExitTriggered(exit ExitEvent)
}

// AgentOutcome итог обработки одного агента за цикл
type AgentOutcome struct {
	CycleID      int64
	AgentID      int64
	AgentName    string
	Action       string
	Symbol       string
	Executed     bool
	RejectReason string
	Err          error
}

// SafetyDenial отклонение сделки safety validator
type SafetyDenial struct {
	AgentID   int64
	AgentName string
	Check     string
	Reason    string
	Severity  string
}

// ExecutionEvent результат исполнения через broker
type ExecutionEvent struct {
	AgentID   int64
	Action    string
	Symbol    string
	Requested float64
	Executed  float64
	Price     float64
	Slippage  float64
	Success   bool
	Reason    string
}

// ExitEvent принудительное закрытие позиции exit manager-ом
type ExitEvent struct {
	AgentID int64
	Symbol  string
	Side    string
	Trigger string // "target" | "stop_loss"
	Price   float64
}

// Multi рассылает события нескольким наблюдателям
type Multi []Observer

func (m Multi) CycleStarted(cycleID int64, source string, at time.Time) {
	for _, o := range m {
		o.CycleStarted(cycleID, source, at)
	}
}

func (m Multi) CycleFinished(cycleID int64, agentsProcessed int, err error) {
	for _, o := range m {
		o.CycleFinished(cycleID, agentsProcessed, err)
	}
}

func (m Multi) AgentOutcome(outcome AgentOutcome) {
	for _, o := range m {
		o.AgentOutcome(outcome)
	}
}

func (m Multi) SafetyDenial(denial SafetyDenial) {
	for _, o := range m {
		o.SafetyDenial(denial)
	}
}

func (m Multi) ExecutionResult(result ExecutionEvent) {
	for _, o := range m {
		o.ExecutionResult(result)
	}
}

func (m Multi) ExitTriggered(exit ExitEvent) {
	for _, o := range m {
		o.ExitTriggered(exit)
	}
}
