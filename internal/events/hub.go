package events

import (
	"sync"
	"time"
)

// Hub фан-аут с поздней регистрацией наблюдателей. Нужен там, где
// наблюдатель (telegram) создается после компонентов, которые публикуют
// события.
type Hub struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewHub создает hub с начальным набором наблюдателей
func NewHub(observers ...Observer) *Hub {
	return &Hub{observers: observers}
}

// Register добавляет наблюдателя. Безопасно во время доставки событий.
func (h *Hub) Register(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, o)
}

func (h *Hub) snapshot() []Observer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Observer(nil), h.observers...)
}

func (h *Hub) CycleStarted(cycleID int64, source string, at time.Time) {
	for _, o := range h.snapshot() {
		o.CycleStarted(cycleID, source, at)
	}
}

func (h *Hub) CycleFinished(cycleID int64, agentsProcessed int, err error) {
	for _, o := range h.snapshot() {
		o.CycleFinished(cycleID, agentsProcessed, err)
	}
}

func (h *Hub) AgentOutcome(outcome AgentOutcome) {
	for _, o := range h.snapshot() {
		o.AgentOutcome(outcome)
	}
}

func (h *Hub) SafetyDenial(denial SafetyDenial) {
	for _, o := range h.snapshot() {
		o.SafetyDenial(denial)
	}
}

func (h *Hub) ExecutionResult(result ExecutionEvent) {
	for _, o := range h.snapshot() {
		o.ExecutionResult(result)
	}
}

func (h *Hub) ExitTriggered(exit ExitEvent) {
	for _, o := range h.snapshot() {
		o.ExitTriggered(exit)
	}
}
