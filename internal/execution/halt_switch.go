package execution

import (
	"sync"
	"time"
)

// HaltSwitch ручная аварийная остановка торговли. Активируется
// оператором (telegram/API); деактивация только вручную.
type HaltSwitch struct {
	mu          sync.RWMutex
	active      bool
	activatedAt time.Time
	reason      string
}

// NewHaltSwitch создает выключенный halt switch
func NewHaltSwitch() *HaltSwitch {
	return &HaltSwitch{}
}

// Activate включает остановку торговли
func (hs *HaltSwitch) Activate(reason string) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	hs.active = true
	hs.activatedAt = time.Now()
	hs.reason = reason
}

// Deactivate снимает остановку (требует ручного вмешательства)
func (hs *HaltSwitch) Deactivate() {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	hs.active = false
	hs.reason = ""
}

// IsActive проверяет активна ли остановка
func (hs *HaltSwitch) IsActive() bool {
	hs.mu.RLock()
	defer hs.mu.RUnlock()

	return hs.active
}

// Status возвращает состояние halt switch
func (hs *HaltSwitch) Status() (bool, string, time.Time) {
	hs.mu.RLock()
	defer hs.mu.RUnlock()

	return hs.active, hs.reason, hs.activatedAt
}
