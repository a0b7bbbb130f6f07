package exits

import (
	"fmt"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/marketdata"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// Триггеры принудительного выхода
const (
	TriggerTarget   = "target"
	TriggerStopLoss = "stop_loss"
)

// Exit позиция, по которой сработало условие выхода
type Exit struct {
	Position domain.Position
	Trigger  string
	Price    float64 // цена, при которой сработал триггер
	Reason   string
}

// Manager проверяет условия выхода по открытым позициям.
// Проверка выполняется до запроса решений AI: сработавший target или
// stop закрывается принудительно, независимо от мнения модели.
// Invalidation — качественное условие, оно отдается модели в контексте
// и числовым триггером не является.
type Manager struct {
	logger *utils.Logger
}

// NewManager создает exit manager
func NewManager(logger *utils.Logger) *Manager {
	return &Manager{logger: logger.WithPrefix("exits")}
}

// Check возвращает позиции с сработавшими условиями выхода.
// Позиции без котировки в снапшоте пропускаются: закрывать по
// устаревшей цене опаснее, чем подождать цикл.
func (m *Manager) Check(positions []domain.Position, quotes map[string]marketdata.Quote) []Exit {
	var exits []Exit

	for _, p := range positions {
		q, ok := quotes[p.Symbol]
		if !ok {
			m.logger.Warn("No quote for %s, skipping exit check", p.Symbol)
			continue
		}

		if exit := evaluate(p, q.Price); exit != nil {
			m.logger.Info("🎯 Exit triggered: %s %s %s at $%.2f (%s)",
				p.Side, p.Symbol, exit.Trigger, q.Price, exit.Reason)
			exits = append(exits, *exit)
		}
	}

	return exits
}

// evaluate проверяет триггеры одной позиции. Нулевой target/stop
// означает, что уровень не задан.
func evaluate(p domain.Position, price float64) *Exit {
	if p.Side == domain.SideShort {
		if p.TargetPrice > 0 && price <= p.TargetPrice {
			return &Exit{Position: p, Trigger: TriggerTarget, Price: price,
				Reason: reason("price $%.2f at or below target $%.2f", price, p.TargetPrice)}
		}
		if p.StopLoss > 0 && price >= p.StopLoss {
			return &Exit{Position: p, Trigger: TriggerStopLoss, Price: price,
				Reason: reason("price $%.2f at or above stop $%.2f", price, p.StopLoss)}
		}
		return nil
	}

	if p.TargetPrice > 0 && price >= p.TargetPrice {
		return &Exit{Position: p, Trigger: TriggerTarget, Price: price,
			Reason: reason("price $%.2f at or above target $%.2f", price, p.TargetPrice)}
	}
	if p.StopLoss > 0 && price <= p.StopLoss {
		return &Exit{Position: p, Trigger: TriggerStopLoss, Price: price,
			Reason: reason("price $%.2f at or below stop $%.2f", price, p.StopLoss)}
	}
	return nil
}

func reason(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}
