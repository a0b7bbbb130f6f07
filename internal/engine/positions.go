package engine

import (
	"fmt"
	"math"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/execution"
)

// ExitParams параметры выхода из решения AI, сохраняемые в позиции
type ExitParams struct {
	TargetPrice  float64
	StopLoss     float64
	Invalidation string
}

// PortfolioChange результат применения исполнения к портфелю.
// Чистая структура данных: вычисляется без побочных эффектов,
// атомарно применяется storage-слоем одной транзакцией.
type PortfolioChange struct {
	CashBalance      float64
	Position         *domain.Position // создаваемая/обновляемая позиция, nil если нет
	DeletePositionID int64            // id полностью закрытой позиции, 0 если нет
	RealizedPnL      *float64         // только для закрывающих действий
}

// applyFill вычисляет мутацию портфеля после исполнения.
// existing — открытая позиция агента по (symbol, side) или nil.
//
// Правила:
//   - BUY в существующий LONG сливается по VWAP;
//   - SELL_SHORT в существующий SHORT сливается по VWAP;
//   - частичное закрытие уменьшает количество, цена входа неизменна,
//     реализованный P&L пропорционален закрытой доле;
//   - комиссия всегда уменьшает cash и вычитается из realized P&L.
func applyFill(agent *domain.Agent, existing *domain.Position, action, symbol string, fill *execution.FillResult, exit ExitParams) (*PortfolioChange, error) {
	switch action {
	case domain.ActionBuy:
		return applyOpen(agent, existing, domain.SideLong, symbol, fill, exit)
	case domain.ActionSellShort:
		return applyOpen(agent, existing, domain.SideShort, symbol, fill, exit)
	case domain.ActionSell:
		return applyClose(agent, existing, domain.SideLong, fill)
	case domain.ActionBuyToCover:
		return applyClose(agent, existing, domain.SideShort, fill)
	default:
		return nil, fmt.Errorf("%w: %s", execution.ErrUnknownAction, action)
	}
}

// applyOpen открывает или наращивает позицию
func applyOpen(agent *domain.Agent, existing *domain.Position, side, symbol string, fill *execution.FillResult, exit ExitParams) (*PortfolioChange, error) {
	cost := fill.Total() + fill.Commission

	var cash float64
	if side == domain.SideLong {
		if cost > agent.CashBalance {
			return nil, fmt.Errorf("%w: need $%.2f, have $%.2f", domain.ErrInsufficientFunds, cost, agent.CashBalance)
		}
		cash = agent.CashBalance - cost
	} else {
		// Шорт кредитует выручку от продажи, обязательство по откупу
		// учитывается в EquityValue позиции
		cash = agent.CashBalance + fill.Total() - fill.Commission
	}

	position := &domain.Position{
		AgentID:      agent.ID,
		Symbol:       symbol,
		Side:         side,
		Quantity:     fill.ExecutedQuantity,
		EntryPrice:   fill.ExecutedPrice,
		CurrentPrice: fill.ExecutedPrice,
		TargetPrice:  exit.TargetPrice,
		StopLoss:     exit.StopLoss,
		Invalidation: exit.Invalidation,
	}

	if existing != nil {
		merged := mergePosition(existing, fill.ExecutedQuantity, fill.ExecutedPrice)
		merged.TargetPrice = exit.TargetPrice
		merged.StopLoss = exit.StopLoss
		merged.Invalidation = exit.Invalidation
		position = merged
	}

	return &PortfolioChange{
		CashBalance: round2(cash),
		Position:    position,
	}, nil
}

// applyClose закрывает позицию полностью или частично
func applyClose(agent *domain.Agent, existing *domain.Position, side string, fill *execution.FillResult) (*PortfolioChange, error) {
	if existing == nil {
		return nil, fmt.Errorf("%w: no open %s position to close", domain.ErrInvalidInput, side)
	}

	quantity := fill.ExecutedQuantity
	if quantity > existing.Quantity {
		return nil, fmt.Errorf("%w: closing %.0f of %.0f held", domain.ErrInvalidInput, quantity, existing.Quantity)
	}

	var cash, gross float64
	if side == domain.SideLong {
		// SELL: выручка в cash
		cash = agent.CashBalance + fill.Total() - fill.Commission
		gross = (fill.ExecutedPrice - existing.EntryPrice) * quantity
	} else {
		// BUY_TO_COVER: откуп за cash
		cost := fill.Total() + fill.Commission
		if cost > agent.CashBalance {
			return nil, fmt.Errorf("%w: need $%.2f to cover, have $%.2f", domain.ErrInsufficientFunds, cost, agent.CashBalance)
		}
		cash = agent.CashBalance - cost
		gross = (existing.EntryPrice - fill.ExecutedPrice) * quantity
	}

	realized := round2(gross - fill.Commission)

	change := &PortfolioChange{
		CashBalance: round2(cash),
		RealizedPnL: &realized,
	}

	if quantity == existing.Quantity {
		change.DeletePositionID = existing.ID
	} else {
		remaining := *existing
		remaining.Quantity = existing.Quantity - quantity
		remaining.CurrentPrice = fill.ExecutedPrice
		change.Position = &remaining
	}

	return change, nil
}

// mergePosition сливает докупку в существующую позицию по VWAP
func mergePosition(existing *domain.Position, quantity, price float64) *domain.Position {
	merged := *existing
	totalQty := existing.Quantity + quantity
	merged.EntryPrice = round4((existing.Quantity*existing.EntryPrice + quantity*price) / totalQty)
	merged.Quantity = totalQty
	merged.CurrentPrice = price
	return &merged
}

// accountValue вычисляет стоимость счета: cash + вклад каждой позиции
func accountValue(cash float64, positions []domain.Position) float64 {
	value := cash
	for i := range positions {
		value += positions[i].EquityValue()
	}
	return round2(value)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
