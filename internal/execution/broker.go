package execution

import (
	"context"
	"errors"
	"time"
)

var (
	ErrHaltActive    = errors.New("trading halt is active")
	ErrMarketClosed  = errors.New("market closed")
	ErrInvalidOrder  = errors.New("invalid order")
	ErrUnknownAction = errors.New("unknown action")
)

// FillRequest запрос на исполнение сделки
type FillRequest struct {
	Action         string
	Symbol         string
	Quantity       float64
	ReferencePrice float64
}

// FillResult фактическое исполнение: цена, количество, комиссия,
// slippage и затраченное время
type FillResult struct {
	Success          bool
	ExecutedPrice    float64
	ExecutedQuantity float64
	Commission       float64
	SlippagePercent  float64
	Elapsed          time.Duration
	Reason           string // причина неудачи
}

// Total возвращает полную стоимость исполнения без комиссии
func (fr *FillResult) Total() float64 {
	return fr.ExecutedPrice * fr.ExecutedQuantity
}

// Broker исполняет ордера. Контракт одинаков для симулятора и реального
// брокера — это спроектированный шов для live-торговли: замена
// реализации не меняет ни входы, ни выходы.
type Broker interface {
	ExecuteOrder(ctx context.Context, req FillRequest) (*FillResult, error)
}
