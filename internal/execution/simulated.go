package execution

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/kirillm/agent-arena/internal/config"
	"github.com/kirillm/agent-arena/internal/domain"
)

// SimulatedBroker симулирует исполнение с реалистичными эффектами:
// случайный slippage в пределах порога, задержка, частичное исполнение.
// executedQuantity никогда не превышает запрошенное количество.
type SimulatedBroker struct {
	cfg   config.ExecutionConfig
	rng   *rand.Rand
	sleep func(time.Duration)
}

// NewSimulatedBroker создает симулятор исполнения
func NewSimulatedBroker(cfg config.ExecutionConfig) *SimulatedBroker {
	return &SimulatedBroker{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: time.Sleep,
	}
}

// NewSimulatedBrokerSeeded создает детерминированный симулятор (для тестов)
func NewSimulatedBrokerSeeded(cfg config.ExecutionConfig, seed int64) *SimulatedBroker {
	return &SimulatedBroker{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
		sleep: func(time.Duration) {},
	}
}

// ExecuteOrder симулирует исполнение ордера
func (sb *SimulatedBroker) ExecuteOrder(ctx context.Context, req FillRequest) (*FillResult, error) {
	started := time.Now()

	if req.Quantity <= 0 || req.ReferencePrice <= 0 {
		return &FillResult{
			Success: false,
			Reason:  "invalid quantity or reference price",
			Elapsed: time.Since(started),
		}, ErrInvalidOrder
	}
	if !domain.ValidActions[req.Action] || req.Action == domain.ActionHold {
		return &FillResult{
			Success: false,
			Reason:  fmt.Sprintf("unsupported action %s", req.Action),
			Elapsed: time.Since(started),
		}, ErrUnknownAction
	}

	// Задержка исполнения
	if sb.cfg.MaxDelayMs > 0 {
		delay := time.Duration(sb.rng.Intn(sb.cfg.MaxDelayMs)) * time.Millisecond
		select {
		case <-ctx.Done():
			return &FillResult{
				Success: false,
				Reason:  "execution cancelled",
				Elapsed: time.Since(started),
			}, ctx.Err()
		default:
			sb.sleep(delay)
		}
	}

	// Slippage всегда против сделки: покупки дороже, продажи дешевле
	slippagePct := sb.rng.Float64() * sb.cfg.MaxSlippagePercent
	price := req.ReferencePrice
	switch req.Action {
	case domain.ActionBuy, domain.ActionBuyToCover:
		price *= 1 + slippagePct/100
	case domain.ActionSell, domain.ActionSellShort:
		price *= 1 - slippagePct/100
	}
	price = math.Round(price*100) / 100

	// Частичное исполнение в пределах [MinFillRatio, 1]
	quantity := req.Quantity
	if sb.cfg.MinFillRatio < 1 {
		ratio := sb.cfg.MinFillRatio + sb.rng.Float64()*(1-sb.cfg.MinFillRatio)
		quantity = math.Floor(req.Quantity * ratio)
		if quantity < 1 {
			quantity = 1
		}
		if quantity > req.Quantity {
			quantity = req.Quantity
		}
	}

	total := price * quantity
	commission := total * sb.cfg.CommissionPercent / 100
	if commission < sb.cfg.MinCommission {
		commission = sb.cfg.MinCommission
	}
	commission = math.Round(commission*100) / 100

	return &FillResult{
		Success:          true,
		ExecutedPrice:    price,
		ExecutedQuantity: quantity,
		Commission:       commission,
		SlippagePercent:  slippagePct,
		Elapsed:          time.Since(started),
	}, nil
}
