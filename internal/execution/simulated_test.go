package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillm/agent-arena/internal/config"
	"github.com/kirillm/agent-arena/internal/domain"
)

func testConfig() config.ExecutionConfig {
	return config.ExecutionConfig{
		MaxSlippagePercent: 0.5,
		MaxDelayMs:         10,
		MinFillRatio:       0.85,
		CommissionPercent:  0.05,
		MinCommission:      1,
	}
}

func TestExecuteOrder_SlippageAlwaysAdverse(t *testing.T) {
	broker := NewSimulatedBrokerSeeded(testConfig(), 42)

	for i := 0; i < 50; i++ {
		buy, err := broker.ExecuteOrder(context.Background(), FillRequest{
			Action: domain.ActionBuy, Symbol: "AAPL", Quantity: 100, ReferencePrice: 100,
		})
		if err != nil {
			t.Fatalf("buy error = %v", err)
		}
		if buy.ExecutedPrice < 100 {
			t.Fatalf("buy executed below reference: %v", buy.ExecutedPrice)
		}

		sell, err := broker.ExecuteOrder(context.Background(), FillRequest{
			Action: domain.ActionSell, Symbol: "AAPL", Quantity: 100, ReferencePrice: 100,
		})
		if err != nil {
			t.Fatalf("sell error = %v", err)
		}
		if sell.ExecutedPrice > 100 {
			t.Fatalf("sell executed above reference: %v", sell.ExecutedPrice)
		}
	}
}

func TestExecuteOrder_SlippageBounded(t *testing.T) {
	broker := NewSimulatedBrokerSeeded(testConfig(), 7)

	for i := 0; i < 100; i++ {
		result, err := broker.ExecuteOrder(context.Background(), FillRequest{
			Action: domain.ActionBuy, Symbol: "AAPL", Quantity: 10, ReferencePrice: 100,
		})
		if err != nil {
			t.Fatalf("ExecuteOrder() error = %v", err)
		}
		if result.SlippagePercent < 0 || result.SlippagePercent > 0.5 {
			t.Fatalf("slippage %v out of [0, 0.5]", result.SlippagePercent)
		}
		// Максимум +0.5%: 100.50, плюс округление до цента
		if result.ExecutedPrice > 100.51 {
			t.Fatalf("price %v exceeds slippage bound", result.ExecutedPrice)
		}
	}
}

func TestExecuteOrder_PartialFillBounds(t *testing.T) {
	broker := NewSimulatedBrokerSeeded(testConfig(), 99)

	for i := 0; i < 100; i++ {
		result, err := broker.ExecuteOrder(context.Background(), FillRequest{
			Action: domain.ActionBuy, Symbol: "AAPL", Quantity: 100, ReferencePrice: 50,
		})
		if err != nil {
			t.Fatalf("ExecuteOrder() error = %v", err)
		}
		if result.ExecutedQuantity > 100 {
			t.Fatalf("executed %v exceeds requested 100", result.ExecutedQuantity)
		}
		if result.ExecutedQuantity < 85 {
			t.Fatalf("executed %v below min fill ratio", result.ExecutedQuantity)
		}
	}
}

func TestExecuteOrder_TinyOrderFillsAtLeastOne(t *testing.T) {
	broker := NewSimulatedBrokerSeeded(testConfig(), 3)

	result, err := broker.ExecuteOrder(context.Background(), FillRequest{
		Action: domain.ActionBuy, Symbol: "AAPL", Quantity: 1, ReferencePrice: 50,
	})
	if err != nil {
		t.Fatalf("ExecuteOrder() error = %v", err)
	}
	if result.ExecutedQuantity != 1 {
		t.Errorf("ExecutedQuantity = %v, want 1", result.ExecutedQuantity)
	}
}

func TestExecuteOrder_CommissionFloor(t *testing.T) {
	broker := NewSimulatedBrokerSeeded(testConfig(), 11)

	// 1 акция по $10: процентная комиссия $0.005, действует минимум $1
	result, err := broker.ExecuteOrder(context.Background(), FillRequest{
		Action: domain.ActionBuy, Symbol: "PENNY", Quantity: 1, ReferencePrice: 10,
	})
	if err != nil {
		t.Fatalf("ExecuteOrder() error = %v", err)
	}
	if result.Commission != 1 {
		t.Errorf("Commission = %v, want 1 (minimum)", result.Commission)
	}
}

func TestExecuteOrder_InvalidRequests(t *testing.T) {
	broker := NewSimulatedBrokerSeeded(testConfig(), 1)

	tests := []struct {
		name    string
		req     FillRequest
		wantErr error
	}{
		{"zero quantity", FillRequest{Action: domain.ActionBuy, Symbol: "AAPL", ReferencePrice: 100}, ErrInvalidOrder},
		{"zero price", FillRequest{Action: domain.ActionBuy, Symbol: "AAPL", Quantity: 1}, ErrInvalidOrder},
		{"hold is not executable", FillRequest{Action: domain.ActionHold, Symbol: "AAPL", Quantity: 1, ReferencePrice: 100}, ErrUnknownAction},
		{"garbage action", FillRequest{Action: "YOLO", Symbol: "AAPL", Quantity: 1, ReferencePrice: 100}, ErrUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := broker.ExecuteOrder(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if result.Success {
				t.Error("invalid order must not succeed")
			}
		})
	}
}

func TestHaltSwitch(t *testing.T) {
	hs := NewHaltSwitch()

	if hs.IsActive() {
		t.Error("new halt switch must be inactive")
	}

	hs.Activate("drawdown breach")
	if !hs.IsActive() {
		t.Error("halt switch must be active after Activate")
	}
	active, reason, _ := hs.Status()
	if !active || reason != "drawdown breach" {
		t.Errorf("Status() = %v %q", active, reason)
	}

	hs.Deactivate()
	if hs.IsActive() {
		t.Error("halt switch must be inactive after Deactivate")
	}
}
