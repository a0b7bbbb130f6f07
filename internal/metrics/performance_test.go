package metrics

import (
	"testing"
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
)

func point(value float64, minutesAgo int) domain.PerformancePoint {
	return domain.PerformancePoint{
		AccountValue: value,
		CreatedAt:    time.Now().Add(-time.Duration(minutesAgo) * time.Minute),
	}
}

func TestCompute_ROI(t *testing.T) {
	agent := domain.Agent{ID: 1, Name: "Atlas", StartingValue: 10000, AccountValue: 11500}

	report := Compute(agent, nil, 3, 1)

	if report.ROIPercent != 15 {
		t.Errorf("ROIPercent = %v, want 15", report.ROIPercent)
	}
	if report.TotalTrades != 4 || report.WinRate != 75 {
		t.Errorf("stats = %d trades, %.0f%% win rate, want 4 and 75", report.TotalTrades, report.WinRate)
	}
}

func TestCompute_ZeroStartingValue(t *testing.T) {
	report := Compute(domain.Agent{AccountValue: 500}, nil, 0, 0)

	if report.ROIPercent != 0 {
		t.Errorf("ROIPercent = %v, want 0 for zero starting value", report.ROIPercent)
	}
	if report.WinRate != 0 {
		t.Errorf("WinRate = %v, want 0 without trades", report.WinRate)
	}
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"monotonic growth", []float64{100, 110, 120}, 0},
		{"single dip", []float64{100, 120, 90, 130}, 25},
		{"deepest counts", []float64{100, 80, 95, 50}, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := make([]domain.PerformancePoint, len(tt.values))
			for i, v := range tt.values {
				series[i] = point(v, len(tt.values)-i)
			}
			if got := maxDrawdown(series); got != tt.want {
				t.Errorf("maxDrawdown() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSharpeLike(t *testing.T) {
	if got := sharpeLike(nil); got != 0 {
		t.Errorf("sharpeLike(nil) = %v, want 0", got)
	}
	if got := sharpeLike([]float64{0.01}); got != 0 {
		t.Errorf("sharpeLike(single) = %v, want 0", got)
	}
	// Постоянный ненулевой возврат: stddev = 0, деление не происходит
	if got := sharpeLike([]float64{0.01, 0.01, 0.01}); got != 0 {
		t.Errorf("sharpeLike(constant) = %v, want 0", got)
	}

	// Растущий ряд дает положительный показатель
	got := sharpeLike([]float64{0.01, 0.02, 0.015, 0.025})
	if got <= 0 {
		t.Errorf("sharpeLike(positive returns) = %v, want > 0", got)
	}
}

func TestStepReturns_SkipsNonPositive(t *testing.T) {
	series := []domain.PerformancePoint{
		point(100, 3),
		point(0, 2), // нулевая точка не порождает возврат от нее
		point(110, 1),
	}

	returns := stepReturns(series)
	if len(returns) != 1 {
		t.Fatalf("len = %d, want 1", len(returns))
	}
}
