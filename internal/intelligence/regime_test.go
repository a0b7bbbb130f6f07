package intelligence

import (
	"testing"
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/marketdata"
)

var now = time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)

// series строит историю одного символа с линейным дрейфом за daysBack дней
func series(symbol string, startPrice, dailyDrift float64, daysBack int) []domain.StockPrice {
	ticks := make([]domain.StockPrice, 0, daysBack)
	price := startPrice
	for d := daysBack; d >= 0; d-- {
		ticks = append(ticks, domain.StockPrice{
			Symbol:    symbol,
			Price:     price,
			CreatedAt: now.AddDate(0, 0, -d),
		})
		price *= 1 + dailyDrift
	}
	return ticks
}

func TestRegimeClassification(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name         string
		mediumReturn float64
		want         string
	}{
		{"bull above threshold", 6, domain.RegimeBull},
		{"bear below threshold", -6, domain.RegimeBear},
		{"choppy near zero", 1, domain.RegimeChoppy},
		{"choppy negative near zero", -1.5, domain.RegimeChoppy},
		{"transitioning in between", 3, domain.RegimeTransitioning},
		{"transitioning negative", -3, domain.RegimeTransitioning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := regime(tt.mediumReturn, cfg); got != tt.want {
				t.Errorf("regime(%v) = %v, want %v", tt.mediumReturn, got, tt.want)
			}
		})
	}
}

func TestVolatilityLevels(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		vol  float64
		want string
	}{
		{0.5, domain.VolatilityLow},
		{1.5, domain.VolatilityNormal},
		{2.5, domain.VolatilityElevated},
		{4.0, domain.VolatilityHigh},
	}

	for _, tt := range tests {
		if got := volatilityLevel(tt.vol, cfg); got != tt.want {
			t.Errorf("volatilityLevel(%v) = %v, want %v", tt.vol, got, tt.want)
		}
	}
}

func TestMomentum(t *testing.T) {
	cfg := DefaultConfig()

	if got := momentum(2, cfg); got != domain.MomentumAccelerating {
		t.Errorf("momentum(2) = %v, want accelerating", got)
	}
	if got := momentum(-2, cfg); got != domain.MomentumDecelerating {
		t.Errorf("momentum(-2) = %v, want decelerating", got)
	}
	if got := momentum(0.5, cfg); got != domain.MomentumSteady {
		t.Errorf("momentum(0.5) = %v, want steady", got)
	}
}

func TestConfidence_Clamped(t *testing.T) {
	cfg := DefaultConfig()

	// Максимально благоприятно: полная согласованность, низкая
	// волатильность, ускорение — 50+15+10+10 = 85, в пределах [20, 90]
	best := &Assessment{
		Short:           WindowSummary{ReturnPercent: 3},
		Medium:          WindowSummary{ReturnPercent: 6},
		Long:            WindowSummary{ReturnPercent: 10},
		VolatilityLevel: domain.VolatilityLow,
		Momentum:        domain.MomentumAccelerating,
	}
	if got := confidence(best, cfg); got != 85 {
		t.Errorf("confidence(best) = %v, want 85", got)
	}

	// Максимально неблагоприятно: 50-15-10 = 25
	worst := &Assessment{
		Short:           WindowSummary{ReturnPercent: -3},
		Medium:          WindowSummary{ReturnPercent: 2},
		Long:            WindowSummary{ReturnPercent: 5},
		VolatilityLevel: domain.VolatilityHigh,
		Momentum:        domain.MomentumDecelerating,
	}
	got := confidence(worst, cfg)
	if got < 20 || got > 90 {
		t.Errorf("confidence(worst) = %v, out of [20, 90]", got)
	}
}

func TestConfidence_MonotonicInVolatility(t *testing.T) {
	cfg := DefaultConfig()
	base := &Assessment{
		Short:  WindowSummary{ReturnPercent: 3},
		Medium: WindowSummary{ReturnPercent: 6},
		Long:   WindowSummary{ReturnPercent: 10},
	}

	// Ниже волатильность — никогда не ниже confidence
	levels := []string{domain.VolatilityLow, domain.VolatilityNormal, domain.VolatilityElevated, domain.VolatilityHigh}
	prev := 100
	for _, level := range levels {
		a := *base
		a.VolatilityLevel = level
		score := confidence(&a, cfg)
		if score > prev {
			t.Errorf("confidence increased from %d to %d when volatility worsened to %s", prev, score, level)
		}
		prev = score
	}
}

func TestAssess_BullMarket(t *testing.T) {
	// Устойчивый рост ~0.4%/день за 90 дней
	history := map[string][]domain.StockPrice{
		"AAPL": series("AAPL", 100, 0.004, 90),
		"MSFT": series("MSFT", 200, 0.004, 90),
	}
	quotes := []marketdata.Quote{
		{Symbol: "AAPL", Price: 143, ChangePercent: 1.2},
		{Symbol: "MSFT", Price: 286, ChangePercent: 0.8},
	}

	a := Assess(history, quotes, DefaultConfig(), now)

	if a.Regime != domain.RegimeBull {
		t.Errorf("Regime = %v, want bull", a.Regime)
	}
	if a.Confidence < 20 || a.Confidence > 90 {
		t.Errorf("Confidence = %v, out of [20, 90]", a.Confidence)
	}
	if len(a.BiggestMovers) == 0 {
		t.Error("expected biggest movers")
	}
}

func TestAssess_EmptyHistory(t *testing.T) {
	a := Assess(nil, nil, DefaultConfig(), now)

	if a.Regime != domain.RegimeChoppy {
		t.Errorf("Regime = %v, want choppy for flat empty windows", a.Regime)
	}
	if a.Short.ReturnPercent != 0 || a.Long.MaxDrawdown != 0 {
		t.Errorf("empty history produced nonzero summaries: %+v", a)
	}
}

func TestBiggestMovers_SortedByMagnitude(t *testing.T) {
	quotes := []marketdata.Quote{
		{Symbol: "A", ChangePercent: 1},
		{Symbol: "B", ChangePercent: -7},
		{Symbol: "C", ChangePercent: 4},
		{Symbol: "D", ChangePercent: 0.2},
	}

	movers := biggestMovers(quotes, 3)
	if len(movers) != 3 {
		t.Fatalf("len = %d, want 3", len(movers))
	}
	if movers[0].Symbol != "B" || movers[1].Symbol != "C" || movers[2].Symbol != "A" {
		t.Errorf("movers = %+v, want B, C, A", movers)
	}
}

func TestPhase(t *testing.T) {
	tests := []struct {
		name       string
		longReturn float64
		drawdown   float64
		want       string
	}{
		{"strong uptrend", 20, 5, "strong_uptrend"},
		{"uptrend", 8, 10, "uptrend"},
		{"volatile uptrend", 8, 25, "volatile_uptrend"},
		{"capitulation", -20, 30, "capitulation"},
		{"downtrend", -8, 10, "downtrend"},
		{"volatile downtrend", -8, 18, "volatile_downtrend"},
		{"correction", 2, 20, "correction"},
		{"consolidation", 1, 5, "consolidation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := phase(tt.longReturn, tt.drawdown); got != tt.want {
				t.Errorf("phase(%v, %v) = %v, want %v", tt.longReturn, tt.drawdown, got, tt.want)
			}
		})
	}
}
