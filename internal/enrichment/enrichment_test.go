package enrichment

import (
	"testing"
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/marketdata"
)

var now = time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)

func quote(symbol string, price float64, volume int64) marketdata.Quote {
	return marketdata.Quote{Symbol: symbol, Price: price, Volume: volume}
}

func tick(symbol string, price float64, volume int64, daysAgo int) domain.StockPrice {
	return domain.StockPrice{
		Symbol:    symbol,
		Price:     price,
		Volume:    volume,
		CreatedAt: now.AddDate(0, 0, -daysAgo),
	}
}

func TestEnrich_EmptyHistoryStaysZero(t *testing.T) {
	// Без истории индикаторы не выдумываются
	enriched := Enrich([]marketdata.Quote{quote("AAPL", 150, 1000)}, nil, DefaultConfig(), now)

	if len(enriched) != 1 {
		t.Fatalf("len = %d, want 1", len(enriched))
	}
	eq := enriched[0]
	if eq.WeekTrend != 0 || eq.MA7 != 0 || eq.MA30 != 0 {
		t.Errorf("indicators fabricated from empty history: %+v", eq)
	}
	if eq.VolumeClass != domain.VolumeNormal {
		t.Errorf("VolumeClass = %v, want normal", eq.VolumeClass)
	}
}

func TestEnrich_WeekTrend(t *testing.T) {
	history := map[string][]domain.StockPrice{
		"AAPL": {
			tick("AAPL", 100, 1000, 7), // ровно неделя назад
			tick("AAPL", 90, 1000, 20),
		},
	}

	enriched := Enrich([]marketdata.Quote{quote("AAPL", 110, 1000)}, history, DefaultConfig(), now)

	// (110-100)/100 * 100 = 10%
	if got := enriched[0].WeekTrend; got != 10 {
		t.Errorf("WeekTrend = %v, want 10", got)
	}
}

func TestEnrich_MovingAverages(t *testing.T) {
	history := map[string][]domain.StockPrice{
		"AAPL": {
			tick("AAPL", 100, 1000, 1),
			tick("AAPL", 110, 1000, 3),
			tick("AAPL", 150, 1000, 20), // только в MA30
		},
	}

	enriched := Enrich([]marketdata.Quote{quote("AAPL", 120, 1000)}, history, DefaultConfig(), now)

	if got := enriched[0].MA7; got != 105 {
		t.Errorf("MA7 = %v, want 105", got)
	}
	if got := enriched[0].MA30; got != 120 {
		t.Errorf("MA30 = %v, want 120", got)
	}
}

func TestEnrich_VolumeClassification(t *testing.T) {
	history := map[string][]domain.StockPrice{
		"AAPL": {
			tick("AAPL", 100, 1000, 1),
			tick("AAPL", 100, 1000, 2),
		},
	}

	tests := []struct {
		name   string
		volume int64
		want   string
	}{
		{"high at 1.5x", 1500, domain.VolumeHigh},
		{"low at 0.5x", 500, domain.VolumeLow},
		{"normal in between", 1000, domain.VolumeNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enriched := Enrich([]marketdata.Quote{quote("AAPL", 100, tt.volume)}, history, DefaultConfig(), now)
			if got := enriched[0].VolumeClass; got != tt.want {
				t.Errorf("VolumeClass = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnrich_PureFunction(t *testing.T) {
	history := map[string][]domain.StockPrice{
		"AAPL": {tick("AAPL", 100, 1000, 5)},
	}
	quotes := []marketdata.Quote{quote("AAPL", 110, 2000)}

	first := Enrich(quotes, history, DefaultConfig(), now)
	second := Enrich(quotes, history, DefaultConfig(), now)

	if first[0] != second[0] {
		t.Errorf("Enrich is not deterministic: %+v != %+v", first[0], second[0])
	}
	if len(history["AAPL"]) != 1 {
		t.Error("Enrich mutated the history")
	}
}
