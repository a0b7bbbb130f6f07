package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSyntheticProvider_DeterministicWithinHour(t *testing.T) {
	at := time.Date(2026, 8, 28, 14, 10, 0, 0, time.UTC)
	symbols := []string{"AAPL", "MSFT", "NVDA"}

	first, err := NewSyntheticProviderAt(fixedClock(at)).FetchSnapshot(context.Background(), symbols)
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}
	// Другая минута того же часа — тот же бакет, те же котировки
	second, err := NewSyntheticProviderAt(fixedClock(at.Add(40*time.Minute))).FetchSnapshot(context.Background(), symbols)
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}

	for i := range first.Quotes {
		if first.Quotes[i] != second.Quotes[i] {
			t.Errorf("quotes differ within the same hour bucket: %+v != %+v", first.Quotes[i], second.Quotes[i])
		}
	}
}

func TestSyntheticProvider_EvolvesAcrossHours(t *testing.T) {
	at := time.Date(2026, 8, 28, 14, 10, 0, 0, time.UTC)
	symbols := []string{"AAPL"}

	first, _ := NewSyntheticProviderAt(fixedClock(at)).FetchSnapshot(context.Background(), symbols)
	later, _ := NewSyntheticProviderAt(fixedClock(at.Add(2*time.Hour))).FetchSnapshot(context.Background(), symbols)

	if first.Quotes[0].Price == later.Quotes[0].Price {
		t.Error("price did not evolve across hour buckets")
	}
}

func TestSyntheticProvider_QuoteSanity(t *testing.T) {
	at := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	symbols := []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "JPM", "V", "UNH"}

	result, err := NewSyntheticProviderAt(fixedClock(at)).FetchSnapshot(context.Background(), symbols)
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}

	if result.Source != domain.SourceSynthetic {
		t.Errorf("Source = %v, want synthetic", result.Source)
	}
	if len(result.Quotes) != len(symbols) {
		t.Fatalf("quotes = %d, want %d", len(result.Quotes), len(symbols))
	}

	for _, q := range result.Quotes {
		if q.Price <= 0 {
			t.Errorf("%s: non-positive price %v", q.Symbol, q.Price)
		}
		if q.Volume <= 0 {
			t.Errorf("%s: non-positive volume %v", q.Symbol, q.Volume)
		}
	}
}

func TestSyntheticProvider_DifferentSymbolsDifferentPrices(t *testing.T) {
	at := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)

	result, _ := NewSyntheticProviderAt(fixedClock(at)).FetchSnapshot(context.Background(), []string{"AAPL", "MSFT"})

	if result.Quotes[0].Price == result.Quotes[1].Price {
		t.Error("different symbols produced identical prices")
	}
}

func TestFailoverProvider_FallsBackToSynthetic(t *testing.T) {
	at := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	synthetic := NewSyntheticProviderAt(fixedClock(at))

	// live == nil — всегда synthetic
	fp := NewFailoverProvider(nil, synthetic, testLogger())

	result, err := fp.FetchSnapshot(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}
	if result.Source != domain.SourceSynthetic {
		t.Errorf("Source = %v, want synthetic", result.Source)
	}
}

type failingProvider struct{}

func (failingProvider) FetchSnapshot(ctx context.Context, symbols []string) (*SnapshotResult, error) {
	return nil, domain.ErrNoMarketData
}

func TestFailoverProvider_LiveErrorDegrades(t *testing.T) {
	at := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	fp := NewFailoverProvider(failingProvider{}, NewSyntheticProviderAt(fixedClock(at)), testLogger())

	result, err := fp.FetchSnapshot(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("failover must not surface live errors, got %v", err)
	}
	if result.Source != domain.SourceSynthetic {
		t.Errorf("Source = %v, want synthetic", result.Source)
	}
}
