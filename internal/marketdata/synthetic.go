package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
)

// SyntheticProvider генерирует детерминированные котировки без внешних
// зависимостей. Один и тот же (символ, часовой бакет) всегда дает одну
// и ту же цену — цикл воспроизводим в тестах и при отладке.
type SyntheticProvider struct {
	now func() time.Time
}

// NewSyntheticProvider создает синтетический генератор
func NewSyntheticProvider() *SyntheticProvider {
	return &SyntheticProvider{now: time.Now}
}

// NewSyntheticProviderAt создает генератор с фиксированными часами (для тестов)
func NewSyntheticProviderAt(now func() time.Time) *SyntheticProvider {
	return &SyntheticProvider{now: now}
}

// FetchSnapshot генерирует котировки для всех запрошенных символов
func (sp *SyntheticProvider) FetchSnapshot(ctx context.Context, symbols []string) (*SnapshotResult, error) {
	ts := sp.now()
	bucket := ts.Unix() / 3600

	quotes := make([]Quote, 0, len(symbols))
	for _, symbol := range symbols {
		quotes = append(quotes, syntheticQuote(symbol, bucket))
	}

	return &SnapshotResult{
		Source:    domain.SourceSynthetic,
		Quotes:    quotes,
		FetchedAt: ts,
	}, nil
}

// syntheticQuote строит котировку как случайное блуждание вокруг базовой
// цены символа. База и шум выводятся из хэша символа, шаг — из бакета.
func syntheticQuote(symbol string, bucket int64) Quote {
	base := basePrice(symbol)

	current := priceAt(symbol, base, bucket)
	previous := priceAt(symbol, base, bucket-24) // сутки назад

	change := current - previous
	changePercent := 0.0
	if previous > 0 {
		changePercent = change / previous * 100
	}

	rng := rand.New(rand.NewSource(seedFor(symbol) ^ bucket))
	volume := 500_000 + rng.Int63n(9_500_000)

	return Quote{
		Symbol:        symbol,
		Name:          symbol + " (synthetic)",
		Price:         round2(current),
		Change:        round2(change),
		ChangePercent: round2(changePercent),
		Volume:        volume,
	}
}

// priceAt возвращает цену символа в заданном бакете.
// Сумма приращений от фиксированной опорной точки, каждое приращение
// детерминировано своим (символ, бакет) сидом.
func priceAt(symbol string, base float64, bucket int64) float64 {
	const anchorBuckets = 24 * 120 // глубина блуждания: 120 суток

	price := base
	for b := bucket - anchorBuckets + 1; b <= bucket; b++ {
		rng := rand.New(rand.NewSource(seedFor(symbol) ^ b))
		// Шаг в пределах ±0.8% с легким возвратом к базе
		step := (rng.Float64()*2 - 1) * 0.008
		reversion := (base - price) / base * 0.01
		price *= 1 + step + reversion
	}
	if price < 1 {
		price = 1
	}
	return price
}

func basePrice(symbol string) float64 {
	h := seedFor(symbol)
	// Базовая цена в диапазоне $20–$520
	return 20 + float64(h%500)
}

func seedFor(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64() & math.MaxInt64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
