package enrichment

import (
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/marketdata"
)

// EnrichedQuote котировка, дополненная техническими индикаторами
type EnrichedQuote struct {
	marketdata.Quote
	WeekTrend   float64 `json:"week_trend"`   // % изменения к цене 7 дней назад
	MA7         float64 `json:"ma7"`          // простая средняя, до 7 дней истории
	MA30        float64 `json:"ma30"`         // простая средняя, до 30 дней истории
	VolumeClass string  `json:"volume_class"` // high | low | normal
}

// Config пороги классификации объема.
// Порог — доля от среднего объема за 30 дней.
type Config struct {
	HighVolumeRatio float64
	LowVolumeRatio  float64
}

// DefaultConfig возвращает пороги по умолчанию
func DefaultConfig() Config {
	return Config{
		HighVolumeRatio: 1.5,
		LowVolumeRatio:  0.5,
	}
}

// Enrich дополняет снапшот индикаторами из исторических цен.
// Функция чистая: не трогает хранилище и не фабрикует недостающую
// историю — при короткой истории средние считаются по доступным точкам,
// при пустой остаются нулевыми.
func Enrich(quotes []marketdata.Quote, history map[string][]domain.StockPrice, cfg Config, now time.Time) []EnrichedQuote {
	enriched := make([]EnrichedQuote, 0, len(quotes))

	for _, q := range quotes {
		ticks := history[q.Symbol]

		eq := EnrichedQuote{
			Quote:       q,
			WeekTrend:   weekTrend(q.Price, ticks, now),
			MA7:         movingAverage(ticks, now.AddDate(0, 0, -7)),
			MA30:        movingAverage(ticks, now.AddDate(0, 0, -30)),
			VolumeClass: classifyVolume(q.Volume, ticks, cfg),
		}
		enriched = append(enriched, eq)
	}

	return enriched
}

// weekTrend возвращает % изменения текущей цены к цене ~7 дней назад.
// Берется тик, ближайший к отметке 7 дней; без истории тренд нулевой.
func weekTrend(currentPrice float64, ticks []domain.StockPrice, now time.Time) float64 {
	target := now.AddDate(0, 0, -7)

	var ref *domain.StockPrice
	var bestDelta time.Duration
	for i := range ticks {
		delta := ticks[i].CreatedAt.Sub(target)
		if delta < 0 {
			delta = -delta
		}
		if ref == nil || delta < bestDelta {
			ref = &ticks[i]
			bestDelta = delta
		}
	}

	if ref == nil || ref.Price <= 0 {
		return 0
	}
	return (currentPrice - ref.Price) / ref.Price * 100
}

// movingAverage считает простую среднюю по тикам не старше since
func movingAverage(ticks []domain.StockPrice, since time.Time) float64 {
	sum := 0.0
	count := 0
	for _, t := range ticks {
		if t.CreatedAt.Before(since) {
			continue
		}
		sum += t.Price
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// classifyVolume относит текущий объем к бакету high/low/normal
// относительно среднего исторического объема
func classifyVolume(volume int64, ticks []domain.StockPrice, cfg Config) string {
	sum := int64(0)
	count := 0
	for _, t := range ticks {
		if t.Volume <= 0 {
			continue
		}
		sum += t.Volume
		count++
	}
	if count == 0 || volume <= 0 {
		return domain.VolumeNormal
	}

	avg := float64(sum) / float64(count)
	ratio := float64(volume) / avg

	switch {
	case ratio >= cfg.HighVolumeRatio:
		return domain.VolumeHigh
	case ratio <= cfg.LowVolumeRatio:
		return domain.VolumeLow
	default:
		return domain.VolumeNormal
	}
}
