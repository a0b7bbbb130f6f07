package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/quote"
	"golang.org/x/time/rate"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// Quote котировка одного символа из снапшота рынка
type Quote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
}

// SnapshotResult снапшот рынка с явной меткой источника данных.
// Метка позволяет тестам и операторам видеть, на каких данных
// принимались решения цикла (live или synthetic).
type SnapshotResult struct {
	Source    string // domain.SourceLive | domain.SourceSynthetic
	Quotes    []Quote
	FetchedAt time.Time
}

// Provider возвращает текущие котировки для вселенной символов
type Provider interface {
	FetchSnapshot(ctx context.Context, symbols []string) (*SnapshotResult, error)
}

// LiveProvider получает котировки из Yahoo Finance.
// Символы с ошибками опускаются, частично мусорные данные не смешиваются
// с валидными.
type LiveProvider struct {
	limiter *rate.Limiter
	logger  *utils.Logger
}

// NewLiveProvider создает live-провайдер с ограничением частоты запросов
func NewLiveProvider(requestsPerSecond float64, logger *utils.Logger) *LiveProvider {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 4
	}
	return &LiveProvider{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger.WithPrefix("marketdata"),
	}
}

// FetchSnapshot запрашивает котировки по одному символу за раз
func (lp *LiveProvider) FetchSnapshot(ctx context.Context, symbols []string) (*SnapshotResult, error) {
	quotes := make([]Quote, 0, len(symbols))

	for _, symbol := range symbols {
		if err := lp.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		q, err := quote.Get(symbol)
		if err != nil || q == nil {
			// Пропускаем символ с ошибкой, не фейлим весь снапшот
			lp.logger.Warn("Failed to get quote for %s: %v, skipping", symbol, err)
			continue
		}
		if q.RegularMarketPrice <= 0 {
			lp.logger.Warn("Quote for %s has no price, skipping", symbol)
			continue
		}

		quotes = append(quotes, Quote{
			Symbol:        symbol,
			Name:          q.ShortName,
			Price:         q.RegularMarketPrice,
			Change:        q.RegularMarketChange,
			ChangePercent: q.RegularMarketChangePercent,
			Volume:        int64(q.RegularMarketVolume),
		})
	}

	if len(quotes) == 0 {
		return nil, domain.ErrNoMarketData
	}

	return &SnapshotResult{
		Source:    domain.SourceLive,
		Quotes:    quotes,
		FetchedAt: time.Now(),
	}, nil
}

// FailoverProvider пробует live-источник и молча деградирует к synthetic.
// Деградация никогда не поднимается к вызывающему — цикл всегда получает
// валидный снапшот, а источник виден через метку Source.
type FailoverProvider struct {
	live      Provider
	synthetic *SyntheticProvider
	logger    *utils.Logger
}

// NewFailoverProvider собирает провайдер с фейловером.
// live может быть nil — тогда всегда используется synthetic.
func NewFailoverProvider(live Provider, synthetic *SyntheticProvider, logger *utils.Logger) *FailoverProvider {
	return &FailoverProvider{
		live:      live,
		synthetic: synthetic,
		logger:    logger.WithPrefix("marketdata"),
	}
}

// FetchSnapshot возвращает live-данные либо synthetic при любой ошибке
func (fp *FailoverProvider) FetchSnapshot(ctx context.Context, symbols []string) (*SnapshotResult, error) {
	if fp.live != nil {
		result, err := fp.live.FetchSnapshot(ctx, symbols)
		if err == nil {
			return result, nil
		}
		fp.logger.Warn("Live market data unavailable: %v, falling back to synthetic", err)
	}

	return fp.synthetic.FetchSnapshot(ctx, symbols)
}
