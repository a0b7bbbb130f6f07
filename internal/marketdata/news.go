package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/kirillm/agent-arena/pkg/utils"
)

// NewsItem новость по символу для контекста решения
type NewsItem struct {
	Symbol   string    `json:"symbol"`
	Headline string    `json:"headline"`
	Summary  string    `json:"summary"`
	Source   string    `json:"source"`
	URL      string    `json:"url"`
	Datetime time.Time `json:"datetime"`
}

// NewsFetcher возвращает свежие новости для списка символов.
// Деградирует к пустому списку — ошибки провайдера не поднимаются выше.
type NewsFetcher interface {
	FetchNews(ctx context.Context, symbols []string) []NewsItem
}

type finnhubArticle struct {
	Category string `json:"category"`
	DateTime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// FinnhubNewsFetcher получает новости компаний через Finnhub API
type FinnhubNewsFetcher struct {
	client       *resty.Client
	limiter      *rate.Limiter
	apiKey       string
	logger       *utils.Logger
	maxPerSymbol int
}

// NewFinnhubNewsFetcher создает клиент новостей.
// Пустой apiKey допустим: FetchNews будет возвращать пустой список.
func NewFinnhubNewsFetcher(baseURL, apiKey string, requestsPerSecond float64, logger *utils.Logger) *FinnhubNewsFetcher {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)

	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}

	return &FinnhubNewsFetcher{
		client:       client,
		limiter:      rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		apiKey:       apiKey,
		logger:       logger.WithPrefix("news"),
		maxPerSymbol: 3,
	}
}

// FetchNews возвращает новости за последние сутки для каждого символа.
// Любая ошибка по символу — символ пропускается.
func (nf *FinnhubNewsFetcher) FetchNews(ctx context.Context, symbols []string) []NewsItem {
	if nf.apiKey == "" {
		return nil
	}

	to := time.Now()
	from := to.Add(-24 * time.Hour)

	var items []NewsItem
	for _, symbol := range symbols {
		if err := nf.limiter.Wait(ctx); err != nil {
			nf.logger.Warn("News rate limiter: %v", err)
			return items
		}

		articles, err := nf.fetchCompanyNews(symbol, from, to)
		if err != nil {
			nf.logger.Warn("Failed to fetch news for %s: %v, skipping", symbol, err)
			continue
		}

		for i, a := range articles {
			if i >= nf.maxPerSymbol {
				break
			}
			items = append(items, NewsItem{
				Symbol:   symbol,
				Headline: a.Headline,
				Summary:  a.Summary,
				Source:   a.Source,
				URL:      a.URL,
				Datetime: time.Unix(a.DateTime, 0),
			})
		}
	}

	return items
}

func (nf *FinnhubNewsFetcher) fetchCompanyNews(symbol string, from, to time.Time) ([]finnhubArticle, error) {
	resp, err := nf.client.R().
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"from":   from.Format("2006-01-02"),
			"to":     to.Format("2006-01-02"),
			"token":  nf.apiKey,
		}).
		Get("/company-news")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String())
	}

	var articles []finnhubArticle
	if err := json.Unmarshal(resp.Body(), &articles); err != nil {
		return nil, fmt.Errorf("failed to parse news response: %w", err)
	}

	return articles, nil
}
