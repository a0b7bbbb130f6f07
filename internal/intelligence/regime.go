package intelligence

import (
	"math"
	"sort"
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/marketdata"
)

// WindowSummary сводка рынка по одному временному окну
type WindowSummary struct {
	Window        string  `json:"window"`
	ReturnPercent float64 `json:"return_percent"`
	Volatility    float64 `json:"volatility"`
	MaxDrawdown   float64 `json:"max_drawdown"`
}

// Mover символ с наибольшим дневным движением
type Mover struct {
	Symbol        string  `json:"symbol"`
	ChangePercent float64 `json:"change_percent"`
}

// Assessment качественная оценка рыночного режима
type Assessment struct {
	Short  WindowSummary `json:"short"`  // 48h
	Medium WindowSummary `json:"medium"` // 30d
	Long   WindowSummary `json:"long"`   // 90d

	VolatilityLevel string `json:"volatility_level"` // low | normal | elevated | high
	Momentum        string `json:"momentum"`         // accelerating | steady | decelerating
	Regime          string `json:"regime"`           // bull | bear | choppy | transitioning
	Phase           string `json:"phase"`            // 8-way классификация
	Strategy        string `json:"strategy"`         // рекомендуемый архетип
	Confidence      int    `json:"confidence"`       // 20–90

	BiggestMovers []Mover           `json:"biggest_movers"`
	SectorLeaders map[string]string `json:"sector_leaders"`
}

// Config пороги step-функций. Это эвристика, не статистическая модель:
// значения — конфигурационные дефолты, но бонусы монотонны
// (больше согласованности и ниже волатильность никогда не снижают
// итоговый confidence).
type Config struct {
	VolNormal   float64 // ниже — low
	VolElevated float64 // ниже — normal
	VolHigh     float64 // ниже — elevated, выше — high

	MomentumThreshold float64 // |48h return| для accelerating/decelerating

	BullThreshold   float64 // 30d return для bull
	BearThreshold   float64 // 30d return для bear
	ChoppyThreshold float64 // |30d return| ниже — choppy

	AlignmentBonusFull    int
	AlignmentBonusPartial int
	VolBonusLow           int
	VolBonusNormal        int
	VolPenaltyElevated    int
	VolPenaltyHigh        int
	MomentumBonus         int
	MomentumPenalty       int
}

// DefaultConfig возвращает пороги по умолчанию
func DefaultConfig() Config {
	return Config{
		VolNormal:   1.0,
		VolElevated: 2.0,
		VolHigh:     3.5,

		MomentumThreshold: 1.5,

		BullThreshold:   5.0,
		BearThreshold:   -5.0,
		ChoppyThreshold: 2.0,

		AlignmentBonusFull:    15,
		AlignmentBonusPartial: 5,
		VolBonusLow:           10,
		VolBonusNormal:        5,
		VolPenaltyElevated:    5,
		VolPenaltyHigh:        15,
		MomentumBonus:         10,
		MomentumPenalty:       10,
	}
}

// sectorOf грубая карта секторов для дефолтной вселенной символов
var sectorOf = map[string]string{
	"AAPL": "tech", "MSFT": "tech", "GOOGL": "tech", "NVDA": "tech", "META": "tech",
	"AMZN": "consumer", "TSLA": "consumer",
	"JPM": "finance", "V": "finance",
	"UNH": "health",
}

// Assess строит оценку режима по истории цен и текущим котировкам
func Assess(history map[string][]domain.StockPrice, quotes []marketdata.Quote, cfg Config, now time.Time) *Assessment {
	a := &Assessment{
		Short:  summarize("48h", history, now.Add(-48*time.Hour)),
		Medium: summarize("30d", history, now.AddDate(0, 0, -30)),
		Long:   summarize("90d", history, now.AddDate(0, 0, -90)),
	}

	a.VolatilityLevel = volatilityLevel(a.Medium.Volatility, cfg)
	a.Momentum = momentum(a.Short.ReturnPercent, cfg)
	a.Regime = regime(a.Medium.ReturnPercent, cfg)
	a.Phase = phase(a.Long.ReturnPercent, a.Long.MaxDrawdown)
	a.Strategy = strategyFor(a.Regime, a.VolatilityLevel)
	a.Confidence = confidence(a, cfg)
	a.BiggestMovers = biggestMovers(quotes, 3)
	a.SectorLeaders = sectorLeaders(quotes)

	return a
}

// summarize считает сводку окна на равновзвешенном индексе:
// по каждому символу берутся return/волатильность/просадка, затем среднее
func summarize(window string, history map[string][]domain.StockPrice, since time.Time) WindowSummary {
	s := WindowSummary{Window: window}

	var retSum, volSum, ddSum float64
	symbols := 0

	for _, ticks := range history {
		prices := pricesSince(ticks, since)
		if len(prices) < 2 {
			continue
		}
		symbols++
		retSum += (prices[len(prices)-1] - prices[0]) / prices[0] * 100
		volSum += stddevReturns(prices) * 100
		ddSum += maxDrawdown(prices)
	}

	if symbols == 0 {
		return s
	}

	s.ReturnPercent = retSum / float64(symbols)
	s.Volatility = volSum / float64(symbols)
	s.MaxDrawdown = ddSum / float64(symbols)
	return s
}

func pricesSince(ticks []domain.StockPrice, since time.Time) []float64 {
	var prices []float64
	for _, t := range ticks {
		if t.CreatedAt.Before(since) || t.Price <= 0 {
			continue
		}
		prices = append(prices, t.Price)
	}
	return prices
}

func stddevReturns(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance)
}

// maxDrawdown возвращает максимальную просадку пик-впадина в процентах
func maxDrawdown(prices []float64) float64 {
	peak := prices[0]
	dd := 0.0
	for _, p := range prices {
		if p > peak {
			peak = p
		}
		if peak > 0 {
			drop := (peak - p) / peak * 100
			if drop > dd {
				dd = drop
			}
		}
	}
	return dd
}

func volatilityLevel(vol float64, cfg Config) string {
	switch {
	case vol < cfg.VolNormal:
		return domain.VolatilityLow
	case vol < cfg.VolElevated:
		return domain.VolatilityNormal
	case vol < cfg.VolHigh:
		return domain.VolatilityElevated
	default:
		return domain.VolatilityHigh
	}
}

func momentum(shortReturn float64, cfg Config) string {
	switch {
	case shortReturn >= cfg.MomentumThreshold:
		return domain.MomentumAccelerating
	case shortReturn <= -cfg.MomentumThreshold:
		return domain.MomentumDecelerating
	default:
		return domain.MomentumSteady
	}
}

func regime(mediumReturn float64, cfg Config) string {
	switch {
	case mediumReturn >= cfg.BullThreshold:
		return domain.RegimeBull
	case mediumReturn <= cfg.BearThreshold:
		return domain.RegimeBear
	case math.Abs(mediumReturn) < cfg.ChoppyThreshold:
		return domain.RegimeChoppy
	default:
		return domain.RegimeTransitioning
	}
}

// phase совместная классификация по 90-дневному return и просадке
func phase(longReturn, drawdown float64) string {
	switch {
	case longReturn >= 15 && drawdown < 10:
		return "strong_uptrend"
	case longReturn >= 5 && drawdown < 15:
		return "uptrend"
	case longReturn >= 5:
		return "volatile_uptrend"
	case longReturn <= -15 && drawdown >= 20:
		return "capitulation"
	case longReturn <= -5 && drawdown < 15:
		return "downtrend"
	case longReturn <= -5:
		return "volatile_downtrend"
	case drawdown >= 15:
		return "correction"
	default:
		return "consolidation"
	}
}

func strategyFor(regime, volatility string) string {
	switch {
	case regime == domain.RegimeBull && (volatility == domain.VolatilityLow || volatility == domain.VolatilityNormal):
		return "momentum"
	case regime == domain.RegimeBull:
		return "trend_following"
	case regime == domain.RegimeBear:
		return "defensive"
	case regime == domain.RegimeChoppy:
		return "mean_reversion"
	default:
		return "balanced"
	}
}

// confidence собирает оценку 20–90 из фиксированных бонусов.
// Базовая точка 50; согласованность окон и низкая волатильность
// только добавляют, их противоположности только вычитают.
func confidence(a *Assessment, cfg Config) int {
	score := 50

	aligned := sameSign(a.Short.ReturnPercent, a.Medium.ReturnPercent, a.Long.ReturnPercent)
	switch aligned {
	case 3:
		score += cfg.AlignmentBonusFull
	case 2:
		score += cfg.AlignmentBonusPartial
	}

	switch a.VolatilityLevel {
	case domain.VolatilityLow:
		score += cfg.VolBonusLow
	case domain.VolatilityNormal:
		score += cfg.VolBonusNormal
	case domain.VolatilityElevated:
		score -= cfg.VolPenaltyElevated
	case domain.VolatilityHigh:
		score -= cfg.VolPenaltyHigh
	}

	switch a.Momentum {
	case domain.MomentumAccelerating:
		score += cfg.MomentumBonus
	case domain.MomentumDecelerating:
		score -= cfg.MomentumPenalty
	}

	if score < 20 {
		score = 20
	}
	if score > 90 {
		score = 90
	}
	return score
}

// sameSign возвращает размер наибольшей группы окон с одним знаком return
func sameSign(values ...float64) int {
	pos, neg := 0, 0
	for _, v := range values {
		if v > 0 {
			pos++
		} else if v < 0 {
			neg++
		}
	}
	if pos > neg {
		return pos
	}
	return neg
}

func biggestMovers(quotes []marketdata.Quote, limit int) []Mover {
	movers := make([]Mover, 0, len(quotes))
	for _, q := range quotes {
		movers = append(movers, Mover{Symbol: q.Symbol, ChangePercent: q.ChangePercent})
	}
	sort.Slice(movers, func(i, j int) bool {
		return math.Abs(movers[i].ChangePercent) > math.Abs(movers[j].ChangePercent)
	})
	if len(movers) > limit {
		movers = movers[:limit]
	}
	return movers
}

func sectorLeaders(quotes []marketdata.Quote) map[string]string {
	best := map[string]marketdata.Quote{}
	for _, q := range quotes {
		sector, ok := sectorOf[q.Symbol]
		if !ok {
			sector = "other"
		}
		if cur, ok := best[sector]; !ok || q.ChangePercent > cur.ChangePercent {
			best[sector] = q
		}
	}

	leaders := make(map[string]string, len(best))
	for sector, q := range best {
		leaders[sector] = q.Symbol
	}
	return leaders
}
