package safety

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// SizingTier ступень отображения confidence -> доля кэша
type SizingTier struct {
	MinConfidence float64 `yaml:"min_confidence"`
	CashFraction  float64 `yaml:"cash_fraction"`
}

// Limits неизменяемый набор ограничений риска. Загружается один раз
// и передается в validator и engine при конструировании — никакого
// глобального мутабельного состояния, тесты подставляют свои значения.
type Limits struct {
	ProfileName string `yaml:"-"`

	ManualApprovalRequired bool    `yaml:"manual_approval_required"`
	MaxSingleTradeValue    float64 `yaml:"max_single_trade_value"`
	MaxAgentDailyLoss      float64 `yaml:"max_agent_daily_loss"`
	MaxDayTrades           int     `yaml:"max_day_trades"`
	MaxAccountValue        float64 `yaml:"max_account_value"`
	MaxSystemDailyLoss     float64 `yaml:"max_system_daily_loss"`
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures"`

	MinConfidence float64      `yaml:"min_confidence"`
	SizingTiers   []SizingTier `yaml:"sizing_tiers"`
}

// DefaultLimits возвращает умеренный профиль (для тестов и фейловера)
func DefaultLimits() Limits {
	return Limits{
		ProfileName:            "moderate",
		MaxSingleTradeValue:    10000,
		MaxAgentDailyLoss:      500,
		MaxDayTrades:           3,
		MaxAccountValue:        100000,
		MaxSystemDailyLoss:     2000,
		MaxConsecutiveFailures: 5,
		MinConfidence:          0.7,
		SizingTiers: []SizingTier{
			{MinConfidence: 0.9, CashFraction: 0.25},
			{MinConfidence: 0.8, CashFraction: 0.20},
			{MinConfidence: 0.7, CashFraction: 0.15},
		},
	}
}

// LoadLimits загружает профиль ограничений из YAML
func LoadLimits(path, profileName string) (Limits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Limits{}, fmt.Errorf("failed to read safety profiles: %w", err)
	}

	var config struct {
		SafetyProfiles map[string]Limits `yaml:"safety_profiles"`
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Limits{}, fmt.Errorf("failed to parse safety profiles: %w", err)
	}

	limits, ok := config.SafetyProfiles[profileName]
	if !ok {
		return Limits{}, fmt.Errorf("safety profile %s not found", profileName)
	}

	limits.ProfileName = profileName
	if err := limits.Validate(); err != nil {
		return Limits{}, err
	}

	return limits, nil
}

// Validate проверяет согласованность профиля
func (l *Limits) Validate() error {
	if l.MaxSingleTradeValue <= 0 {
		return fmt.Errorf("max_single_trade_value must be positive")
	}
	if l.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("max_consecutive_failures must be positive")
	}
	if len(l.SizingTiers) == 0 {
		return fmt.Errorf("sizing_tiers must not be empty")
	}
	for _, tier := range l.SizingTiers {
		if tier.CashFraction <= 0 || tier.CashFraction > 1 {
			return fmt.Errorf("sizing tier cash_fraction must be in (0, 1]")
		}
	}
	return nil
}

// CashFractionFor возвращает долю кэша для данного confidence.
// Ниже минимального порога — 0 (сделка отклоняется целиком).
func (l *Limits) CashFractionFor(confidence float64) float64 {
	if confidence < l.MinConfidence {
		return 0
	}

	// Ступени сортируются по убыванию порога, берется первая подошедшая
	tiers := make([]SizingTier, len(l.SizingTiers))
	copy(tiers, l.SizingTiers)
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].MinConfidence > tiers[j].MinConfidence
	})

	for _, tier := range tiers {
		if confidence >= tier.MinConfidence {
			return tier.CashFraction
		}
	}
	return 0
}
