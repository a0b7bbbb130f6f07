package domain

// Trade actions
const (
	ActionBuy        = "BUY"
	ActionSell       = "SELL"
	ActionSellShort  = "SELL_SHORT"
	ActionBuyToCover = "BUY_TO_COVER"
	ActionHold       = "HOLD"
)

// Position sides
const (
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// Severity levels for safety verdicts
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Market regimes
const (
	RegimeBull          = "bull"
	RegimeBear          = "bear"
	RegimeChoppy        = "choppy"
	RegimeTransitioning = "transitioning"
)

// Volatility levels
const (
	VolatilityLow      = "low"
	VolatilityNormal   = "normal"
	VolatilityElevated = "elevated"
	VolatilityHigh     = "high"
)

// Momentum states
const (
	MomentumAccelerating = "accelerating"
	MomentumSteady       = "steady"
	MomentumDecelerating = "decelerating"
)

// Volume buckets
const (
	VolumeHigh   = "high"
	VolumeLow    = "low"
	VolumeNormal = "normal"
)

// Snapshot sources
const (
	SourceLive      = "live"
	SourceSynthetic = "synthetic"
)

// IsEntry сообщает, открывает ли действие экспозицию
func IsEntry(action string) bool {
	return action == ActionBuy || action == ActionSellShort
}

// IsExit сообщает, закрывает ли действие экспозицию
func IsExit(action string) bool {
	return action == ActionSell || action == ActionBuyToCover
}

// ValidActions перечисляет допустимые действия решения
var ValidActions = map[string]bool{
	ActionBuy:        true,
	ActionSell:       true,
	ActionSellShort:  true,
	ActionBuyToCover: true,
	ActionHold:       true,
}
