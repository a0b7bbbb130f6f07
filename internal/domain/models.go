package domain

import "time"

// Agent представляет независимого AI-трейдера со своим балансом
type Agent struct {
	ID            int64     `db:"id"`
	Name          string    `db:"name"`
	ModelLabel    string    `db:"model_label"`
	CashBalance   float64   `db:"cash_balance"`
	AccountValue  float64   `db:"account_value"`
	StartingValue float64   `db:"starting_value"`
	BrokerTag     string    `db:"broker_tag"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Position представляет открытую позицию агента (LONG или SHORT)
type Position struct {
	ID           int64     `db:"id"`
	AgentID      int64     `db:"agent_id"`
	Symbol       string    `db:"symbol"`
	Side         string    `db:"side"` // "LONG" or "SHORT"
	Quantity     float64   `db:"quantity"`
	EntryPrice   float64   `db:"entry_price"`
	CurrentPrice float64   `db:"current_price"`
	TargetPrice  float64   `db:"target_price"`
	StopLoss     float64   `db:"stop_loss"`
	Invalidation string    `db:"invalidation"` // качественное условие выхода, plain text
	OpenedAt     time.Time `db:"opened_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// UnrealizedPnL возвращает нереализованный P&L по текущей цене
func (p *Position) UnrealizedPnL() float64 {
	if p.Side == SideShort {
		return (p.EntryPrice - p.CurrentPrice) * p.Quantity
	}
	return (p.CurrentPrice - p.EntryPrice) * p.Quantity
}

// UnrealizedPnLPercent возвращает нереализованный P&L в процентах от входа
func (p *Position) UnrealizedPnLPercent() float64 {
	invested := p.EntryPrice * p.Quantity
	if invested <= 0 {
		return 0
	}
	return p.UnrealizedPnL() / invested * 100
}

// MarketValue возвращает стоимость позиции по рынку
func (p *Position) MarketValue() float64 {
	return p.Quantity * p.CurrentPrice
}

// EquityValue вклад позиции в стоимость счета: LONG добавляет рыночную
// стоимость, SHORT вычитает обязательство по откупу. Инвариант:
// account_value = cash_balance + сумма EquityValue по всем позициям.
func (p *Position) EquityValue() float64 {
	if p.Side == SideShort {
		return -p.MarketValue()
	}
	return p.MarketValue()
}

// Trade представляет завершенное исполнение (append-only)
type Trade struct {
	ID          int64     `db:"id"`
	AgentID     int64     `db:"agent_id"`
	Action      string    `db:"action"` // BUY, SELL, SELL_SHORT, BUY_TO_COVER
	Symbol      string    `db:"symbol"`
	Quantity    float64   `db:"quantity"`
	Price       float64   `db:"price"`
	Total       float64   `db:"total"`
	Commission  float64   `db:"commission"`
	RealizedPnL *float64  `db:"realized_pnl"` // только для закрывающих сделок
	Reasoning   string    `db:"reasoning"`
	Confidence  float64   `db:"confidence"`
	Success     bool      `db:"success"`
	CreatedAt   time.Time `db:"created_at"`
}

// Decision представляет решение AI за цикл (append-only, включая отклоненные)
type Decision struct {
	ID             int64     `db:"id"`
	AgentID        int64     `db:"agent_id"`
	Action         string    `db:"action"`
	Symbol         string    `db:"symbol"`
	Quantity       float64   `db:"quantity"`
	Confidence     float64   `db:"confidence"`
	Reasoning      string    `db:"reasoning"`
	RiskAssessment string    `db:"risk_assessment"`
	TargetPrice    float64   `db:"target_price"`
	StopLoss       float64   `db:"stop_loss"`
	Executed       bool      `db:"executed"`
	RejectReason   string    `db:"reject_reason"`
	MarketSnapshot string    `db:"market_snapshot"` // JSON рынка на момент решения
	CreatedAt      time.Time `db:"created_at"`
}

// PerformancePoint точка временного ряда стоимости счета агента
type PerformancePoint struct {
	ID           int64     `db:"id"`
	AgentID      int64     `db:"agent_id"`
	AccountValue float64   `db:"account_value"`
	CreatedAt    time.Time `db:"created_at"`
}

// StockPrice исторический тик цены, хранится >= 90 дней
type StockPrice struct {
	ID        int64     `db:"id"`
	Symbol    string    `db:"symbol"`
	Price     float64   `db:"price"`
	Volume    int64     `db:"volume"`
	CreatedAt time.Time `db:"created_at"`
}
