package safety

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/events"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// TradeHistory читающий доступ к истории сделок для проверок.
// Агрегаты читаются консистентным запросом, без удерживаемых локов —
// слегка устаревшее системное состояние между агентами допустимо.
type TradeHistory interface {
	AgentRealizedPnLSince(ctx context.Context, agentID int64, since time.Time) (float64, error)
	SystemRealizedPnLSince(ctx context.Context, since time.Time) (float64, error)
	AgentTradesSince(ctx context.Context, agentID int64, since time.Time) ([]domain.Trade, error)
	RecentTrades(ctx context.Context, limit int) ([]domain.Trade, error)
}

// Proposal предлагаемая сделка до любой мутации состояния
type Proposal struct {
	Agent    *domain.Agent
	Action   string
	Symbol   string
	Quantity float64
	Price    float64
}

// Value возвращает номинал сделки
func (p *Proposal) Value() float64 {
	return p.Quantity * p.Price
}

// Verdict результат проверки: allow/deny + причина + severity
type Verdict struct {
	Allowed  bool
	Check    string // имя сработавшей проверки (пустое при allow)
	Reason   string
	Severity string // info | warning | critical
}

func allow() *Verdict {
	return &Verdict{Allowed: true, Severity: domain.SeverityInfo}
}

func deny(check, severity, format string, args ...interface{}) *Verdict {
	return &Verdict{
		Allowed:  false,
		Check:    check,
		Reason:   fmt.Sprintf(format, args...),
		Severity: severity,
	}
}

// Check именованная предикатная проверка. Возвращает nil если проверка
// пройдена. Проверки выполняются по порядку, первая сработавшая
// останавливает цепочку (fail-fast) — каждая тестируется независимо,
// порядок задается при конструировании.
type Check struct {
	Name string
	Run  func(ctx context.Context, p *Proposal) (*Verdict, error)
}

// Validator гейт проверок перед исполнением. Stateless между вызовами,
// читает только историю сделок; лимиты неизменяемы после создания.
type Validator struct {
	limits   Limits
	history  TradeHistory
	checks   []Check
	observer events.Observer
	logger   *utils.Logger
	now      func() time.Time
}

// NewValidator создает validator со стандартным порядком проверок
func NewValidator(limits Limits, history TradeHistory, observer events.Observer, logger *utils.Logger) *Validator {
	v := &Validator{
		limits:   limits,
		history:  history,
		observer: observer,
		logger:   logger.WithPrefix("safety"),
		now:      time.Now,
	}
	v.checks = []Check{
		{Name: "manual_approval", Run: v.checkManualApproval},
		{Name: "single_trade_cap", Run: v.checkSingleTradeCap},
		{Name: "agent_daily_loss", Run: v.checkAgentDailyLoss},
		{Name: "pattern_day_trades", Run: v.checkPatternDayTrades},
		{Name: "account_value_cap", Run: v.checkAccountValueCap},
		{Name: "system_daily_loss", Run: v.checkSystemDailyLoss},
		{Name: "consecutive_failures", Run: v.checkConsecutiveFailures},
	}
	return v
}

// Validate прогоняет предложение через цепочку проверок.
// Любой deny логируется до возврата; critical дополнительно уходит
// наблюдателям как системный алерт.
func (v *Validator) Validate(ctx context.Context, p *Proposal) (*Verdict, error) {
	for _, check := range v.checks {
		verdict, err := check.Run(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("safety check %s: %w", check.Name, err)
		}
		if verdict != nil && !verdict.Allowed {
			v.reportDenial(p, verdict)
			return verdict, nil
		}
	}
	return allow(), nil
}

func (v *Validator) reportDenial(p *Proposal, verdict *Verdict) {
	switch verdict.Severity {
	case domain.SeverityCritical:
		v.logger.Error("⛔ [%s] %s %s for %s denied: %s", verdict.Check, p.Action, p.Symbol, p.Agent.Name, verdict.Reason)
	default:
		v.logger.Warn("🚫 [%s] %s %s for %s denied: %s", verdict.Check, p.Action, p.Symbol, p.Agent.Name, verdict.Reason)
	}

	if v.observer != nil {
		v.observer.SafetyDenial(events.SafetyDenial{
			AgentID:   p.Agent.ID,
			AgentName: p.Agent.Name,
			Check:     verdict.Check,
			Reason:    verdict.Reason,
			Severity:  verdict.Severity,
		})
	}
}

// 1. Ручное подтверждение: блокирует безусловно
func (v *Validator) checkManualApproval(ctx context.Context, p *Proposal) (*Verdict, error) {
	if v.limits.ManualApprovalRequired {
		return deny("manual_approval", domain.SeverityWarning,
			"manual approval required, autonomous trading disabled"), nil
	}
	return nil, nil
}

// 2. Номинал одной сделки
func (v *Validator) checkSingleTradeCap(ctx context.Context, p *Proposal) (*Verdict, error) {
	if p.Value() > v.limits.MaxSingleTradeValue {
		return deny("single_trade_cap", domain.SeverityWarning,
			"trade value $%.2f exceeds cap $%.2f", p.Value(), v.limits.MaxSingleTradeValue), nil
	}
	return nil, nil
}

// 3. Дневной убыток агента
func (v *Validator) checkAgentDailyLoss(ctx context.Context, p *Proposal) (*Verdict, error) {
	pnl, err := v.history.AgentRealizedPnLSince(ctx, p.Agent.ID, startOfDay(v.now()))
	if err != nil {
		return nil, err
	}
	if pnl < -v.limits.MaxAgentDailyLoss {
		return deny("agent_daily_loss", domain.SeverityCritical,
			"agent daily realized P&L $%.2f below floor -$%.2f", pnl, v.limits.MaxAgentDailyLoss), nil
	}
	return nil, nil
}

// 4. Pattern day trading (только BUY)
func (v *Validator) checkPatternDayTrades(ctx context.Context, p *Proposal) (*Verdict, error) {
	if p.Action != domain.ActionBuy {
		return nil, nil
	}
	since := startOfDay(v.now()).AddDate(0, 0, -4) // текущий день + 4 предыдущих
	trades, err := v.history.AgentTradesSince(ctx, p.Agent.ID, since)
	if err != nil {
		return nil, err
	}
	count := CountDayTrades(trades)
	if count >= v.limits.MaxDayTrades {
		return deny("pattern_day_trades", domain.SeverityCritical,
			"day trade count %d over trailing 5 days at limit %d", count, v.limits.MaxDayTrades), nil
	}
	return nil, nil
}

// 5. Потолок стоимости счета (только BUY)
func (v *Validator) checkAccountValueCap(ctx context.Context, p *Proposal) (*Verdict, error) {
	if p.Action != domain.ActionBuy {
		return nil, nil
	}
	resulting := p.Agent.AccountValue + p.Value()
	if resulting > v.limits.MaxAccountValue {
		return deny("account_value_cap", domain.SeverityWarning,
			"resulting account value $%.2f would exceed cap $%.2f", resulting, v.limits.MaxAccountValue), nil
	}
	return nil, nil
}

// 6. Системный дневной убыток: блокирует всех агентов
func (v *Validator) checkSystemDailyLoss(ctx context.Context, p *Proposal) (*Verdict, error) {
	pnl, err := v.history.SystemRealizedPnLSince(ctx, startOfDay(v.now()))
	if err != nil {
		return nil, err
	}
	if pnl < -v.limits.MaxSystemDailyLoss {
		return deny("system_daily_loss", domain.SeverityCritical,
			"system-wide daily realized P&L $%.2f below halt floor -$%.2f", pnl, v.limits.MaxSystemDailyLoss), nil
	}
	return nil, nil
}

// 7. Circuit breaker по подряд идущим ошибкам исполнения
func (v *Validator) checkConsecutiveFailures(ctx context.Context, p *Proposal) (*Verdict, error) {
	trades, err := v.history.RecentTrades(ctx, v.limits.MaxConsecutiveFailures)
	if err != nil {
		return nil, err
	}
	// trades идут от новых к старым; считаем до первой успешной
	failures := 0
	for _, t := range trades {
		if t.Success {
			break
		}
		failures++
	}
	if failures >= v.limits.MaxConsecutiveFailures {
		return deny("consecutive_failures", domain.SeverityCritical,
			"%d consecutive execution failures, circuit breaker open", failures), nil
	}
	return nil, nil
}

// CountDayTrades считает day-трейды: покупка и продажа (или шорт и
// откуп) одного символа в один календарный день. Стороны спариваются
// раздельно — BUY_TO_COVER закрывает шорт, не лонг. Неуспешные
// исполнения не меняют позицию и не учитываются. Каждая тройка
// (символ, день, сторона) считается не более одного раза.
func CountDayTrades(trades []domain.Trade) int {
	type key struct {
		symbol string
		day    string
		side   string
	}

	opens := map[key]time.Time{} // самое раннее открытие за день
	counted := map[key]bool{}

	// Сортировка не требуется: ищем для каждой тройки (символ, день,
	// сторона) открытие раньше закрытия
	closes := map[key][]time.Time{}
	recordOpen := func(k key, at time.Time) {
		if prev, ok := opens[k]; !ok || at.Before(prev) {
			opens[k] = at
		}
	}

	for _, t := range trades {
		if !t.Success {
			continue
		}
		k := key{symbol: t.Symbol, day: t.CreatedAt.Format("2006-01-02")}
		switch t.Action {
		case domain.ActionBuy:
			k.side = domain.SideLong
			recordOpen(k, t.CreatedAt)
		case domain.ActionSellShort:
			k.side = domain.SideShort
			recordOpen(k, t.CreatedAt)
		case domain.ActionSell:
			k.side = domain.SideLong
			closes[k] = append(closes[k], t.CreatedAt)
		case domain.ActionBuyToCover:
			k.side = domain.SideShort
			closes[k] = append(closes[k], t.CreatedAt)
		}
	}

	count := 0
	for k, openAt := range opens {
		if counted[k] {
			continue
		}
		for _, closeAt := range closes[k] {
			if closeAt.After(openAt) {
				counted[k] = true
				count++
				break
			}
		}
	}
	return count
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
