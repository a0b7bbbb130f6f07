package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillm/agent-arena/internal/ai"
	"github.com/kirillm/agent-arena/internal/config"
	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/enrichment"
	"github.com/kirillm/agent-arena/internal/events"
	"github.com/kirillm/agent-arena/internal/execution"
	"github.com/kirillm/agent-arena/internal/exits"
	"github.com/kirillm/agent-arena/internal/intelligence"
	"github.com/kirillm/agent-arena/internal/marketdata"
	"github.com/kirillm/agent-arena/internal/safety"
	"github.com/kirillm/agent-arena/internal/storage"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// глубина хранения истории цен
const priceRetention = 90 * 24 * time.Hour

// Storage доступ engine к персистентному состоянию арены
type Storage interface {
	Agents(ctx context.Context) ([]domain.Agent, error)
	PositionsByAgent(ctx context.Context, agentID int64) ([]domain.Position, error)
	UpdatePositionPrice(ctx context.Context, positionID int64, price float64) error
	UpdateAgentValue(ctx context.Context, agentID int64, cashBalance, accountValue float64) error
	ApplyTrade(ctx context.Context, app *storage.TradeApplication) error
	SaveTrade(ctx context.Context, trade *domain.Trade) error
	SaveDecision(ctx context.Context, decision *domain.Decision) error
	SavePerformancePoint(ctx context.Context, point *domain.PerformancePoint) error
	SaveStockPrices(ctx context.Context, prices []domain.StockPrice) error
	PriceHistorySince(ctx context.Context, symbols []string, since time.Time) (map[string][]domain.StockPrice, error)
	PruneStockPrices(ctx context.Context, olderThan time.Time) (int64, error)
	AgentStats(ctx context.Context, agentID int64) (wins, losses int, err error)
}

// DecisionMaker запрашивает торговое решение для агента
type DecisionMaker interface {
	RequestDecision(ctx context.Context, req ai.DecisionRequest) (*ai.DecisionResponse, error)
}

// SafetyGate проверяет предложенную сделку перед исполнением
type SafetyGate interface {
	Validate(ctx context.Context, p *safety.Proposal) (*safety.Verdict, error)
}

// Engine оркестратор торгового цикла. Все зависимости внедряются при
// конструировании и неизменяемы после.
type Engine struct {
	cfg       config.EngineConfig
	symbols   []string
	bigMover  float64
	limits    safety.Limits
	store     Storage
	provider  marketdata.Provider
	news      marketdata.NewsFetcher // nil => новости отключены
	decisions DecisionMaker
	validator SafetyGate
	broker    execution.Broker
	halt      *execution.HaltSwitch
	exits     *exits.Manager
	observer  events.Observer
	logger    *utils.Logger
	location  *time.Location
	now       func() time.Time

	running atomic.Bool
	cycleID atomic.Int64
}

// Deps зависимости engine
type Deps struct {
	Store     Storage
	Provider  marketdata.Provider
	News      marketdata.NewsFetcher
	Decisions DecisionMaker
	Validator SafetyGate
	Broker    execution.Broker
	Halt      *execution.HaltSwitch
	Exits     *exits.Manager
	Observer  events.Observer
	Logger    *utils.Logger
}

// NewEngine создает engine. Ошибка только при невалидной таймзоне.
func NewEngine(cfg config.EngineConfig, market config.MarketConfig, limits safety.Limits, deps Deps) (*Engine, error) {
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", cfg.Timezone, err)
	}

	return &Engine{
		cfg:       cfg,
		symbols:   market.Symbols,
		bigMover:  market.BigMoverPercent,
		limits:    limits,
		store:     deps.Store,
		provider:  deps.Provider,
		news:      deps.News,
		decisions: deps.Decisions,
		validator: deps.Validator,
		broker:    deps.Broker,
		halt:      deps.Halt,
		exits:     deps.Exits,
		observer:  deps.Observer,
		logger:    deps.Logger.WithPrefix("engine"),
		location:  location,
		now:       time.Now,
	}, nil
}

// MarketOpen проверяет торговые часы в настроенной таймзоне
func (e *Engine) MarketOpen(t time.Time) bool {
	local := t.In(e.location)
	if e.cfg.WeekdaysOnly {
		wd := local.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	hour := local.Hour()
	return hour >= e.cfg.MarketOpenHour && hour < e.cfg.MarketCloseHour
}

// RunCycle выполняет один торговый цикл. force игнорирует торговые часы
// (ручной запуск через API/CLI).
//
// Одновременно выполняется не более одного цикла: повторный запуск
// возвращает ErrCycleInProgress, не ждет.
func (e *Engine) RunCycle(ctx context.Context, force bool) error {
	if !e.running.CompareAndSwap(false, true) {
		return domain.ErrCycleInProgress
	}
	defer e.running.Store(false)

	startedAt := e.now()
	if !force && !e.MarketOpen(startedAt) {
		e.logger.Info("⏸ Market closed, skipping cycle")
		return domain.ErrMarketClosed
	}

	cycleID := e.cycleID.Add(1)
	e.logger.Info("🔄 Cycle %d started", cycleID)

	snapshot, err := e.provider.FetchSnapshot(ctx, e.symbols)
	if err != nil {
		e.observer.CycleFinished(cycleID, 0, err)
		return fmt.Errorf("fetch market snapshot: %w", err)
	}
	e.observer.CycleStarted(cycleID, snapshot.Source, startedAt)

	market, assessment, news := e.prepareMarketContext(ctx, snapshot)

	agents, err := e.store.Agents(ctx)
	if err != nil {
		e.observer.CycleFinished(cycleID, 0, err)
		return fmt.Errorf("load agents: %w", err)
	}

	quotes := quotesBySymbol(snapshot.Quotes)

	// Агенты обрабатываются параллельно и изолированно: паника или
	// ошибка одного не трогает остальных. Каждая горутина мутирует свой
	// элемент среза — recordPerformance видит значения после цикла.
	var wg sync.WaitGroup
	for i := range agents {
		agent := &agents[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("💥 Agent %s panicked: %v", agent.Name, r)
					e.observer.AgentOutcome(events.AgentOutcome{
						CycleID:   cycleID,
						AgentID:   agent.ID,
						AgentName: agent.Name,
						Err:       fmt.Errorf("panic: %v", r),
					})
				}
			}()
			e.processAgent(ctx, cycleID, agent, quotes, market, assessment, news)
		}()
	}
	wg.Wait()

	e.recordPerformance(ctx, agents)

	e.logger.Info("✅ Cycle %d finished: %d agents, source=%s", cycleID, len(agents), snapshot.Source)
	e.observer.CycleFinished(cycleID, len(agents), nil)
	return nil
}

// prepareMarketContext сохраняет тики, обогащает котировки и строит
// оценку режима рынка. Ошибки истории деградируют до пустой истории —
// обогащение никогда не выдумывает данные, которых нет.
func (e *Engine) prepareMarketContext(ctx context.Context, snapshot *marketdata.SnapshotResult) ([]enrichment.EnrichedQuote, *intelligence.Assessment, []marketdata.NewsItem) {
	now := e.now()

	ticks := make([]domain.StockPrice, 0, len(snapshot.Quotes))
	for _, q := range snapshot.Quotes {
		ticks = append(ticks, domain.StockPrice{Symbol: q.Symbol, Price: q.Price, Volume: q.Volume, CreatedAt: snapshot.FetchedAt})
	}
	if err := e.store.SaveStockPrices(ctx, ticks); err != nil {
		e.logger.Error("Failed to persist price ticks: %v", err)
	}
	if pruned, err := e.store.PruneStockPrices(ctx, now.Add(-priceRetention)); err != nil {
		e.logger.Warn("Failed to prune old ticks: %v", err)
	} else if pruned > 0 {
		e.logger.Debug("Pruned %d old price ticks", pruned)
	}

	history, err := e.store.PriceHistorySince(ctx, e.symbols, now.Add(-priceRetention))
	if err != nil {
		e.logger.Error("Failed to load price history: %v", err)
		history = map[string][]domain.StockPrice{}
	}

	market := enrichment.Enrich(snapshot.Quotes, history, enrichment.DefaultConfig(), now)
	assessment := intelligence.Assess(history, snapshot.Quotes, intelligence.DefaultConfig(), now)

	var news []marketdata.NewsItem
	if e.news != nil {
		if movers := bigMovers(snapshot.Quotes, e.bigMover); len(movers) > 0 {
			news = e.news.FetchNews(ctx, movers)
		}
	}

	return market, assessment, news
}

// processAgent обрабатывает одного агента: mark-to-market, принудительные
// выходы, решение AI, safety, исполнение. Ровно одна запись Decision
// за цикл — что бы ни случилось.
func (e *Engine) processAgent(ctx context.Context, cycleID int64, agent *domain.Agent, quotes map[string]marketdata.Quote, market []enrichment.EnrichedQuote, assessment *intelligence.Assessment, news []marketdata.NewsItem) {
	positions, err := e.store.PositionsByAgent(ctx, agent.ID)
	if err != nil {
		e.logger.Error("Failed to load positions for %s: %v", agent.Name, err)
		e.observer.AgentOutcome(events.AgentOutcome{CycleID: cycleID, AgentID: agent.ID, AgentName: agent.Name, Err: err})
		return
	}

	positions = e.markToMarket(ctx, positions, quotes)

	// Принудительные выходы до любого решения AI
	positions = e.runExits(ctx, agent, positions, quotes)

	e.syncAccountValue(ctx, agent, positions)

	decision, decisionErr := e.requestDecision(ctx, agent, positions, market, assessment, news)
	if decisionErr != nil {
		e.logger.Warn("Decision degraded for %s: %v", agent.Name, decisionErr)
	}

	record := e.buildDecisionRecord(agent, decision, market)
	outcome := e.executeDecision(ctx, agent, positions, quotes, decision, record)

	if err := e.store.SaveDecision(ctx, record); err != nil {
		e.logger.Error("Failed to record decision for %s: %v", agent.Name, err)
	}

	outcome.CycleID = cycleID
	e.observer.AgentOutcome(outcome)
}

// markToMarket обновляет текущие цены позиций по снапшоту
func (e *Engine) markToMarket(ctx context.Context, positions []domain.Position, quotes map[string]marketdata.Quote) []domain.Position {
	for i := range positions {
		q, ok := quotes[positions[i].Symbol]
		if !ok {
			continue
		}
		positions[i].CurrentPrice = q.Price
		if err := e.store.UpdatePositionPrice(ctx, positions[i].ID, q.Price); err != nil {
			e.logger.Warn("Failed to mark position %d to market: %v", positions[i].ID, err)
		}
	}
	return positions
}

// runExits закрывает позиции со сработавшими target/stop и возвращает
// оставшиеся открытые позиции
func (e *Engine) runExits(ctx context.Context, agent *domain.Agent, positions []domain.Position, quotes map[string]marketdata.Quote) []domain.Position {
	triggered := e.exits.Check(positions, quotes)
	if len(triggered) == 0 {
		return positions
	}

	open := positions
	for _, exit := range triggered {
		action := domain.ActionSell
		if exit.Position.Side == domain.SideShort {
			action = domain.ActionBuyToCover
		}

		fill, err := e.broker.ExecuteOrder(ctx, execution.FillRequest{
			Action:         action,
			Symbol:         exit.Position.Symbol,
			Quantity:       exit.Position.Quantity,
			ReferencePrice: exit.Price,
		})
		if err != nil || !fill.Success {
			e.logger.Error("Forced exit %s %s failed: %v", action, exit.Position.Symbol, err)
			continue
		}
		// Принудительный выход закрывает позицию целиком
		fill.ExecutedQuantity = exit.Position.Quantity

		existing := exit.Position
		change, err := applyFill(agent, &existing, action, exit.Position.Symbol, fill, ExitParams{})
		if err != nil {
			e.logger.Error("Forced exit apply failed for %s: %v", exit.Position.Symbol, err)
			continue
		}

		trade := &domain.Trade{
			AgentID:     agent.ID,
			Action:      action,
			Symbol:      exit.Position.Symbol,
			Quantity:    fill.ExecutedQuantity,
			Price:       fill.ExecutedPrice,
			Total:       fill.Total(),
			Commission:  fill.Commission,
			RealizedPnL: change.RealizedPnL,
			Reasoning:   fmt.Sprintf("forced exit: %s", exit.Reason),
			Confidence:  1,
			Success:     true,
		}

		if err := e.applyChange(ctx, agent, open, change, trade); err != nil {
			e.logger.Error("Forced exit persist failed for %s: %v", exit.Position.Symbol, err)
			continue
		}

		open = withoutPosition(open, exit.Position.ID)
		e.observer.ExitTriggered(events.ExitEvent{
			AgentID: agent.ID,
			Symbol:  exit.Position.Symbol,
			Side:    exit.Position.Side,
			Trigger: exit.Trigger,
			Price:   fill.ExecutedPrice,
		})
	}

	return open
}

// withoutPosition возвращает копию среза без позиции с данным id
func withoutPosition(positions []domain.Position, id int64) []domain.Position {
	remaining := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		if p.ID != id {
			remaining = append(remaining, p)
		}
	}
	return remaining
}

// requestDecision собирает контекст и запрашивает решение модели
func (e *Engine) requestDecision(ctx context.Context, agent *domain.Agent, positions []domain.Position, market []enrichment.EnrichedQuote, assessment *intelligence.Assessment, news []marketdata.NewsItem) (*ai.DecisionResponse, error) {
	statuses := make([]ai.PositionStatus, 0, len(positions))
	for i := range positions {
		p := &positions[i]
		statuses = append(statuses, ai.PositionStatus{
			Symbol:        p.Symbol,
			Side:          p.Side,
			Quantity:      p.Quantity,
			EntryPrice:    p.EntryPrice,
			CurrentPrice:  p.CurrentPrice,
			UnrealizedPnL: p.UnrealizedPnL(),
		})
	}

	wins, losses, err := e.store.AgentStats(ctx, agent.ID)
	if err != nil {
		e.logger.Warn("Failed to load stats for %s: %v", agent.Name, err)
	}
	stats := ai.AgentStats{TotalTrades: wins + losses, Wins: wins, Losses: losses}
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(wins) / float64(stats.TotalTrades) * 100
	}

	return e.decisions.RequestDecision(ctx, ai.DecisionRequest{
		AgentName:    agent.Name,
		ModelLabel:   agent.ModelLabel,
		CashBalance:  agent.CashBalance,
		AccountValue: agent.AccountValue,
		Positions:    statuses,
		Market:       market,
		Assessment:   assessment,
		Stats:        stats,
		News:         news,
	})
}

// buildDecisionRecord создает запись решения для журнала
func (e *Engine) buildDecisionRecord(agent *domain.Agent, decision *ai.DecisionResponse, market []enrichment.EnrichedQuote) *domain.Decision {
	snapshot, err := json.Marshal(market)
	if err != nil {
		snapshot = nil
	}

	return &domain.Decision{
		AgentID:        agent.ID,
		Action:         decision.Action,
		Symbol:         decision.Symbol,
		Quantity:       decision.Quantity,
		Confidence:     decision.Confidence,
		Reasoning:      decision.Reasoning,
		RiskAssessment: decision.RiskAssessment,
		TargetPrice:    decision.TargetPrice,
		StopLoss:       decision.StopLoss,
		MarketSnapshot: string(snapshot),
	}
}

// executeDecision проводит решение через sizing, safety и исполнение.
// Заполняет record.Executed / record.RejectReason.
func (e *Engine) executeDecision(ctx context.Context, agent *domain.Agent, positions []domain.Position, quotes map[string]marketdata.Quote, decision *ai.DecisionResponse, record *domain.Decision) events.AgentOutcome {
	outcome := events.AgentOutcome{
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Action:    decision.Action,
		Symbol:    decision.Symbol,
	}

	reject := func(reason string) events.AgentOutcome {
		record.Executed = false
		record.RejectReason = reason
		outcome.RejectReason = reason
		e.logger.Info("⏭ %s: %s %s not executed: %s", agent.Name, decision.Action, decision.Symbol, reason)
		return outcome
	}

	if decision.Action == domain.ActionHold {
		record.Executed = false
		return outcome
	}

	if e.halt.IsActive() {
		_, haltReason, _ := e.halt.Status()
		return reject(fmt.Sprintf("trading halted: %s", haltReason))
	}

	quote, ok := quotes[decision.Symbol]
	if !ok || quote.Price <= 0 {
		return reject(fmt.Sprintf("no market price for %s", decision.Symbol))
	}
	price := quote.Price

	if err := checkExitParams(decision, price); err != nil {
		return reject(err.Error())
	}

	existing := findPosition(positions, decision.Symbol, sideFor(decision.Action))

	quantity, err := e.sizeOrder(decision, agent, existing, price)
	if err != nil {
		return reject(err.Error())
	}

	proposal := &safety.Proposal{
		Agent:    agent,
		Action:   decision.Action,
		Symbol:   decision.Symbol,
		Quantity: quantity,
		Price:    price,
	}
	verdict, err := e.validator.Validate(ctx, proposal)
	if err != nil {
		return reject(fmt.Sprintf("safety validation error: %v", err))
	}
	if !verdict.Allowed {
		return reject(fmt.Sprintf("%s: %s", verdict.Check, verdict.Reason))
	}

	fill, err := e.broker.ExecuteOrder(ctx, execution.FillRequest{
		Action:         decision.Action,
		Symbol:         decision.Symbol,
		Quantity:       quantity,
		ReferencePrice: price,
	})
	e.observer.ExecutionResult(events.ExecutionEvent{
		AgentID:   agent.ID,
		Action:    decision.Action,
		Symbol:    decision.Symbol,
		Requested: quantity,
		Executed:  fillQuantity(fill),
		Price:     fillPrice(fill),
		Slippage:  fillSlippage(fill),
		Success:   err == nil && fill != nil && fill.Success,
		Reason:    fillReason(fill),
	})
	if err != nil || !fill.Success {
		e.recordFailedTrade(ctx, agent, decision, quantity, price)
		return reject(fmt.Sprintf("execution failed: %s", fillReason(fill)))
	}

	// Закрытие не может превысить размер позиции даже при странном fill
	if domain.IsExit(decision.Action) && existing != nil && fill.ExecutedQuantity > existing.Quantity {
		fill.ExecutedQuantity = existing.Quantity
	}

	change, err := applyFill(agent, existing, decision.Action, decision.Symbol, fill, ExitParams{
		TargetPrice:  decision.TargetPrice,
		StopLoss:     decision.StopLoss,
		Invalidation: decision.Invalidation,
	})
	if err != nil {
		e.recordFailedTrade(ctx, agent, decision, quantity, price)
		return reject(fmt.Sprintf("portfolio update failed: %v", err))
	}

	trade := &domain.Trade{
		AgentID:     agent.ID,
		Action:      decision.Action,
		Symbol:      decision.Symbol,
		Quantity:    fill.ExecutedQuantity,
		Price:       fill.ExecutedPrice,
		Total:       fill.Total(),
		Commission:  fill.Commission,
		RealizedPnL: change.RealizedPnL,
		Reasoning:   decision.Reasoning,
		Confidence:  decision.Confidence,
		Success:     true,
	}

	if err := e.applyChange(ctx, agent, positions, change, trade); err != nil {
		return reject(fmt.Sprintf("persist failed: %v", err))
	}

	record.Executed = true
	outcome.Executed = true
	e.logger.Info("💰 %s: %s %.0f %s @ $%.2f (commission $%.2f)",
		agent.Name, decision.Action, fill.ExecutedQuantity, decision.Symbol, fill.ExecutedPrice, fill.Commission)
	return outcome
}

// sizeOrder вычисляет количество акций для действия.
// BUY: floor(доля_кэша * cash / цена), доля из confidence-ступеней.
// SELL / BUY_TO_COVER: заявленное количество, но не больше позиции
// (0 => вся позиция). SELL_SHORT: заявленное количество, ограниченное
// той же долей кэша как обеспечением.
func (e *Engine) sizeOrder(decision *ai.DecisionResponse, agent *domain.Agent, existing *domain.Position, price float64) (float64, error) {
	switch decision.Action {
	case domain.ActionBuy:
		fraction := e.limits.CashFractionFor(decision.Confidence)
		if fraction == 0 {
			return 0, fmt.Errorf("confidence %.2f below minimum %.2f", decision.Confidence, e.limits.MinConfidence)
		}
		quantity := math.Floor(fraction * agent.CashBalance / price)
		if quantity < 1 {
			return 0, fmt.Errorf("insufficient cash for even one share of %s at $%.2f", decision.Symbol, price)
		}
		return quantity, nil

	case domain.ActionSellShort:
		if decision.Quantity < 1 {
			return 0, fmt.Errorf("short requires explicit quantity")
		}
		fraction := e.limits.CashFractionFor(decision.Confidence)
		if fraction == 0 {
			return 0, fmt.Errorf("confidence %.2f below minimum %.2f", decision.Confidence, e.limits.MinConfidence)
		}
		quantity := math.Floor(decision.Quantity)
		if maxQty := math.Floor(fraction * agent.CashBalance / price); quantity > maxQty {
			quantity = maxQty
		}
		if quantity < 1 {
			return 0, fmt.Errorf("insufficient collateral to short %s", decision.Symbol)
		}
		return quantity, nil

	case domain.ActionSell, domain.ActionBuyToCover:
		if existing == nil {
			return 0, fmt.Errorf("no open position in %s to close", decision.Symbol)
		}
		quantity := math.Floor(decision.Quantity)
		if quantity <= 0 || quantity > existing.Quantity {
			quantity = existing.Quantity
		}
		return quantity, nil
	}

	return 0, fmt.Errorf("unsupported action %s", decision.Action)
}

// applyChange атомарно применяет мутацию портфеля и обновляет агента
// в памяти после успешного коммита
func (e *Engine) applyChange(ctx context.Context, agent *domain.Agent, positions []domain.Position, change *PortfolioChange, trade *domain.Trade) error {
	value := projectedAccountValue(change, positions)

	err := e.store.ApplyTrade(ctx, &storage.TradeApplication{
		AgentID:        agent.ID,
		CashBalance:    change.CashBalance,
		AccountValue:   value,
		Position:       change.Position,
		DeletePosition: change.DeletePositionID,
		Trade:          trade,
	})
	if err != nil {
		return err
	}

	agent.CashBalance = change.CashBalance
	agent.AccountValue = value
	return nil
}

// projectedAccountValue пересчитывает стоимость счета с учетом мутации
func projectedAccountValue(change *PortfolioChange, positions []domain.Position) float64 {
	value := change.CashBalance
	for i := range positions {
		p := &positions[i]
		if change.DeletePositionID != 0 && p.ID == change.DeletePositionID {
			continue
		}
		if change.Position != nil && p.ID == change.Position.ID && p.ID != 0 {
			continue
		}
		value += p.EquityValue()
	}
	if change.Position != nil {
		value += change.Position.EquityValue()
	}
	return math.Round(value*100) / 100
}

// syncAccountValue обновляет стоимость счета после mark-to-market
func (e *Engine) syncAccountValue(ctx context.Context, agent *domain.Agent, positions []domain.Position) {
	value := accountValue(agent.CashBalance, positions)
	if value == agent.AccountValue {
		return
	}
	agent.AccountValue = value
	if err := e.store.UpdateAgentValue(ctx, agent.ID, agent.CashBalance, value); err != nil {
		e.logger.Warn("Failed to sync account value for %s: %v", agent.Name, err)
	}
}

// recordPerformance пишет точку временного ряда для каждого агента
func (e *Engine) recordPerformance(ctx context.Context, agents []domain.Agent) {
	for i := range agents {
		point := &domain.PerformancePoint{AgentID: agents[i].ID, AccountValue: agents[i].AccountValue}
		if err := e.store.SavePerformancePoint(ctx, point); err != nil {
			e.logger.Error("Failed to record performance for %s: %v", agents[i].Name, err)
		}
	}
}

// recordFailedTrade пишет неуспешную сделку для circuit breaker
func (e *Engine) recordFailedTrade(ctx context.Context, agent *domain.Agent, decision *ai.DecisionResponse, quantity, price float64) {
	trade := &domain.Trade{
		AgentID:    agent.ID,
		Action:     decision.Action,
		Symbol:     decision.Symbol,
		Quantity:   quantity,
		Price:      price,
		Reasoning:  decision.Reasoning,
		Confidence: decision.Confidence,
		Success:    false,
	}
	if err := e.store.SaveTrade(ctx, trade); err != nil {
		e.logger.Error("Failed to record failed trade: %v", err)
	}
}

// checkExitParams проверяет, что target и stop на правильной стороне
// от цены входа для направления сделки. Лонг: target выше входа, stop
// ниже; шорт зеркально. Перепутанные стороны — признак
// малформированного решения, такое не исполняется: иначе exit manager
// принудительно закрыл бы позицию ложным срабатыванием на следующем
// же цикле.
func checkExitParams(d *ai.DecisionResponse, price float64) error {
	if d.TargetPrice <= 0 && d.StopLoss <= 0 {
		return nil
	}

	switch d.Action {
	case domain.ActionBuy:
		if d.TargetPrice > 0 && d.TargetPrice <= price {
			return fmt.Errorf("long target $%.2f must be above entry $%.2f", d.TargetPrice, price)
		}
		if d.StopLoss > 0 && d.StopLoss >= price {
			return fmt.Errorf("long stop $%.2f must be below entry $%.2f", d.StopLoss, price)
		}
	case domain.ActionSellShort:
		if d.TargetPrice > 0 && d.TargetPrice >= price {
			return fmt.Errorf("short target $%.2f must be below entry $%.2f", d.TargetPrice, price)
		}
		if d.StopLoss > 0 && d.StopLoss <= price {
			return fmt.Errorf("short stop $%.2f must be above entry $%.2f", d.StopLoss, price)
		}
	}
	return nil
}

func findPosition(positions []domain.Position, symbol, side string) *domain.Position {
	for i := range positions {
		if positions[i].Symbol == symbol && positions[i].Side == side {
			return &positions[i]
		}
	}
	return nil
}

// sideFor возвращает сторону позиции, которой касается действие
func sideFor(action string) string {
	switch action {
	case domain.ActionSellShort, domain.ActionBuyToCover:
		return domain.SideShort
	default:
		return domain.SideLong
	}
}

func quotesBySymbol(quotes []marketdata.Quote) map[string]marketdata.Quote {
	m := make(map[string]marketdata.Quote, len(quotes))
	for _, q := range quotes {
		m[q.Symbol] = q
	}
	return m
}

// bigMovers возвращает символы с дневным изменением выше порога
func bigMovers(quotes []marketdata.Quote, threshold float64) []string {
	if threshold <= 0 {
		return nil
	}
	var movers []string
	for _, q := range quotes {
		if math.Abs(q.ChangePercent) >= threshold {
			movers = append(movers, q.Symbol)
		}
	}
	return movers
}

func fillQuantity(f *execution.FillResult) float64 {
	if f == nil {
		return 0
	}
	return f.ExecutedQuantity
}

func fillPrice(f *execution.FillResult) float64 {
	if f == nil {
		return 0
	}
	return f.ExecutedPrice
}

func fillSlippage(f *execution.FillResult) float64 {
	if f == nil {
		return 0
	}
	return f.SlippagePercent
}

func fillReason(f *execution.FillResult) string {
	if f == nil {
		return "no fill result"
	}
	return f.Reason
}
