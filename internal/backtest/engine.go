// Package backtest simulates one bot over a candle series, bar by bar, and produces the
// orders, fills, equity curve, timeline and metrics of the run.
//
// A run is a pure function of its Input: no I/O, no shared state, no randomness. Ids are
// derived from the bot id and per-run counters, so repeated runs yield identical results.
package backtest

import (
	"context"
	"fmt"

	"tradecore/internal/domain"
	"tradecore/internal/lifecycle"
	"tradecore/internal/ports"
)

// quantityEpsilon is the relative residue below which a remaining quantity is treated as zero.
const quantityEpsilon = 1e-9

// Input is everything a run depends on.
type Input struct {
	Request         Request
	Bot             domain.BotDefinition
	Config          Config
	Strategy        ports.Strategy
	Market          domain.MarketData
	Sizer           ports.PositionSizer
	InitialPosition *domain.PositionState // optional, carried in as the active position
}

// Engine runs backtests. It holds no per-run state and is safe for concurrent use.
type Engine struct {
	logger ports.Logger
}

// NewEngine creates an engine.
func NewEngine(logger ports.Logger) *Engine {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Engine{logger: logger}
}

func validate(in Input) error {
	if in.Bot.ID == "" {
		return fmt.Errorf("%w: bot id is required", ports.ErrInvalidRequest)
	}
	if in.Strategy == nil {
		return fmt.Errorf("%w: strategy is required", ports.ErrInvalidRequest)
	}
	if in.Sizer == nil {
		return fmt.Errorf("%w: position sizer is required", ports.ErrInvalidRequest)
	}
	if err := in.Config.Validate(); err != nil {
		return err
	}
	candles := in.Market.Candles
	if len(candles) == 0 {
		return fmt.Errorf("%w: no candles", ports.ErrInvalidRequest)
	}
	for i := 1; i < len(candles); i++ {
		if !candles[i].Time.After(candles[i-1].Time) {
			return fmt.Errorf("%w: candles not strictly ascending at index %d", ports.ErrInvalidRequest, i)
		}
	}
	if p := in.InitialPosition; p != nil && p.IsOpen() && !p.Side.Valid() {
		return fmt.Errorf("%w: initial position has side %q", ports.ErrInvalidRequest, p.Side)
	}
	return nil
}

// Run simulates the bot over in.Market and returns the result.
func (e *Engine) Run(ctx context.Context, in Input) (*domain.BacktestResult, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	start, end := in.Request.window(in.Market.Candles)
	if start >= end {
		return nil, fmt.Errorf("%w: requested window contains no candles", ports.ErrInvalidRequest)
	}

	r := newRun(in, e.logger)
	e.logger.Info(ctx, "Backtest started", map[string]interface{}{
		"botId":      in.Bot.ID,
		"strategyId": in.Strategy.ID(),
		"bars":       end - start,
		"equity":     r.equity,
		"priority":   string(r.priority),
	})

	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.step(ctx, i); err != nil {
			e.logger.Error(ctx, err, "Backtest aborted", map[string]interface{}{"botId": in.Bot.ID, "index": i})
			return nil, err
		}
	}
	r.finish(ctx, end-1)

	result := &domain.BacktestResult{
		BotID:       in.Bot.ID,
		StrategyID:  in.Strategy.ID(),
		Positions:   r.positions,
		Orders:      r.orders,
		Fills:       r.fills,
		EquityCurve: r.curve,
		Timeline:    r.timeline,
	}
	result.Metrics = ComputeMetrics(result.Positions, result.Fills, result.EquityCurve, in.Config.InitialEquity)

	e.logger.Info(ctx, "Backtest finished", map[string]interface{}{
		"botId":        in.Bot.ID,
		"trades":       result.Metrics.TotalTrades,
		"netPnl":       result.Metrics.NetPnl,
		"endingEquity": result.Metrics.EndingEquity,
		"maxDrawdown":  result.Metrics.MaxDrawdownPct,
	})
	return result, nil
}

// run is the mutable state of a single simulation. It is owned by one goroutine for the
// duration of Engine.Run and never escapes it; positions leave it only as clones.
type run struct {
	in       Input
	logger   ports.Logger
	priority domain.ExitPriority

	equity        float64
	position      *domain.PositionState
	filledTargets map[float64]bool
	cooldownUntil int

	posSeq, orderSeq, fillSeq int

	positions []domain.PositionState
	orders    []domain.Order
	fills     []domain.Fill
	curve     []domain.EquityPoint
	timeline  []domain.TimelineEntry
}

func newRun(in Input, logger ports.Logger) *run {
	priority := in.Config.DefaultExitPriority
	if _, ok := in.Bot.Metadata[domain.MetaIntrabarExitPriority]; ok || priority == "" {
		priority = in.Bot.IntrabarExitPriority()
	}
	r := &run{
		in:            in,
		logger:        logger,
		priority:      priority,
		equity:        in.Config.InitialEquity,
		filledTargets: make(map[float64]bool),
		cooldownUntil: -1,
	}
	if in.InitialPosition.IsOpen() {
		r.position = in.InitialPosition.Clone()
	}
	return r
}

func (r *run) step(ctx context.Context, i int) error {
	candle := r.in.Market.Candles[i]
	view := r.in.Market.ViewAt(i)

	snapshot, err := r.in.Strategy.BuildSnapshot(ctx, r.in.Bot, r.in.Bot.StrategyConfig, view, r.position.Clone())
	if err != nil {
		return fmt.Errorf("%w: snapshot at bar %d: %w", ports.ErrStrategyFailed, i, err)
	}
	decision, err := r.in.Strategy.Evaluate(ctx, r.in.Bot, r.in.Bot.StrategyConfig, snapshot, view, r.position.Clone())
	if err != nil {
		return fmt.Errorf("%w: evaluate at bar %d: %w", ports.ErrStrategyFailed, i, err)
	}
	r.record(i, candle, domain.EventStrategyDecision, "", decisionDetails(decision))

	if r.position.IsOpen() {
		r.manage(ctx, i, candle, decision)
	}
	if !r.position.IsOpen() && i >= r.cooldownUntil {
		if err := r.enter(ctx, i, candle, snapshot, decision); err != nil {
			return err
		}
	}

	r.curve = append(r.curve, domain.EquityPoint{Index: i, TimeMs: candle.Time.UnixMilli(), Equity: r.equity})
	return nil
}

// manage resolves the open position against the current bar: stop and targets in the
// configured order, then explicit close, opposite-side entry and the remaining intents.
func (r *run) manage(ctx context.Context, i int, candle domain.Candle, decision domain.StrategyDecision) {
	if r.priority == domain.TargetFirst {
		r.takeProfits(ctx, i, candle)
		r.checkStop(ctx, i, candle)
	} else {
		r.checkStop(ctx, i, candle)
		r.takeProfits(ctx, i, candle)
	}

	if r.position.IsOpen() {
		if intent, ok := decision.FirstClose(r.position.Side); ok {
			r.closeAll(ctx, i, candle, priceOr(intent.Price, candle.Close), domain.FillReasonSignal, domain.PurposeClose, "close")
		}
	}
	if r.position.IsOpen() && r.position.Plan() != nil && r.position.Plan().CloseOnOppositeIntent {
		if decision.HasEnter(r.position.Side.Opposite()) {
			r.closeAll(ctx, i, candle, candle.Close, domain.FillReasonSignal, domain.PurposeClose, "opposite-intent")
		}
	}
	for _, intent := range decision.Intents {
		if !r.position.IsOpen() {
			break
		}
		switch it := intent.(type) {
		case domain.ReduceIntent:
			if it.Side != r.position.Side || it.SizeFraction <= 0 {
				continue
			}
			qty := min(mul(r.position.Quantity, it.SizeFraction), r.position.RemainingQuantity)
			r.exit(ctx, i, candle, qty, priceOr(it.Price, candle.Close), domain.FillReasonReduce, domain.PurposeReduce, "reduce")
		case domain.MoveStopIntent:
			if it.Side != r.position.Side || it.StopPrice <= 0 || it.StopPrice == r.position.StopPrice {
				continue
			}
			r.moveStop(i, candle, it.StopPrice, "intent")
		}
	}

	// A partial close leaves the position reducing only for the duration of this step.
	if r.position.IsOpen() && r.position.Status == domain.StatusReducing {
		r.position = lifecycle.Transition(r.position, lifecycle.PositionSyncEvent{
			Quantity:      r.position.RemainingQuantity,
			AvgEntryPrice: r.position.AvgEntryPrice,
			UnrealizedPnl: grossPnl(r.position.Side, r.position.AvgEntryPrice, candle.Close, r.position.RemainingQuantity),
			AtMs:          candle.Time.UnixMilli(),
		})
	}
}

func (r *run) checkStop(ctx context.Context, i int, candle domain.Candle) {
	pos := r.position
	if !pos.IsOpen() || !stopTouched(pos.Side, candle, pos.StopPrice) {
		return
	}
	r.closeAll(ctx, i, candle, pos.StopPrice, domain.FillReasonStop, domain.PurposeStop, "stop")
}

func (r *run) takeProfits(ctx context.Context, i int, candle domain.Candle) {
	if !r.position.IsOpen() {
		return
	}
	for _, tp := range pendingTargets(r.position, r.filledTargets) {
		pos := r.position
		if !pos.IsOpen() {
			return
		}
		if r.filledTargets[tp.Price] || !targetTouched(pos.Side, candle, tp.Price) {
			continue
		}
		qty := min(mul(pos.Quantity, tp.SizeFraction), pos.RemainingQuantity)
		r.filledTargets[tp.Price] = true
		r.exit(ctx, i, candle, qty, tp.Price, domain.FillReasonTP, domain.PurposeTakeProfit, targetLabel(tp))
		if tp.MoveStopToBreakeven && r.position.IsOpen() {
			r.moveStop(i, candle, r.position.AvgEntryPrice, "breakeven")
		}
	}
}

func (r *run) closeAll(ctx context.Context, i int, candle domain.Candle, raw float64, reason domain.FillReason, purpose domain.OrderPurpose, label string) {
	r.exit(ctx, i, candle, r.position.RemainingQuantity, raw, reason, purpose, label)
}

// exit closes qty of the active position at the slipped raw price. Emptying the position
// finalizes it and starts the plan's cooldown.
func (r *run) exit(ctx context.Context, i int, candle domain.Candle, qty, raw float64, reason domain.FillReason, purpose domain.OrderPurpose, label string) {
	pos := r.position
	remaining := sub(pos.RemainingQuantity, qty)
	if remaining <= pos.Quantity*quantityEpsilon {
		qty, remaining = pos.RemainingQuantity, 0
	}
	if qty <= 0 {
		return
	}

	atMs := candle.Time.UnixMilli()
	price := applySlippage(raw, pos.Side, legExit, r.in.Config.Slippage)
	fee := feeFor(price, qty, r.in.Config.Fee.Rate)
	gross := grossPnl(pos.Side, pos.AvgEntryPrice, price, qty)
	net := sub(gross, fee)

	order := r.newOrder(pos, purpose, raw, price, qty, domain.OrderStatusFilled, atMs)
	fill := r.newFill(order, reason, label, price, qty, gross, fee, net, atMs)
	r.equity = add(r.equity, net)
	r.position = lifecycle.Transition(pos, lifecycle.ReduceEvent{RemainingQuantity: remaining, RealizedPnlDelta: net, AtMs: atMs})

	details := map[string]any{
		"reason":    string(reason),
		"label":     label,
		"price":     price,
		"quantity":  qty,
		"remaining": remaining,
		"netPnl":    net,
		"fillId":    fill.ID,
	}
	r.logger.Debug(ctx, "Position exit filled", map[string]interface{}{
		"positionId": pos.PositionID,
		"reason":     string(reason),
		"price":      price,
		"quantity":   qty,
		"netPnl":     net,
	})

	if r.position.Status != domain.StatusClosed {
		r.record(i, candle, domain.EventPositionReduced, pos.PositionID, details)
		return
	}
	details["realizedPnl"] = r.position.RealizedPnl
	r.record(i, candle, domain.EventPositionClosed, pos.PositionID, details)
	cooldown := 0
	if plan := r.position.Plan(); plan != nil && plan.CooldownBars > 0 {
		cooldown = plan.CooldownBars
	}
	r.cooldownUntil = i + cooldown + 1
	r.positions = append(r.positions, *r.position.Clone())
	r.position = nil
	r.filledTargets = make(map[float64]bool)
}

func (r *run) moveStop(i int, candle domain.Candle, stop float64, cause string) {
	from := r.position.StopPrice
	r.position = lifecycle.Transition(r.position, lifecycle.MoveStopEvent{StopPrice: stop, AtMs: candle.Time.UnixMilli()})
	r.record(i, candle, domain.EventStopMoved, r.position.PositionID, map[string]any{
		"from":  from,
		"to":    stop,
		"cause": cause,
	})
}

// enter opens a position from the first enter intent of the decision, if the sizer agrees.
func (r *run) enter(ctx context.Context, i int, candle domain.Candle, snapshot domain.Snapshot, decision domain.StrategyDecision) error {
	intent, ok := decision.FirstEnter()
	if !ok {
		return nil
	}
	if !intent.Side.Valid() {
		r.record(i, candle, domain.EventEntrySkipped, "", map[string]any{"reason": "invalid side", "side": string(intent.Side)})
		return nil
	}

	sizing, err := r.in.Sizer.Size(ctx, ports.SizingInput{
		Bot:      r.in.Bot,
		Config:   r.in.Bot.StrategyConfig,
		Snapshot: snapshot,
		Decision: decision,
		Intent:   intent,
		Candle:   candle,
		Equity:   r.equity,
	})
	if err != nil {
		return fmt.Errorf("%w: bar %d: %w", ports.ErrSizingFailed, i, err)
	}
	if sizing.Quantity <= 0 {
		r.record(i, candle, domain.EventEntrySkipped, "", map[string]any{"reason": "non-positive quantity", "side": string(intent.Side)})
		return nil
	}

	atMs := candle.Time.UnixMilli()
	r.posSeq++
	positionID := fmt.Sprintf("%s-pos-%d", r.in.Bot.ID, r.posSeq)
	raw := candle.Close
	if intent.EntryType == domain.EntryLimit && intent.LimitPrice > 0 {
		raw = intent.LimitPrice
	}
	ctxData := &domain.StrategyContext{
		Management:     intent.Management.Clone(),
		Meta:           intent.Meta,
		Reasons:        append([]string(nil), intent.Reasons...),
		Tags:           append([]string(nil), intent.Tags...),
		EntryReference: raw,
	}
	pending := lifecycle.Transition(nil, lifecycle.EnterEvent{
		BotID:      r.in.Bot.ID,
		PositionID: positionID,
		Symbol:     r.in.Market.Symbol,
		Side:       intent.Side,
		Quantity:   sizing.Quantity,
		EntryPrice: candle.Close,
		StopPrice:  intent.StopPrice,
		AtMs:       atMs,
		Context:    ctxData,
	})

	if intent.EntryType == domain.EntryLimit && intent.LimitPrice > 0 {
		if intent.LimitPrice < candle.Low || intent.LimitPrice > candle.High {
			r.newOrder(pending, domain.PurposeEntry, intent.LimitPrice, 0, sizing.Quantity, domain.OrderStatusExpired, atMs)
			r.record(i, candle, domain.EventEntrySkipped, positionID, map[string]any{
				"reason":     "limit not reached",
				"side":       string(intent.Side),
				"limitPrice": intent.LimitPrice,
			})
			return nil
		}
	}

	price := applySlippage(raw, intent.Side, legEntry, r.in.Config.Slippage)
	fee := feeFor(price, sizing.Quantity, r.in.Config.Fee.Rate)
	order := r.newOrder(pending, domain.PurposeEntry, raw, price, sizing.Quantity, domain.OrderStatusFilled, atMs)
	r.newFill(order, domain.FillReasonEntry, "entry", price, sizing.Quantity, 0, fee, -fee, atMs)
	r.equity = sub(r.equity, fee)

	r.position = lifecycle.Transition(pending, lifecycle.PositionSyncEvent{
		Quantity:      sizing.Quantity,
		AvgEntryPrice: price,
		AtMs:          atMs,
	})
	r.filledTargets = make(map[float64]bool)

	r.record(i, candle, domain.EventPositionOpened, positionID, map[string]any{
		"side":         string(intent.Side),
		"entryType":    string(entryTypeOrMarket(intent.EntryType)),
		"price":        price,
		"quantity":     sizing.Quantity,
		"stopPrice":    intent.StopPrice,
		"fee":          fee,
		"riskAmount":   sizing.RiskAmount,
		"notional":     sizing.Notional,
		"notionalCap":  sizing.UsedNotionalCap,
		"reasons":      append([]string(nil), intent.Reasons...),
		"targetsCount": len(planTargets(intent.Management)),
	})
	r.logger.Debug(ctx, "Position opened", map[string]interface{}{
		"positionId": positionID,
		"side":       string(intent.Side),
		"price":      price,
		"quantity":   sizing.Quantity,
	})

	for _, issue := range domain.ValidatePlan(intent.Side, raw, intent.Management) {
		r.record(i, candle, domain.EventPlanWarning, positionID, map[string]any{
			"targetId": issue.TargetID,
			"price":    issue.Price,
			"problem":  issue.Problem,
		})
		r.logger.Warn(ctx, "Management plan issue", map[string]interface{}{
			"positionId": positionID,
			"issue":      issue.String(),
		})
	}
	return nil
}

// finish force-closes a position still open after the last bar and restates the final
// equity point.
func (r *run) finish(ctx context.Context, last int) {
	if !r.position.IsOpen() {
		return
	}
	candle := r.in.Market.Candles[last]
	r.closeAll(ctx, last, candle, candle.Close, domain.FillReasonEnd, domain.PurposeClose, "end")
	if n := len(r.curve); n > 0 {
		r.curve[n-1].Equity = r.equity
	}
}

func (r *run) newOrder(pos *domain.PositionState, purpose domain.OrderPurpose, requested, executed, qty float64, status domain.OrderStatus, atMs int64) domain.Order {
	r.orderSeq++
	order := domain.Order{
		ID:                fmt.Sprintf("%s-order-%d", r.in.Bot.ID, r.orderSeq),
		BotID:             r.in.Bot.ID,
		PositionID:        pos.PositionID,
		Side:              pos.Side,
		Purpose:           purpose,
		Status:            status,
		RequestedPrice:    requested,
		RequestedQuantity: qty,
		CreatedAtMs:       atMs,
		UpdatedAtMs:       atMs,
	}
	if status == domain.OrderStatusFilled {
		order.ExecutedPrice = executed
		order.ExecutedQuantity = qty
	}
	r.orders = append(r.orders, order)
	return order
}

func (r *run) newFill(order domain.Order, reason domain.FillReason, label string, price, qty, gross, fee, net float64, atMs int64) domain.Fill {
	r.fillSeq++
	fill := domain.Fill{
		ID:         fmt.Sprintf("%s-fill-%d", r.in.Bot.ID, r.fillSeq),
		OrderID:    order.ID,
		PositionID: order.PositionID,
		BotID:      order.BotID,
		Reason:     reason,
		Label:      label,
		Side:       order.Side,
		TimeMs:     atMs,
		Price:      price,
		Quantity:   qty,
		GrossPnl:   gross,
		Fee:        fee,
		NetPnl:     net,
	}
	r.fills = append(r.fills, fill)
	return fill
}

func (r *run) record(i int, candle domain.Candle, typ, positionID string, details map[string]any) {
	r.timeline = append(r.timeline, domain.TimelineEntry{
		Index:      i,
		TimeMs:     candle.Time.UnixMilli(),
		Type:       typ,
		PositionID: positionID,
		Details:    details,
	})
}

func decisionDetails(d domain.StrategyDecision) map[string]any {
	kinds := make([]string, 0, len(d.Intents))
	for _, intent := range d.Intents {
		kinds = append(kinds, string(intent.Kind()))
	}
	return map[string]any{
		"confidence": d.Confidence,
		"reasons":    append([]string(nil), d.Reasons...),
		"intents":    kinds,
	}
}

func targetLabel(tp domain.TakeProfitInstruction) string {
	if tp.Label != "" {
		return tp.Label
	}
	return tp.ID
}

func planTargets(plan *domain.PositionManagementPlan) []domain.TakeProfitInstruction {
	if plan == nil {
		return nil
	}
	return plan.TakeProfits
}

func entryTypeOrMarket(t domain.EntryType) domain.EntryType {
	if t == "" {
		return domain.EntryMarket
	}
	return t
}

func priceOr(price, fallback float64) float64 {
	if price > 0 {
		return price
	}
	return fallback
}

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (nopLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Error(context.Context, error, string, ...map[string]interface{}) {}
