package domain

// PositionState is the canonical lifecycle record of one position. It is owned by a single
// writer (the simulation loop or the live tracker) for its whole lifetime.
type PositionState struct {
	BotID             string
	PositionID        string
	Symbol            string
	Side              Side
	Status            PositionStatus
	Quantity          float64 // Original quantity
	RemainingQuantity float64
	AvgEntryPrice     float64 // 0 until the entry fills
	StopPrice         float64 // 0 when no stop is set
	RealizedPnl       float64
	UnrealizedPnl     float64
	OpenedAtMs        int64
	ClosedAtMs        int64 // 0 while not closed
	StrategyContext   *StrategyContext
}

// StrategyContext is what the strategy attached to the position when it was opened.
type StrategyContext struct {
	Management     *PositionManagementPlan
	Meta           any
	Reasons        []string
	Tags           []string
	EntryReference float64 // Requested entry price the plan was drawn against, before slippage
}

// IsOpen reports whether the position still carries exposure.
func (p *PositionState) IsOpen() bool {
	return p != nil && p.Status != StatusClosed && p.RemainingQuantity > 0
}

// Plan returns the management plan or nil.
func (p *PositionState) Plan() *PositionManagementPlan {
	if p == nil || p.StrategyContext == nil {
		return nil
	}
	return p.StrategyContext.Management
}

// EntryReference is the price targets are measured against: the requested entry price when
// known, the average fill price otherwise.
func (p *PositionState) EntryReference() float64 {
	if p != nil && p.StrategyContext != nil && p.StrategyContext.EntryReference > 0 {
		return p.StrategyContext.EntryReference
	}
	if p == nil {
		return 0
	}
	return p.AvgEntryPrice
}

// Clone returns a deep copy that shares nothing mutable with p, except the opaque Meta payload.
func (p *PositionState) Clone() *PositionState {
	if p == nil {
		return nil
	}
	out := *p
	if p.StrategyContext != nil {
		sc := *p.StrategyContext
		sc.Management = p.StrategyContext.Management.Clone()
		sc.Reasons = append([]string(nil), p.StrategyContext.Reasons...)
		sc.Tags = append([]string(nil), p.StrategyContext.Tags...)
		out.StrategyContext = &sc
	}
	return &out
}
