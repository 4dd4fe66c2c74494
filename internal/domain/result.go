package domain

// Timeline entry types recorded by the engine.
const (
	EventStrategyDecision = "strategy.decision"
	EventPositionOpened   = "position.opened"
	EventPositionReduced  = "position.reduced"
	EventPositionClosed   = "position.closed"
	EventStopMoved        = "stop.moved"
	EventEntrySkipped     = "entry.skipped"
	EventPlanWarning      = "plan.warning"
)

// TimelineEntry is one audit record of a run.
type TimelineEntry struct {
	Index      int
	TimeMs     int64
	Type       string
	PositionID string
	Details    map[string]any
}

// EquityPoint is the running equity after all fills of a bar.
type EquityPoint struct {
	Index  int
	TimeMs int64
	Equity float64
}

// Metrics is the summary of a completed run.
type Metrics struct {
	TotalTrades    int
	Wins           int
	Losses         int
	WinRate        float64
	NetPnl         float64
	GrossProfit    float64
	GrossLoss      float64
	MaxDrawdownPct float64
	EndingEquity   float64
}

// BacktestResult is the immutable output of a run.
type BacktestResult struct {
	BotID       string
	StrategyID  string
	Metrics     Metrics
	Positions   []PositionState
	Orders      []Order
	Fills       []Fill
	EquityCurve []EquityPoint
	Timeline    []TimelineEntry
}
