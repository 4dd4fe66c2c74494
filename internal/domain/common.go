package domain

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// PositionStatus represents the lifecycle status of a trading position.
type PositionStatus string

const (
	StatusEntryPending PositionStatus = "entry-pending"
	StatusOpen         PositionStatus = "open"
	StatusReducing     PositionStatus = "reducing"
	StatusClosed       PositionStatus = "closed"
	StatusError        PositionStatus = "error"
	StatusReconciling  PositionStatus = "reconciling"
)

// OrderPurpose describes why an order was created.
type OrderPurpose string

const (
	PurposeEntry      OrderPurpose = "entry"
	PurposeReduce     OrderPurpose = "reduce"
	PurposeStop       OrderPurpose = "stop"
	PurposeTakeProfit OrderPurpose = "take-profit"
	PurposeClose      OrderPurpose = "close"
	PurposeReconcile  OrderPurpose = "reconcile"
)

// OrderStatus is the execution status of an order.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "new"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusExpired  OrderStatus = "expired"
	OrderStatusRejected OrderStatus = "rejected"
)

// FillReason indicates why a fill happened.
type FillReason string

const (
	FillReasonEntry  FillReason = "entry"
	FillReasonTP     FillReason = "tp"
	FillReasonStop   FillReason = "stop"
	FillReasonSignal FillReason = "signal"
	FillReasonEnd    FillReason = "end"
	FillReasonReduce FillReason = "reduce"
)

// ExitPriority decides whether stops or targets are tested first when one bar touches both.
type ExitPriority string

const (
	StopFirst   ExitPriority = "stop-first"
	TargetFirst ExitPriority = "target-first"
)

// ParseExitPriority maps a metadata/config value to an ExitPriority. Anything other than
// "target-first" resolves to StopFirst.
func ParseExitPriority(s string) ExitPriority {
	if ExitPriority(s) == TargetFirst {
		return TargetFirst
	}
	return StopFirst
}
