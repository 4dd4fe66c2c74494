package lifecycle

import "tradecore/internal/domain"

// EventType names a lifecycle event.
type EventType string

const (
	TypeStrategyEnter    EventType = "strategy.enter"
	TypeStrategyReduce   EventType = "strategy.reduce"
	TypeStrategyMoveStop EventType = "strategy.move-stop"
	TypeStrategyClose    EventType = "strategy.close"
	TypeOrderRejected    EventType = "exchange.order-rejected"
	TypePositionSync     EventType = "exchange.position-sync"
	TypeReconcileDrift   EventType = "reconcile.detected-drift"
)

// Event is a lifecycle event. The variant set is closed; Transition treats any other
// implementation as unknown and returns the state unchanged.
type Event interface {
	Type() EventType
}

// EnterEvent opens a position or re-arms an existing one.
type EnterEvent struct {
	BotID      string
	PositionID string
	Symbol     string
	Side       domain.Side
	Quantity   float64
	EntryPrice float64 // Requested price; the fill confirms it through PositionSyncEvent
	StopPrice  float64
	AtMs       int64
	Context    *domain.StrategyContext
}

// ReduceEvent records a partial or full quantity decrement.
type ReduceEvent struct {
	RemainingQuantity float64
	RealizedPnlDelta  float64
	AtMs              int64
}

// MoveStopEvent moves the protective stop.
type MoveStopEvent struct {
	StopPrice float64
	AtMs      int64
}

// CloseEvent closes the whole remaining quantity.
type CloseEvent struct {
	RealizedPnlDelta float64
	AtMs             int64
}

// OrderRejectedEvent marks the position as needing intervention.
type OrderRejectedEvent struct {
	OrderID string
	Reason  string
	AtMs    int64
}

// PositionSyncEvent carries the exchange's (or a fill's) view of the position.
type PositionSyncEvent struct {
	BotID         string
	PositionID    string
	Symbol        string
	Side          domain.Side
	Quantity      float64
	AvgEntryPrice float64
	UnrealizedPnl float64
	AtMs          int64
}

// DriftDetectedEvent flags a mismatch between local and exchange state.
type DriftDetectedEvent struct {
	Detail string
	AtMs   int64
}

func (EnterEvent) Type() EventType         { return TypeStrategyEnter }
func (ReduceEvent) Type() EventType        { return TypeStrategyReduce }
func (MoveStopEvent) Type() EventType      { return TypeStrategyMoveStop }
func (CloseEvent) Type() EventType         { return TypeStrategyClose }
func (OrderRejectedEvent) Type() EventType { return TypeOrderRejected }
func (PositionSyncEvent) Type() EventType  { return TypePositionSync }
func (DriftDetectedEvent) Type() EventType { return TypeReconcileDrift }
