// Package lifecycle is the position state machine shared by simulated and live execution.
package lifecycle

import (
	"math"

	"tradecore/internal/domain"
)

// Transition maps the current position (nil when absent) and an event to the next state.
// It is total and pure: the input is never mutated, unknown events return current unchanged,
// and every event except enter and a non-empty sync leaves an absent position absent.
//
// A closed record only leaves closed through enter, which starts a fresh record, or through a
// sync reporting exchange quantity. A record in error ignores strategy events until a sync or
// a drift report moves it on.
func Transition(current *domain.PositionState, ev Event) *domain.PositionState {
	if current != nil && ignores(current.Status, ev) {
		return current
	}
	switch e := ev.(type) {
	case EnterEvent:
		return enter(current, e)
	case ReduceEvent:
		if current == nil {
			return nil
		}
		next := current.Clone()
		next.RemainingQuantity = math.Max(0, e.RemainingQuantity)
		next.RealizedPnl += e.RealizedPnlDelta
		if next.RemainingQuantity == 0 {
			next.Status = domain.StatusClosed
			next.ClosedAtMs = e.AtMs
		} else {
			next.Status = domain.StatusReducing
		}
		return next
	case MoveStopEvent:
		if current == nil {
			return nil
		}
		next := current.Clone()
		next.StopPrice = e.StopPrice
		return next
	case CloseEvent:
		if current == nil {
			return nil
		}
		next := current.Clone()
		next.RemainingQuantity = 0
		next.RealizedPnl += e.RealizedPnlDelta
		next.UnrealizedPnl = 0
		next.Status = domain.StatusClosed
		next.ClosedAtMs = e.AtMs
		return next
	case OrderRejectedEvent:
		if current == nil {
			return nil
		}
		next := current.Clone()
		next.Status = domain.StatusError
		return next
	case PositionSyncEvent:
		return syncPosition(current, e)
	case DriftDetectedEvent:
		if current == nil {
			return nil
		}
		next := current.Clone()
		next.Status = domain.StatusReconciling
		return next
	default:
		return current
	}
}

func ignores(status domain.PositionStatus, ev Event) bool {
	switch status {
	case domain.StatusClosed:
		switch ev.(type) {
		case EnterEvent, PositionSyncEvent:
			return false
		}
		return true
	case domain.StatusError:
		switch ev.(type) {
		case EnterEvent, ReduceEvent, MoveStopEvent, CloseEvent:
			return true
		}
	}
	return false
}

func enter(current *domain.PositionState, e EnterEvent) *domain.PositionState {
	if current != nil && current.Status == domain.StatusClosed {
		if e.BotID == "" {
			e.BotID = current.BotID
		}
		if e.PositionID == "" {
			e.PositionID = current.PositionID
		}
		if e.Symbol == "" {
			e.Symbol = current.Symbol
		}
		current = nil
	}
	if current == nil {
		return &domain.PositionState{
			BotID:             e.BotID,
			PositionID:        e.PositionID,
			Symbol:            e.Symbol,
			Side:              e.Side,
			Status:            domain.StatusEntryPending,
			Quantity:          e.Quantity,
			RemainingQuantity: e.Quantity,
			AvgEntryPrice:     e.EntryPrice,
			StopPrice:         e.StopPrice,
			OpenedAtMs:        e.AtMs,
			StrategyContext:   e.Context,
		}
	}
	// Re-arm: quantities and stop follow the new intent, the original open time stays.
	next := current.Clone()
	next.Quantity = e.Quantity
	next.RemainingQuantity = e.Quantity
	next.StopPrice = e.StopPrice
	if e.Context != nil {
		next.StrategyContext = e.Context
	}
	return next
}

func syncPosition(current *domain.PositionState, e PositionSyncEvent) *domain.PositionState {
	if current == nil {
		if e.Quantity <= 0 {
			return nil
		}
		return &domain.PositionState{
			BotID:             e.BotID,
			PositionID:        e.PositionID,
			Symbol:            e.Symbol,
			Side:              e.Side,
			Status:            domain.StatusOpen,
			Quantity:          e.Quantity,
			RemainingQuantity: e.Quantity,
			AvgEntryPrice:     e.AvgEntryPrice,
			UnrealizedPnl:     e.UnrealizedPnl,
			OpenedAtMs:        e.AtMs,
		}
	}
	next := current.Clone()
	next.RemainingQuantity = math.Max(0, e.Quantity)
	if next.RemainingQuantity > next.Quantity {
		next.Quantity = next.RemainingQuantity
	}
	if e.AvgEntryPrice > 0 {
		next.AvgEntryPrice = e.AvgEntryPrice
	}
	next.UnrealizedPnl = e.UnrealizedPnl
	if next.RemainingQuantity == 0 {
		next.Status = domain.StatusClosed
		next.ClosedAtMs = e.AtMs
		next.UnrealizedPnl = 0
	} else {
		next.Status = domain.StatusOpen
		next.ClosedAtMs = 0
	}
	return next
}
