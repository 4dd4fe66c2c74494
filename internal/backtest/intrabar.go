package backtest

import (
	"cmp"
	"slices"

	"tradecore/internal/domain"
)

func targetTouched(side domain.Side, c domain.Candle, price float64) bool {
	if side == domain.SideLong {
		return c.High >= price
	}
	return c.Low <= price
}

func stopTouched(side domain.Side, c domain.Candle, stop float64) bool {
	if stop <= 0 {
		return false
	}
	if side == domain.SideLong {
		return c.Low <= stop
	}
	return c.High >= stop
}

// pendingTargets returns the targets not yet filled, nearest first. A target counts as
// filled once a take-profit order at its exact price has executed, so two targets sharing a
// price collapse into one. Targets on the losing side of the requested entry price or with a
// non-positive size fraction are never returned; slippage on the fill does not move them.
func pendingTargets(pos *domain.PositionState, filled map[float64]bool) []domain.TakeProfitInstruction {
	plan := pos.Plan()
	if plan == nil || len(plan.TakeProfits) == 0 {
		return nil
	}
	ref := pos.EntryReference()
	out := make([]domain.TakeProfitInstruction, 0, len(plan.TakeProfits))
	for _, tp := range plan.TakeProfits {
		if filled[tp.Price] || tp.SizeFraction <= 0 {
			continue
		}
		if pos.Side == domain.SideLong && tp.Price <= ref {
			continue
		}
		if pos.Side == domain.SideShort && tp.Price >= ref {
			continue
		}
		out = append(out, tp)
	}
	slices.SortStableFunc(out, func(a, b domain.TakeProfitInstruction) int {
		if pos.Side == domain.SideShort {
			return cmp.Compare(b.Price, a.Price)
		}
		return cmp.Compare(a.Price, b.Price)
	})
	return out
}
