package domain

import "fmt"

// IntentKind tags the variant of a TradingIntent.
type IntentKind string

const (
	IntentEnter    IntentKind = "enter"
	IntentReduce   IntentKind = "reduce"
	IntentMoveStop IntentKind = "move-stop"
	IntentClose    IntentKind = "close"
	IntentHold     IntentKind = "hold"
)

// EntryType is the order type requested by an enter intent.
type EntryType string

const (
	EntryMarket EntryType = "market"
	EntryLimit  EntryType = "limit"
)

// TradingIntent is one instruction a strategy emits for a bar. The set of variants is closed:
// EnterIntent, ReduceIntent, MoveStopIntent, CloseIntent and HoldIntent.
type TradingIntent interface {
	Kind() IntentKind
	Common() IntentCommon
	isIntent()
}

// IntentCommon holds the fields every intent carries.
type IntentCommon struct {
	Reasons    []string
	Confidence float64 // 0 when the strategy does not report one
	Tags       []string
	Meta       any // Strategy-chosen payload, copied verbatim onto positions
}

// Common returns the shared intent fields.
func (c IntentCommon) Common() IntentCommon { return c }

// EnterIntent asks to open a position.
type EnterIntent struct {
	IntentCommon
	Side       Side
	EntryType  EntryType
	LimitPrice float64 // Only used for EntryLimit
	StopPrice  float64
	Management *PositionManagementPlan
}

// ReduceIntent asks to close a fraction of the original position quantity.
type ReduceIntent struct {
	IntentCommon
	Side         Side
	Price        float64 // 0 means the bar close
	SizeFraction float64
}

// MoveStopIntent asks to move the protective stop.
type MoveStopIntent struct {
	IntentCommon
	Side      Side
	StopPrice float64
}

// CloseIntent asks to close the whole remaining position.
type CloseIntent struct {
	IntentCommon
	Side  Side
	Price float64 // 0 means the bar close
}

// HoldIntent explicitly does nothing.
type HoldIntent struct {
	IntentCommon
}

func (EnterIntent) Kind() IntentKind    { return IntentEnter }
func (ReduceIntent) Kind() IntentKind   { return IntentReduce }
func (MoveStopIntent) Kind() IntentKind { return IntentMoveStop }
func (CloseIntent) Kind() IntentKind    { return IntentClose }
func (HoldIntent) Kind() IntentKind     { return IntentHold }

func (EnterIntent) isIntent()    {}
func (ReduceIntent) isIntent()   {}
func (MoveStopIntent) isIntent() {}
func (CloseIntent) isIntent()    {}
func (HoldIntent) isIntent()     {}

// PositionManagementPlan is the take-profit ladder and close/cooldown policy attached to a position.
type PositionManagementPlan struct {
	TakeProfits           []TakeProfitInstruction
	CloseOnOppositeIntent bool
	CooldownBars          int
}

// TakeProfitInstruction is a partial-close target. SizeFraction is relative to the original
// position quantity, not the remaining one.
type TakeProfitInstruction struct {
	ID                  string
	Label               string
	Price               float64
	SizeFraction        float64
	MoveStopToBreakeven bool
}

// Clone returns a deep copy of the plan.
func (p *PositionManagementPlan) Clone() *PositionManagementPlan {
	if p == nil {
		return nil
	}
	out := *p
	if p.TakeProfits != nil {
		out.TakeProfits = append([]TakeProfitInstruction(nil), p.TakeProfits...)
	}
	return &out
}

// PlanIssue describes one problem found in a management plan.
type PlanIssue struct {
	TargetID string
	Price    float64
	Problem  string
}

func (i PlanIssue) String() string {
	return fmt.Sprintf("target %q at %v: %s", i.TargetID, i.Price, i.Problem)
}

// ValidatePlan reports take-profit targets that can never behave as intended. It does not
// change the plan: a target on the wrong side of entry simply never passes its touch test.
func ValidatePlan(side Side, entry float64, plan *PositionManagementPlan) []PlanIssue {
	if plan == nil {
		return nil
	}
	var issues []PlanIssue
	seen := make(map[float64]string, len(plan.TakeProfits))
	total := 0.0
	for _, tp := range plan.TakeProfits {
		if tp.SizeFraction <= 0 || tp.SizeFraction > 1 {
			issues = append(issues, PlanIssue{TargetID: tp.ID, Price: tp.Price, Problem: "size fraction outside (0,1]"})
		} else {
			total += tp.SizeFraction
		}
		switch {
		case side == SideLong && tp.Price <= entry:
			issues = append(issues, PlanIssue{TargetID: tp.ID, Price: tp.Price, Problem: "long target at or below entry"})
		case side == SideShort && tp.Price >= entry:
			issues = append(issues, PlanIssue{TargetID: tp.ID, Price: tp.Price, Problem: "short target at or above entry"})
		}
		if other, ok := seen[tp.Price]; ok {
			issues = append(issues, PlanIssue{TargetID: tp.ID, Price: tp.Price, Problem: fmt.Sprintf("shares its price with target %q", other)})
		} else {
			seen[tp.Price] = tp.ID
		}
	}
	if total > 1+1e-9 {
		issues = append(issues, PlanIssue{Problem: fmt.Sprintf("size fractions sum to %v", total)})
	}
	return issues
}
