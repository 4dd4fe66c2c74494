package backtest

import (
	"github.com/shopspring/decimal"

	"tradecore/internal/domain"
)

type leg int

const (
	legEntry leg = iota
	legExit
)

var bpsDivisor = decimal.NewFromInt(10000)

// applySlippage worsens price for the position holder: long entries and short exits pay
// more, long exits and short entries receive less.
func applySlippage(price float64, side domain.Side, l leg, cfg SlippageConfig) float64 {
	if cfg.Model != SlippageFixedBps || cfg.Bps == 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	adj := p.Mul(decimal.NewFromFloat(cfg.Bps)).Div(bpsDivisor)
	payMore := (side == domain.SideLong) == (l == legEntry)
	if payMore {
		p = p.Add(adj)
	} else {
		p = p.Sub(adj)
	}
	return p.InexactFloat64()
}

// feeFor returns |price*qty|*rate.
func feeFor(price, qty, rate float64) float64 {
	if rate == 0 {
		return 0
	}
	notional := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(qty)).Abs()
	return notional.Mul(decimal.NewFromFloat(rate)).InexactFloat64()
}

// grossPnl is the side-signed price move times quantity.
func grossPnl(side domain.Side, entry, exit, qty float64) float64 {
	move := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry))
	if side == domain.SideShort {
		move = move.Neg()
	}
	return move.Mul(decimal.NewFromFloat(qty)).InexactFloat64()
}

func sub(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).InexactFloat64()
}

func add(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).InexactFloat64()
}

func mul(a, b float64) float64 {
	return decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).InexactFloat64()
}
