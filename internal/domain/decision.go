package domain

import (
	"sort"
	"time"
)

// Snapshot is the strategy's view of one bar, built before evaluation.
type Snapshot struct {
	Time     time.Time
	Price    float64
	Features map[string]float64
	Labels   map[string]string
}

// StrategyDecision is the full output of one strategy evaluation at one bar.
type StrategyDecision struct {
	SnapshotTime time.Time
	Confidence   float64
	Reasons      []string
	Intents      []TradingIntent
	Diagnostics  map[string]any
}

// FirstEnter returns the first enter intent, if any.
func (d StrategyDecision) FirstEnter() (EnterIntent, bool) {
	for _, in := range d.Intents {
		if e, ok := in.(EnterIntent); ok {
			return e, true
		}
	}
	return EnterIntent{}, false
}

// HasEnter reports whether any enter intent targets side.
func (d StrategyDecision) HasEnter(side Side) bool {
	for _, in := range d.Intents {
		if e, ok := in.(EnterIntent); ok && e.Side == side {
			return true
		}
	}
	return false
}

// FirstClose returns the first close intent for the given side, if any.
func (d StrategyDecision) FirstClose(side Side) (CloseIntent, bool) {
	for _, in := range d.Intents {
		if c, ok := in.(CloseIntent); ok && c.Side == side {
			return c, true
		}
	}
	return CloseIntent{}, false
}

// MarketData is the read-only input series of a run. Series holds auxiliary timeframes
// keyed by timeframe identifier.
type MarketData struct {
	Symbol    string
	Timeframe Timeframe
	Candles   []Candle
	Series    map[string][]Candle
}

// MarketView is the bar-bounded window a strategy sees at one index.
type MarketView struct {
	Symbol    string
	Timeframe Timeframe
	Index     int
	Candles   []Candle // Execution series up to and including Index
	Series    map[string][]Candle
}

// Current returns the bar being evaluated.
func (v MarketView) Current() Candle {
	return v.Candles[len(v.Candles)-1]
}

// ViewAt returns the window ending at index i. Auxiliary series keyed by a known timeframe are
// cut to bars that have closed by the end of the current bar; other series are cut by open time.
// Either way strategies cannot read future data.
func (m MarketData) ViewAt(i int) MarketView {
	view := MarketView{
		Symbol:    m.Symbol,
		Timeframe: m.Timeframe,
		Index:     i,
		Candles:   m.Candles[: i+1 : i+1],
	}
	if len(m.Series) > 0 {
		now := m.Candles[i].Time
		barEnd := now.Add(m.Timeframe.Duration())
		view.Series = make(map[string][]Candle, len(m.Series))
		for key, series := range m.Series {
			var visible func(c Candle) bool
			if tf, ok := ParseTimeframe(key); ok && m.Timeframe.Duration() > 0 {
				visible = func(c Candle) bool { return !c.Time.Add(tf.Duration()).After(barEnd) }
			} else {
				visible = func(c Candle) bool { return !c.Time.After(now) }
			}
			n := sort.Search(len(series), func(j int) bool { return !visible(series[j]) })
			view.Series[key] = series[:n:n]
		}
	}
	return view
}
