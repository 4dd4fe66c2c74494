package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/domain"
)

func TestCandlesCSVRoundTrip(t *testing.T) {
	start := time.Date(2024, 2, 7, 0, 0, 0, 0, time.UTC)
	candles := []domain.Candle{
		{Time: start, Open: 100, High: 101.5, Low: 99.25, Close: 101, Volume: 12.5},
		{Time: start.Add(time.Hour), Open: 101, High: 103, Low: 100, Close: 102.75, Volume: 8},
	}

	path := filepath.Join(t.TempDir(), "nested", "ETHUSDT_1h.csv")
	require.NoError(t, WriteCandlesToCSV(candles, path))

	got, err := ReadCandlesFromCSV(path)
	require.NoError(t, err)
	assert.Equal(t, candles, got)
}

func TestReadCandles_ExtraColumnsAndMillis(t *testing.T) {
	input := "open_time,close_time,symbol,interval,open,high,low,close,volume\n" +
		"1704067200000,1704070799999,ETHUSDT,1h,1,2,0.5,1.5,10\n" +
		"2024-01-01T01:00:00Z,2024-01-01T01:59:59Z,ETHUSDT,1h,1.5,2.5,1,2,11\n"

	got, err := ReadCandles(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Time.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, got[1].Time.Equal(time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2.0, got[1].Close)
}

func TestReadCandles_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing column", "open_time,open,high,low,close\n", `missing column "volume"`},
		{"bad number", "open_time,open,high,low,close,volume\n1704067200000,1,x,1,1,1\n", "line 2: high"},
		{"bad time", "open_time,open,high,low,close,volume\nyesterday,1,1,1,1,1\n", "line 2: open_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCandles(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	got, err := ReadCandles(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteFillsAndEquity(t *testing.T) {
	dir := t.TempDir()
	fills := []domain.Fill{{
		ID: "f1", OrderID: "o1", PositionID: "p1", Reason: domain.FillReasonTP, Label: "1R",
		Side: domain.SideLong, TimeMs: 1704067200000, Price: 110, Quantity: 0.5, GrossPnl: 5, Fee: 0.1, NetPnl: 4.9,
	}}
	require.NoError(t, WriteFillsToCSV(fills, filepath.Join(dir, "fills.csv")))

	raw, err := os.ReadFile(filepath.Join(dir, "fills.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "f1,o1,p1,tp,1R,long,2024-01-01T00:00:00Z,110,0.5,5,0.1,4.9", lines[1])

	curve := []domain.EquityPoint{{Index: 0, TimeMs: 1704067200000, Equity: 1000}}
	require.NoError(t, WriteEquityToCSV(curve, filepath.Join(dir, "equity.csv")))
	raw, err = os.ReadFile(filepath.Join(dir, "equity.csv"))
	require.NoError(t, err)
	assert.Equal(t, "index,time,equity\n0,2024-01-01T00:00:00Z,1000\n", string(raw))
}
