// Package utils holds CSV import and export of candles and run records.
package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tradecore/internal/domain"
)

var candleHeader = []string{"open_time", "open", "high", "low", "close", "volume"}

// ReadCandlesFromCSV reads a candle file. Columns are located by header name, so files
// carrying extra columns (close_time, symbol, interval) load as well. open_time may be
// RFC3339 or Unix milliseconds.
func ReadCandlesFromCSV(filename string) ([]domain.Candle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	candles, err := ReadCandles(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return candles, nil
}

// ReadCandles parses candles from r in the format written by WriteCandles.
func ReadCandles(r io.Reader) ([]domain.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range candleHeader {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var candles []domain.Candle
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		field := func(name string) string {
			if i := idx[name]; i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}

		openTime, err := parseTime(field("open_time"))
		if err != nil {
			return nil, fmt.Errorf("line %d: open_time: %w", line, err)
		}
		var values [5]float64
		for i, name := range candleHeader[1:] {
			v, err := strconv.ParseFloat(field(name), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, name, err)
			}
			values[i] = v
		}
		candles = append(candles, domain.Candle{
			Time:   openTime,
			Open:   values[0],
			High:   values[1],
			Low:    values[2],
			Close:  values[3],
			Volume: values[4],
		})
	}
	return candles, nil
}

func parseTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// WriteCandlesToCSV writes candles to filename, creating parent directories.
func WriteCandlesToCSV(candles []domain.Candle, filename string) error {
	return writeFile(filename, func(w io.Writer) error { return WriteCandles(w, candles) })
}

// WriteCandles writes candles with an open_time,open,high,low,close,volume header.
func WriteCandles(w io.Writer, candles []domain.Candle) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(candleHeader); err != nil {
		return err
	}
	for _, c := range candles {
		if err := writer.Write([]string{
			c.Time.UTC().Format(time.RFC3339),
			formatF(c.Open),
			formatF(c.High),
			formatF(c.Low),
			formatF(c.Close),
			formatF(c.Volume),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFillsToCSV exports the fills of a run.
func WriteFillsToCSV(fills []domain.Fill, filename string) error {
	return writeFile(filename, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.Write([]string{
			"fill_id", "order_id", "position_id", "reason", "label", "side", "time",
			"price", "quantity", "gross_pnl", "fee", "net_pnl",
		}); err != nil {
			return err
		}
		for _, f := range fills {
			if err := writer.Write([]string{
				f.ID, f.OrderID, f.PositionID, string(f.Reason), f.Label, string(f.Side),
				time.UnixMilli(f.TimeMs).UTC().Format(time.RFC3339),
				formatF(f.Price), formatF(f.Quantity), formatF(f.GrossPnl), formatF(f.Fee), formatF(f.NetPnl),
			}); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	})
}

// WriteEquityToCSV exports an equity curve.
func WriteEquityToCSV(curve []domain.EquityPoint, filename string) error {
	return writeFile(filename, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.Write([]string{"index", "time", "equity"}); err != nil {
			return err
		}
		for _, pt := range curve {
			if err := writer.Write([]string{
				strconv.Itoa(pt.Index),
				time.UnixMilli(pt.TimeMs).UTC().Format(time.RFC3339),
				formatF(pt.Equity),
			}); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	})
}

func writeFile(filename string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
