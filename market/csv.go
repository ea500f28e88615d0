package market

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// FileProvider loads one CSV of daily bars per symbol and serves them as
// snapshots. Row format (header optional):
//
//	date,open,high,low,close,volume[,rsi,macd]
//
// Dates are YYYY-MM-DD. Indicator columns are optional; missing columns
// leave the indicator zeroed.
type FileProvider struct {
	static *StaticProvider
}

func NewFileProvider() *FileProvider {
	return &FileProvider{static: NewStaticProvider()}
}

// LoadSymbol reads path and registers every row under symbol.
func (p *FileProvider) LoadSymbol(symbol, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("market: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // indicator columns vary

	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("market: read %s: %w", path, err)
		}
		line++

		if len(rec) < 6 {
			return fmt.Errorf("market: %s line %d: want at least 6 fields, got %d", path, line, len(rec))
		}
		// Skip a header row if present.
		if line == 1 {
			if _, err := time.Parse("2006-01-02", rec[0]); err != nil {
				continue
			}
		}

		snap, err := parseRow(symbol, rec)
		if err != nil {
			return fmt.Errorf("market: %s line %d: %w", path, line, err)
		}
		p.static.Add(snap)
	}
	return nil
}

func (p *FileProvider) Get(ctx context.Context, symbol string, date time.Time) (Snapshot, error) {
	return p.static.Get(ctx, symbol, date)
}

func parseRow(symbol string, rec []string) (Snapshot, error) {
	date, err := time.Parse("2006-01-02", rec[0])
	if err != nil {
		return Snapshot{}, fmt.Errorf("bad date %q: %w", rec[0], err)
	}

	var vals [4]float64
	for i, name := range []string{"open", "high", "low", "close"} {
		v, err := strconv.ParseFloat(rec[i+1], 64)
		if err != nil {
			return Snapshot{}, fmt.Errorf("bad %s %q: %w", name, rec[i+1], err)
		}
		vals[i] = v
	}

	vol, err := strconv.ParseInt(rec[5], 10, 64)
	if err != nil {
		return Snapshot{}, fmt.Errorf("bad volume %q: %w", rec[5], err)
	}

	snap := Snapshot{
		Symbol: symbol,
		Date:   date,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vol,
	}
	if len(rec) > 6 {
		snap.Indicators.RSI, _ = strconv.ParseFloat(rec[6], 64)
	}
	if len(rec) > 7 {
		snap.Indicators.MACD, _ = strconv.ParseFloat(rec[7], 64)
	}
	return snap, nil
}
