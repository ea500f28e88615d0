package market

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func TestStaticProvider(t *testing.T) {
	t.Parallel()

	p := NewStaticProvider()
	p.Add(Snapshot{Symbol: "AAPL", Date: day, Close: 200})

	got, err := p.Get(context.Background(), "AAPL", day)
	require.NoError(t, err)
	assert.Equal(t, 200.0, got.Close)

	_, err = p.Get(context.Background(), "AAPL", day.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, ErrNotAvailable)
	_, err = p.Get(context.Background(), "MSFT", day)
	assert.ErrorIs(t, err, ErrNotAvailable)
}

func TestReturns(t *testing.T) {
	t.Parallel()

	snaps := []Snapshot{
		{Close: 100},
		{Close: 110},
		{Close: 99},
	}
	rs := Returns(snaps)
	require.Len(t, rs, 2)
	assert.InDelta(t, 0.10, rs[0], 1e-9)
	assert.InDelta(t, -0.10, rs[1], 1e-9)

	assert.Nil(t, Returns(nil))
	assert.Nil(t, Returns(snaps[:1]))

	// Bad previous closes are skipped, not divided by.
	withZero := []Snapshot{{Close: 0}, {Close: 100}, {Close: 101}}
	assert.Len(t, Returns(withZero), 1)
}

func TestFileProviderLoadSymbol(t *testing.T) {
	t.Parallel()

	raw := `date,open,high,low,close,volume,rsi,macd
2024-06-03,199,201,198,200,1000000,28.5,-0.4
2024-06-04,201,205,200,204,1200000,35.0,0.1
`
	path := filepath.Join(t.TempDir(), "AAPL.csv")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	p := NewFileProvider()
	require.NoError(t, p.LoadSymbol("AAPL", path))

	got, err := p.Get(context.Background(), "AAPL", day)
	require.NoError(t, err)
	assert.Equal(t, 199.0, got.Open)
	assert.Equal(t, 200.0, got.Close)
	assert.Equal(t, int64(1_000_000), got.Volume)
	assert.InDelta(t, 28.5, got.Indicators.RSI, 1e-9)
	assert.InDelta(t, -0.4, got.Indicators.MACD, 1e-9)

	next, err := p.Get(context.Background(), "AAPL", day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 204.0, next.Close)
}

func TestFileProviderHeaderless(t *testing.T) {
	t.Parallel()

	raw := "2024-06-03,199,201,198,200,1000000\n"
	path := filepath.Join(t.TempDir(), "X.csv")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	p := NewFileProvider()
	require.NoError(t, p.LoadSymbol("X", path))

	got, err := p.Get(context.Background(), "X", day)
	require.NoError(t, err)
	assert.Equal(t, 200.0, got.Close)
	assert.Zero(t, got.Indicators.RSI)
}

func TestFileProviderBadRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"short row", "2024-06-03,199,201\n"},
		{"bad price", "2024-06-03,abc,201,198,200,1000000\n"},
		{"bad volume", "2024-06-03,199,201,198,200,lots\n"},
		{"bad date mid-file", "2024-06-03,199,201,198,200,1000000\n03/06/2024,199,201,198,200,1000000\n"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "bad.csv")
			require.NoError(t, os.WriteFile(path, []byte(tt.raw), 0o644))
			assert.Error(t, NewFileProvider().LoadSymbol("X", path))
		})
	}
}

func TestDateKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "2024-06-03", DateKey(day))
}
