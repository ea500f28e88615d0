package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsNonPositiveCapacity(t *testing.T) {
	t.Parallel()

	for _, c := range []int{0, -1, -100} {
		_, err := New[int](c)
		assert.Error(t, err, "capacity %d", c)
	}
}

func TestAppend_OverwritesOldest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		capacity int
		appends  int
		want     []int
	}{
		{"under capacity", 5, 3, []int{0, 1, 2}},
		{"exactly full", 3, 3, []int{0, 1, 2}},
		{"wraps once", 3, 5, []int{2, 3, 4}},
		{"wraps many times", 4, 23, []int{19, 20, 21, 22}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := New[int](tt.capacity)
			require.NoError(t, err)

			for i := 0; i < tt.appends; i++ {
				b.Append(i)
			}

			assert.Equal(t, tt.want, b.All())
			if tt.appends >= tt.capacity {
				assert.Equal(t, tt.capacity, b.Len())
			} else {
				assert.Equal(t, tt.appends, b.Len())
			}
		})
	}
}

func TestLast(t *testing.T) {
	t.Parallel()

	b := MustNew[int](4)
	for i := 0; i < 6; i++ { // holds 2,3,4,5
		b.Append(i)
	}

	assert.Equal(t, []int{4, 5}, b.Last(2))
	assert.Equal(t, []int{2, 3, 4, 5}, b.Last(4))
	assert.Equal(t, []int{2, 3, 4, 5}, b.Last(99))
}

// Last(0) must be empty, never the whole buffer.
func TestLast_ZeroReturnsEmpty(t *testing.T) {
	t.Parallel()

	b := MustNew[string](3)
	b.Append("a")
	b.Append("b")

	got := b.Last(0)
	require.NotNil(t, got)
	assert.Empty(t, got)

	assert.Empty(t, b.Last(-1))
}
