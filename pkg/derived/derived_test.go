package derived

import (
	"math"
	"testing"
	"time"

	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampProgress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   float64
		want int
	}{
		{"zero", 0, 0},
		{"in range", 42, 42},
		{"upper bound", 100, 100},
		{"negative", -15, 0},
		{"above max", 250, 100},
		{"rounds half up", 49.5, 50},
		{"rounds down", 49.4, 49},
		{"large negative", math.MinInt32, 0},
		{"large positive", math.MaxInt32, 100},
		{"nan", math.NaN(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClampProgress(tt.in))
		})
	}
}

func TestClampProgress_IdempotentAndInRange(t *testing.T) {
	t.Parallel()

	for n := -300; n <= 300; n++ {
		once := ClampProgress(float64(n))
		assert.GreaterOrEqual(t, once, MinProgress)
		assert.LessOrEqual(t, once, MaxProgress)
		assert.Equal(t, once, ClampProgress(float64(once)), "clamp should be idempotent for %d", n)
	}
}

func TestComputeOverdue(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("unset due date is never overdue", func(t *testing.T) {
		assert.False(t, ComputeOverdue(nil, now))
		assert.False(t, ComputeOverdue(pointerutil.String(""), now))
		assert.False(t, ComputeOverdue(pointerutil.String("   "), now))
	})

	t.Run("unparseable due date is never overdue", func(t *testing.T) {
		assert.False(t, ComputeOverdue(pointerutil.String("next tuesday"), now))
		assert.False(t, ComputeOverdue(pointerutil.String("2024-13-45"), now))
	})

	t.Run("past date is overdue", func(t *testing.T) {
		assert.True(t, ComputeOverdue(pointerutil.String("2024-01-01"), now))
	})

	t.Run("future date is not overdue", func(t *testing.T) {
		assert.False(t, ComputeOverdue(pointerutil.String("2024-04-01"), now))
	})

	t.Run("exactly now is not overdue", func(t *testing.T) {
		assert.False(t, ComputeOverdue(pointerutil.String("2024-03-15T12:00:00Z"), now))
	})

	t.Run("one second before now is overdue", func(t *testing.T) {
		assert.True(t, ComputeOverdue(pointerutil.String("2024-03-15T11:59:59Z"), now))
	})

	t.Run("timestamps with offsets are compared as instants", func(t *testing.T) {
		// 13:00 at +02:00 is 11:00 UTC.
		assert.True(t, ComputeOverdue(pointerutil.String("2024-03-15T13:00:00+02:00"), now))
	})

	t.Run("zone-less timestamps are read as UTC", func(t *testing.T) {
		assert.False(t, ComputeOverdue(pointerutil.String("2024-03-15T12:30:00"), now))
		assert.True(t, ComputeOverdue(pointerutil.String("2024-03-15T11:30:00"), now))
	})
}

func TestParseDueDate(t *testing.T) {
	t.Parallel()

	got, err := ParseDueDate(" 2024-01-01 ")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseDueDate("")
	require.Error(t, err)

	_, err = ParseDueDate("01/02/2024")
	require.Error(t, err)
}
