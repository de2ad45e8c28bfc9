package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRangeNextStaysInBounds(t *testing.T) {
	ranges := []Range{
		{Min: 0, Max: 0},
		{Min: 5 * time.Millisecond, Max: 5 * time.Millisecond},
		{Min: 0, Max: 3 * time.Millisecond},
		{Min: 30 * time.Second, Max: 90 * time.Second},
	}
	for _, r := range ranges {
		require.NoError(t, r.Validate())
		for i := 0; i < 2000; i++ {
			d := r.Next()
			assert.GreaterOrEqual(t, d, r.Min, r.String())
			assert.LessOrEqual(t, d, r.Max, r.String())
			assert.Zero(t, d%time.Millisecond)
		}
	}
}

func TestRangeNextHitsBothEnds(t *testing.T) {
	r := Range{Min: time.Millisecond, Max: 2 * time.Millisecond}
	seen := map[time.Duration]bool{}
	for i := 0; i < 500; i++ {
		seen[r.Next()] = true
	}
	assert.True(t, seen[r.Min], "inclusive lower bound")
	assert.True(t, seen[r.Max], "inclusive upper bound")
	assert.Len(t, seen, 2)
}

func TestRangeValidate(t *testing.T) {
	assert.Error(t, Range{Min: 2 * time.Second, Max: time.Second}.Validate())
	assert.Error(t, Range{Min: -time.Second, Max: time.Second}.Validate())
	assert.Equal(t, "30000-90000ms", Range{Min: 30 * time.Second, Max: 90 * time.Second}.String())
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleepElapses(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))
	require.NoError(t, Sleep(context.Background(), 0))
}

func TestLimiter(t *testing.T) {
	var nilLimiter *Limiter
	require.NoError(t, nilLimiter.Wait(context.Background()))
	require.NoError(t, NewLimiter(0).Wait(context.Background()))

	l := NewLimiter(1)
	require.NoError(t, l.Wait(context.Background()), "first token is immediate")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx), "second send inside the same minute must wait")
}
