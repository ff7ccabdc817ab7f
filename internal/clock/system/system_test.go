package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowIsUTC(t *testing.T) {
	t.Parallel()

	got := New().Now()
	require.Equal(t, time.UTC, got.Location())
}

func TestNowTracksWallClock(t *testing.T) {
	t.Parallel()

	clk := New()
	lo := time.Now().UTC().Add(-2 * time.Second)
	got := clk.Now()
	hi := time.Now().UTC().Add(2 * time.Second)

	require.False(t, got.Before(lo), "clock reads before the test started")
	require.False(t, got.After(hi), "clock reads after the test finished")
	require.False(t, clk.Now().Before(got))
}
