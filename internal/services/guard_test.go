package services

import (
	"testing"
	"time"

	"auction-engine/internal/clock"

	"github.com/stretchr/testify/require"
)

func TestActorGuard_InFlight(t *testing.T) {
	t.Parallel()

	g := NewActorGuard(clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))

	require.True(t, g.TryBegin(1))
	require.False(t, g.TryBegin(1), "second begin before end must fail")
	require.True(t, g.TryBegin(2), "other actors are independent")

	g.End(1)
	require.True(t, g.TryBegin(1), "begin after end must succeed")
}

func TestActorGuard_Cooldown(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	g := NewActorGuard(clk)

	require.False(t, g.OnCooldown(1))

	g.SetCooldown(1, time.Second)
	require.True(t, g.OnCooldown(1))
	require.False(t, g.OnCooldown(2))

	clk.Advance(999 * time.Millisecond)
	require.True(t, g.OnCooldown(1))

	clk.Advance(time.Millisecond)
	require.False(t, g.OnCooldown(1), "cooldown ends exactly at the instant")
}

func TestActorGuard_Reset(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	g := NewActorGuard(clk)

	require.True(t, g.TryBegin(1))
	g.SetCooldown(2, time.Minute)

	g.Reset()
	require.True(t, g.TryBegin(1))
	require.False(t, g.OnCooldown(2))
}
