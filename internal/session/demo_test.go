package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheOriginalAyaka/discord-package-app/internal/demo"
	"github.com/TheOriginalAyaka/discord-package-app/internal/features"
)

func TestCoordinator_DemoWithAnalytics(t *testing.T) {
	c, binding, clock := runCoordinator(t, WithDemoIDGenerator(func() string { return "demo-1" }))

	require.NoError(t, c.StartDemo())
	s := c.State()
	require.Equal(t, PhaseExtractingPrimary, s.Phase)
	require.Equal(t, SourceDemo, s.Source)
	require.Equal(t, "demo-1", s.SessionID)
	require.Equal(t, MsgLoadingDemo, s.ProgressMessage)
	require.True(t, s.WantsAnalytics())
	require.Empty(t, binding.Starts(), "demo never touches the engine")
	require.Equal(t, 2, clock.Pending())

	clock.Advance(3 * time.Second)
	s = waitForState(t, c, func(s State) bool { return s.Phase == PhaseExtractingAnalytics }, "primary delivered")
	fixture := demo.MustFixture()
	require.Equal(t, fixture.Primary.User.Username, s.Primary.User.Username)
	require.Equal(t, MsgLoadingAnalytics, s.ProgressMessage)

	clock.Advance(7 * time.Second)
	s = waitForState(t, c, func(s State) bool { return s.Phase == PhaseIdle }, "analytics delivered")
	require.NotNil(t, s.Analytics)
	require.Equal(t, fixture.Analytics.AllEvents, s.Analytics.AllEvents)
	require.Empty(t, s.ProgressMessage)
	require.Equal(t, epoch.Add(10*time.Second), s.FinishedAt)
	require.Zero(t, clock.Pending())
}

func TestCoordinator_DemoWithoutAnalytics(t *testing.T) {
	c, _, clock := runCoordinator(t, WithEnabledFeatures(features.Of()))

	require.NoError(t, c.StartDemo())
	require.False(t, c.State().WantsAnalytics())
	require.Equal(t, 1, clock.Pending(), "no analytics timer armed")

	clock.Advance(time.Hour)
	s := waitForState(t, c, func(s State) bool { return s.Phase == PhaseIdle }, "primary delivered")
	require.NotNil(t, s.Primary)
	require.Nil(t, s.Analytics)
	require.Zero(t, clock.Pending())
}

func TestCoordinator_DemoBothTimersFireTogether(t *testing.T) {
	c, _, clock := runCoordinator(t)

	require.NoError(t, c.StartDemo())
	clock.Advance(time.Minute)

	s := waitForState(t, c, func(s State) bool { return s.Phase == PhaseIdle }, "finished")
	require.NotNil(t, s.Primary)
	require.NotNil(t, s.Analytics)
	require.Zero(t, c.Stats().OutOfPhase)
}

func TestCoordinator_DemoCancelStopsTimers(t *testing.T) {
	c, _, clock := runCoordinator(t)

	require.NoError(t, c.StartDemo())
	require.True(t, c.Cancel())
	require.Zero(t, clock.Pending())

	clock.Advance(time.Minute)
	s := c.State()
	require.Equal(t, PhaseCancelled, s.Phase)
	require.Nil(t, s.Primary)
	require.Nil(t, s.Analytics)
}

func TestCoordinator_DemoCancelDuringAnalytics(t *testing.T) {
	c, _, clock := runCoordinator(t)

	require.NoError(t, c.StartDemo())
	clock.Advance(3 * time.Second)
	waitForState(t, c, func(s State) bool { return s.Phase == PhaseExtractingAnalytics }, "primary delivered")

	require.True(t, c.Cancel())
	require.Zero(t, clock.Pending())

	clock.Advance(time.Minute)
	s := c.State()
	require.Equal(t, PhaseCancelled, s.Phase)
	require.NotNil(t, s.Primary)
	require.Nil(t, s.Analytics)
}

func TestCoordinator_DemoResetStopsTimers(t *testing.T) {
	c, _, clock := runCoordinator(t)

	require.NoError(t, c.StartDemo())
	c.Reset()
	require.Zero(t, clock.Pending())

	clock.Advance(time.Minute)
	s := c.State()
	require.Equal(t, PhaseIdle, s.Phase)
	require.Nil(t, s.Primary)
}

func TestCoordinator_DemoRestartIgnoresOldRun(t *testing.T) {
	ids := []string{"demo-a", "demo-b"}
	next := 0
	c, _, clock := runCoordinator(t, WithDemoIDGenerator(func() string {
		id := ids[next]
		next++
		return id
	}))

	require.NoError(t, c.StartDemo())
	require.True(t, c.Cancel())
	require.NoError(t, c.StartDemo())
	require.Equal(t, "demo-b", c.State().SessionID)

	clock.Advance(3 * time.Second)
	s := waitForState(t, c, func(s State) bool { return s.Phase == PhaseExtractingAnalytics }, "second demo primary")
	require.Equal(t, "demo-b", s.SessionID)
	require.Equal(t, uint64(3), s.Generation)
}

func TestCoordinator_DemoWithCustomSource(t *testing.T) {
	clock := demo.NewManualClock(epoch)
	src := demo.NewSource(clock, demo.Options{PrimaryDelay: time.Second, AnalyticsDelay: 2 * time.Second})
	c, _, _ := runCoordinator(t, WithDemoSource(src))

	require.NoError(t, c.StartDemo())
	clock.Advance(time.Second)
	waitForState(t, c, func(s State) bool { return s.Phase == PhaseExtractingAnalytics }, "primary")
	clock.Advance(time.Second)
	waitForState(t, c, func(s State) bool { return s.Phase == PhaseIdle }, "analytics")
}
