package ricochet_test

import (
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"ricochet-server/internal/grid"
	"ricochet-server/internal/ricochet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock runs timer callbacks synchronously from Advance.
type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) ricochet.Timer {
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	end := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(end) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}
		c.now = next.at
		next.fired = true
		next.f()
	}
	c.now = end
}

type recorder struct {
	events []ricochet.Event
}

func (r *recorder) Emit(e ricochet.Event) { r.events = append(r.events, e) }

func (r *recorder) types() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) last(typ string) (ricochet.Event, bool) {
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == typ {
			return r.events[i], true
		}
	}
	return ricochet.Event{}, false
}

type fixture struct {
	room   *ricochet.Room
	clock  *fakeClock
	events *recorder
}

func testConfig() ricochet.Config {
	return ricochet.Config{
		MinPlayers:          2,
		MaxPlayers:          4,
		ClaimWindow:         60 * time.Second,
		ClaimGrace:          10 * time.Second,
		VerificationTimeout: 30 * time.Second,
		RoundPause:          5 * time.Second,
		BaselinePoints:      20,
		Robots:              []grid.Color{grid.Red},
	}
}

// newFixture seats and connects the given players on the open 5x5 board.
func newFixture(t *testing.T, cfg ricochet.Config, players ...string) *fixture {
	t.Helper()
	f := &fixture{clock: newFakeClock(), events: &recorder{}}
	room, err := ricochet.NewRoom("TEST", openBoard(t), cfg, f.clock, f.events, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	f.room = room
	for _, p := range players {
		require.NoError(t, room.AddPlayer(p, p))
	}
	for _, p := range players {
		require.NoError(t, room.Connect(p))
	}
	return f
}

var solve2 = []ricochet.Move{
	{Robot: grid.Red, Direction: grid.East},
	{Robot: grid.Red, Direction: grid.South},
}

func TestRoundStartsWhenEnoughPlayersConnect(t *testing.T) {
	f := newFixture(t, testConfig())
	room := f.room
	assert := assert.New(t)

	require.NoError(t, room.AddPlayer("alice", "Alice"))
	require.NoError(t, room.AddPlayer("bob", "Bob"))
	require.NoError(t, room.Connect("alice"))
	assert.Equal(ricochet.WaitingForPlayers, room.Phase())

	require.NoError(t, room.Connect("bob"))
	assert.Equal(ricochet.RoundActive, room.Phase())
	assert.Equal(1, room.Round())
	assert.Equal("alice", room.Host())

	target, ok := room.Target()
	assert.True(ok)
	assert.Equal(redCircle, target)
	assert.Equal(cell(0, 0), room.Robots()[grid.Red])

	ev, ok := f.events.last(ricochet.EventTargetRevealed)
	require.True(t, ok)
	assert.Equal(1, ev.Payload.(ricochet.TargetPayload).Round)
}

func TestSoloRoomStartsWithOnePlayer(t *testing.T) {
	cfg := testConfig()
	cfg.MinPlayers = 1
	f := newFixture(t, cfg, "solo")
	assert.Equal(t, ricochet.RoundActive, f.room.Phase())
}

func TestClaimsMustStrictlyDecrease(t *testing.T) {
	f := newFixture(t, testConfig(), "alice", "bob", "carol")
	room := f.room
	assert := assert.New(t)
	start := f.clock.Now()

	_, err := room.Claim("alice", 5)
	require.NoError(t, err)
	assert.Equal(ricochet.ClaimWindow, room.Phase())
	deadline, _ := room.Deadline()
	assert.Equal(start.Add(60*time.Second), deadline)

	f.clock.Advance(time.Second)
	_, err = room.Claim("bob", 3)
	require.NoError(t, err)
	deadline, _ = room.Deadline()
	assert.Equal(start.Add(11*time.Second), deadline, "improvement shortens the window to the grace period")

	_, err = room.Claim("carol", 4)
	assert.ErrorIs(err, ricochet.ErrClaimTooHigh)
	_, err = room.Claim("carol", 3)
	assert.ErrorIs(err, ricochet.ErrClaimTooHigh)
	_, err = room.Claim("carol", 0)
	assert.ErrorIs(err, ricochet.ErrInvalidClaim)

	best, ok := room.BestClaim()
	require.True(t, ok)
	assert.Equal("bob", best.PlayerID)
	assert.Equal([]int{5, 3}, claimCounts(room.Claims()))

	f.clock.Advance(10 * time.Second)
	assert.Equal(ricochet.VerificationPending, room.Phase())
	claimant, ok := room.Claimant()
	assert.True(ok)
	assert.Equal("bob", claimant)
}

func claimCounts(claims []ricochet.Claim) []int {
	out := make([]int, len(claims))
	for i, c := range claims {
		out[i] = c.Moves
	}
	return out
}

func TestGraceNeverExtendsTheWindow(t *testing.T) {
	f := newFixture(t, testConfig(), "alice", "bob")
	start := f.clock.Now()

	_, err := f.room.Claim("alice", 9)
	require.NoError(t, err)
	f.clock.Advance(55 * time.Second)
	_, err = f.room.Claim("bob", 7)
	require.NoError(t, err)

	deadline, _ := f.room.Deadline()
	assert.Equal(t, start.Add(60*time.Second), deadline)

	f.clock.Advance(5 * time.Second)
	assert.Equal(t, ricochet.VerificationPending, f.room.Phase())
}

func TestVerifiedSolutionScoresAndKeepsRobots(t *testing.T) {
	f := newFixture(t, testConfig(), "alice", "bob")
	room := f.room
	assert := assert.New(t)

	_, err := room.Claim("alice", 2)
	require.NoError(t, err)
	f.clock.Advance(60 * time.Second)
	require.Equal(t, ricochet.VerificationPending, room.Phase())

	v, err := room.SubmitSolution("alice", solve2)
	require.NoError(t, err)
	assert.True(v.ReachesTarget)
	assert.Equal(2, v.MoveCount)

	assert.Equal(ricochet.RoundComplete, room.Phase())
	assert.Equal(cell(4, 4), room.Robots()[grid.Red])
	alice, _ := room.Player("alice")
	assert.Equal(18, alice.Points)

	ev, ok := f.events.last(ricochet.EventRoundResolved)
	require.True(t, ok)
	res := ev.Payload.(ricochet.RoundPayload)
	assert.Equal("alice", res.WinnerID)
	assert.Equal(18, res.Points)
	assert.Equal(solve2, res.Solution)
	assert.Equal(cell(4, 4), res.Robots[grid.Red])

	ev, ok = f.events.last(ricochet.EventScoreboardUpdated)
	require.True(t, ok)
	assert.Equal("alice", ev.Payload.(ricochet.ScoreboardPayload).Scores[0].PlayerID)

	// The only target is covered, so the next round scatters the robots.
	f.clock.Advance(5 * time.Second)
	assert.Equal(ricochet.RoundActive, room.Phase())
	assert.Equal(2, room.Round())
	assert.NotEqual(cell(4, 4), room.Robots()[grid.Red])
}

func TestFailedVerificationFallsBackToNextClaim(t *testing.T) {
	f := newFixture(t, testConfig(), "alice", "bob")
	room := f.room
	assert := assert.New(t)

	_, err := room.Claim("alice", 4)
	require.NoError(t, err)
	_, err = room.Claim("bob", 1)
	require.NoError(t, err)
	f.clock.Advance(10 * time.Second)
	claimant, _ := room.Claimant()
	require.Equal(t, "bob", claimant)

	v, err := room.SubmitSolution("bob", []ricochet.Move{{Robot: grid.Red, Direction: grid.East}})
	assert.ErrorIs(err, ricochet.ErrVerificationFailed)
	assert.False(v.ReachesTarget)

	ev, ok := f.events.last(ricochet.EventClaimForfeited)
	require.True(t, ok)
	assert.Equal(ricochet.ForfeitPayload{PlayerID: "bob", Reason: "VERIFICATION_FAILED"}, ev.Payload)

	assert.Equal(ricochet.VerificationPending, room.Phase())
	claimant, _ = room.Claimant()
	assert.Equal("alice", claimant)
	deadline, _ := room.Deadline()
	assert.Equal(f.clock.Now().Add(30*time.Second), deadline, "fallback claimant gets a fresh timeout")

	// Robots did not move for the failed attempt.
	assert.Equal(cell(0, 0), room.Robots()[grid.Red])

	_, err = room.SubmitSolution("alice", []ricochet.Move{
		{Robot: grid.Red, Direction: grid.East},
		{Robot: grid.Red, Direction: grid.South},
		{Robot: grid.Red, Direction: grid.North},
		{Robot: grid.Red, Direction: grid.South},
	})
	require.NoError(t, err)
	alice, _ := room.Player("alice")
	assert.Equal(16, alice.Points)
}

func TestSolutionWithWrongMoveCountFails(t *testing.T) {
	f := newFixture(t, testConfig(), "alice", "bob")
	_, err := f.room.Claim("alice", 3)
	require.NoError(t, err)
	f.clock.Advance(60 * time.Second)

	v, err := f.room.SubmitSolution("alice", solve2)
	assert.ErrorIs(t, err, ricochet.ErrVerificationFailed)
	assert.True(t, v.ReachesTarget)
	assert.Equal(t, ricochet.RoundComplete, f.room.Phase())

	ev, _ := f.events.last(ricochet.EventRoundResolved)
	assert.Empty(t, ev.Payload.(ricochet.RoundPayload).WinnerID)
	alice, _ := f.room.Player("alice")
	assert.Zero(t, alice.Points)
}

func TestVerificationTimeoutVoidsRound(t *testing.T) {
	f := newFixture(t, testConfig(), "alice", "bob")
	_, err := f.room.Claim("alice", 2)
	require.NoError(t, err)
	f.clock.Advance(60 * time.Second)
	f.clock.Advance(29 * time.Second)
	assert.Equal(t, ricochet.VerificationPending, f.room.Phase())

	f.clock.Advance(time.Second)
	assert.Equal(t, ricochet.RoundComplete, f.room.Phase())

	ev, ok := f.events.last(ricochet.EventClaimForfeited)
	require.True(t, ok)
	assert.Equal(t, "VERIFICATION_TIMED_OUT", ev.Payload.(ricochet.ForfeitPayload).Reason)

	_, err = f.room.SubmitSolution("alice", solve2)
	assert.ErrorIs(t, err, ricochet.ErrInvalidPhaseAction)
}

func TestMalformedSolutionKeepsVerificationOpen(t *testing.T) {
	f := newFixture(t, testConfig(), "alice", "bob")
	_, err := f.room.Claim("alice", 2)
	require.NoError(t, err)
	f.clock.Advance(60 * time.Second)
	before := len(f.events.events)

	_, err = f.room.SubmitSolution("alice", nil)
	assert.ErrorIs(t, err, ricochet.ErrEmptySolution)
	_, err = f.room.SubmitSolution("alice", []ricochet.Move{{Robot: grid.Blue, Direction: grid.East}})
	assert.ErrorIs(t, err, ricochet.ErrUnknownRobot)
	_, err = f.room.SubmitSolution("alice", []ricochet.Move{{Robot: grid.Red, Direction: grid.North}})
	assert.ErrorIs(t, err, ricochet.ErrDegenerateMove)

	assert.Equal(t, before, len(f.events.events))
	claimant, _ := f.room.Claimant()
	assert.Equal(t, "alice", claimant)

	_, err = f.room.SubmitSolution("alice", solve2)
	assert.NoError(t, err)
}

func TestOutOfPhaseActionsHaveNoEffect(t *testing.T) {
	f := newFixture(t, testConfig(), "alice")
	room := f.room
	assert := assert.New(t)

	_, err := room.Claim("alice", 3)
	assert.ErrorIs(err, ricochet.ErrInvalidPhaseAction)

	require.NoError(t, room.AddPlayer("bob", "Bob"))
	require.NoError(t, room.Connect("bob"))
	_, err = room.SubmitSolution("alice", solve2)
	assert.ErrorIs(err, ricochet.ErrInvalidPhaseAction)

	_, err = room.Claim("alice", 2)
	require.NoError(t, err)
	f.clock.Advance(60 * time.Second)

	before := len(f.events.events)
	_, err = room.Claim("bob", 1)
	assert.ErrorIs(err, ricochet.ErrInvalidPhaseAction)
	_, err = room.SubmitSolution("bob", solve2)
	assert.ErrorIs(err, ricochet.ErrInvalidPhaseAction)
	_, err = room.Claim("mallory", 1)
	assert.ErrorIs(err, ricochet.ErrPlayerNotInRoom)
	assert.Equal(before, len(f.events.events))
	assert.Equal(ricochet.VerificationPending, room.Phase())
}

func TestStaleTimerFiringIsIgnored(t *testing.T) {
	f := newFixture(t, testConfig(), "alice", "bob")
	_, err := f.room.Claim("alice", 5)
	require.NoError(t, err)
	window := f.clock.timers[len(f.clock.timers)-1]

	_, err = f.room.Claim("bob", 3)
	require.NoError(t, err)
	assert.True(t, window.stopped)

	// A callback that was already on its way when the timer was replaced.
	window.f()
	assert.Equal(t, ricochet.ClaimWindow, f.room.Phase())

	f.clock.Advance(10 * time.Second)
	verify := f.clock.timers[len(f.clock.timers)-1]
	_, err = f.room.SubmitSolution("bob", []ricochet.Move{{Robot: grid.Red, Direction: grid.South}})
	assert.ErrorIs(t, err, ricochet.ErrVerificationFailed)
	claimant, _ := f.room.Claimant()
	require.Equal(t, "alice", claimant)

	// The first verification timer must not cut the fallback short.
	verify.f()
	assert.Equal(t, ricochet.VerificationPending, f.room.Phase())
	claimant, _ = f.room.Claimant()
	assert.Equal(t, "alice", claimant)
}

func TestDisconnectDuringVerificationKeepsOutcome(t *testing.T) {
	f := newFixture(t, testConfig(), "alice", "bob", "carol")
	_, err := f.room.Claim("alice", 2)
	require.NoError(t, err)
	f.clock.Advance(60 * time.Second)

	require.NoError(t, f.room.Disconnect("carol"))
	require.NoError(t, f.room.Disconnect("bob"))
	assert.Equal(t, ricochet.VerificationPending, f.room.Phase())
	claimant, _ := f.room.Claimant()
	assert.Equal(t, "alice", claimant)

	_, err = f.room.SubmitSolution("alice", solve2)
	require.NoError(t, err)
	ev, _ := f.events.last(ricochet.EventRoundResolved)
	assert.Equal(t, "alice", ev.Payload.(ricochet.RoundPayload).WinnerID)
}

func TestDesertedRoomGoesBackToWaiting(t *testing.T) {
	f := newFixture(t, testConfig(), "alice", "bob")
	room := f.room
	_, err := room.Claim("alice", 4)
	require.NoError(t, err)

	require.NoError(t, room.Disconnect("alice"))
	assert.Equal(t, ricochet.ClaimWindow, room.Phase())
	require.NoError(t, room.Disconnect("bob"))
	assert.Equal(t, ricochet.WaitingForPlayers, room.Phase())
	_, hasTarget := room.Target()
	assert.False(t, hasTarget)

	f.clock.Advance(time.Minute)
	assert.Equal(t, ricochet.WaitingForPlayers, room.Phase(), "claim timer was cancelled")

	require.NoError(t, room.Connect("alice"))
	require.NoError(t, room.Connect("bob"))
	assert.Equal(t, ricochet.RoundActive, room.Phase())
	assert.Equal(t, 2, room.Round())
}

func TestRoundPauseWaitsForPlayers(t *testing.T) {
	f := newFixture(t, testConfig(), "alice", "bob")
	_, err := f.room.Claim("alice", 2)
	require.NoError(t, err)
	f.clock.Advance(60 * time.Second)
	_, err = f.room.SubmitSolution("alice", solve2)
	require.NoError(t, err)

	require.NoError(t, f.room.Disconnect("bob"))
	f.clock.Advance(5 * time.Second)
	assert.Equal(t, ricochet.WaitingForPlayers, f.room.Phase())
}

func TestLeavingRemovesClaimsAndPromotesHost(t *testing.T) {
	f := newFixture(t, testConfig(), "alice", "bob", "carol")
	room := f.room
	assert := assert.New(t)

	_, err := room.Claim("alice", 6)
	require.NoError(t, err)
	require.NoError(t, room.RemovePlayer("alice"))

	assert.Equal(ricochet.ClaimWindow, room.Phase())
	_, ok := room.BestClaim()
	assert.False(ok)
	assert.Equal("bob", room.Host())
	ev, ok := f.events.last(ricochet.EventHostChanged)
	require.True(t, ok)
	assert.Equal("bob", ev.Payload.(ricochet.PlayerPayload).PlayerID)

	_, err = room.Claim("bob", 6)
	assert.ErrorIs(err, ricochet.ErrClaimTooHigh)
	_, err = room.Claim("bob", 5)
	require.NoError(t, err)
	_, err = room.Claim("carol", 4)
	require.NoError(t, err)
	require.NoError(t, room.RemovePlayer("carol"))
	best, _ := room.BestClaim()
	assert.Equal("bob", best.PlayerID)
	assert.Equal(ricochet.ClaimWindow, room.Phase())

	assert.ErrorIs(room.RemovePlayer("carol"), ricochet.ErrPlayerNotInRoom)
}

func TestWithdrawnClaimsStillBoundTheRound(t *testing.T) {
	cfg := testConfig()
	f := newFixture(t, cfg, "alice", "bob", "carol")
	room := f.room
	assert := assert.New(t)
	start := f.clock.Now()

	_, err := room.Claim("alice", 5)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = room.Claim("bob", 3)
	require.NoError(t, err)
	require.NoError(t, room.RemovePlayer("alice"))
	require.NoError(t, room.RemovePlayer("bob"))

	assert.Equal(ricochet.ClaimWindow, room.Phase())
	assert.Equal(1, room.Round())
	deadline, ok := room.Deadline()
	require.True(t, ok)
	assert.Equal(start.Add(11*time.Second), deadline)

	_, err = room.Claim("carol", 9)
	assert.ErrorIs(err, ricochet.ErrClaimTooHigh)
	_, err = room.Claim("carol", 3)
	assert.ErrorIs(err, ricochet.ErrClaimTooHigh)

	_, err = room.Claim("carol", 2)
	require.NoError(t, err)
	deadline, _ = room.Deadline()
	assert.Equal(start.Add(11*time.Second), deadline, "the window keeps its deadline")

	f.clock.Advance(10 * time.Second)
	claimant, ok := room.Claimant()
	require.True(t, ok)
	assert.Equal("carol", claimant)
}

func TestRoundWithEveryClaimWithdrawnIsVoided(t *testing.T) {
	f := newFixture(t, testConfig(), "alice", "bob", "carol")
	room := f.room

	_, err := room.Claim("alice", 5)
	require.NoError(t, err)
	require.NoError(t, room.RemovePlayer("alice"))

	f.clock.Advance(60 * time.Second)
	assert.Equal(t, ricochet.RoundComplete, room.Phase())
	ev, ok := f.events.last(ricochet.EventRoundResolved)
	require.True(t, ok)
	res := ev.Payload.(ricochet.RoundPayload)
	assert.Empty(t, res.WinnerID)
	assert.Equal(t, 1, res.Round)

	f.clock.Advance(5 * time.Second)
	assert.Equal(t, ricochet.RoundActive, room.Phase())
	assert.Equal(t, 2, room.Round())
	_, err = room.Claim("bob", 9)
	assert.NoError(t, err, "a new round starts without a bound")
}

func TestClaimantLeavingForfeits(t *testing.T) {
	f := newFixture(t, testConfig(), "alice", "bob")
	_, err := f.room.Claim("alice", 2)
	require.NoError(t, err)
	f.clock.Advance(60 * time.Second)

	require.NoError(t, f.room.RemovePlayer("alice"))
	assert.Equal(t, ricochet.RoundComplete, f.room.Phase())
	ev, ok := f.events.last(ricochet.EventClaimForfeited)
	require.True(t, ok)
	assert.Equal(t, "PLAYER_LEFT", ev.Payload.(ricochet.ForfeitPayload).Reason)
}

func TestGameOverAfterRoundLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRounds = 1
	f := newFixture(t, cfg, "alice", "bob")

	_, err := f.room.Claim("alice", 2)
	require.NoError(t, err)
	f.clock.Advance(60 * time.Second)
	_, err = f.room.SubmitSolution("alice", solve2)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Second)

	assert.Equal(t, ricochet.GameOver, f.room.Phase())
	ev, ok := f.events.last(ricochet.EventGameOver)
	require.True(t, ok)
	over := ev.Payload.(ricochet.GameOverPayload)
	assert.Equal(t, []string{"alice"}, over.Winners)
	assert.Equal(t, 1, over.Rounds)

	assert.ErrorIs(t, f.room.AddPlayer("dave", "Dave"), ricochet.ErrInvalidPhaseAction)
	_, err = f.room.Claim("bob", 1)
	assert.ErrorIs(t, err, ricochet.ErrInvalidPhaseAction)
}

func TestGameOverAtScoreLimit(t *testing.T) {
	cfg := testConfig()
	cfg.ScoreLimit = 10
	f := newFixture(t, cfg, "alice", "bob")

	_, err := f.room.Claim("bob", 2)
	require.NoError(t, err)
	f.clock.Advance(60 * time.Second)
	_, err = f.room.SubmitSolution("bob", solve2)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Second)

	assert.Equal(t, ricochet.GameOver, f.room.Phase())
}

func TestNewRoomNeedsAFreeTargetEveryRound(t *testing.T) {
	b, err := grid.New(grid.Layout{
		Size: 2,
		Targets: []grid.TargetSpec{
			{Color: grid.Red, Shape: grid.Circle, X: 0, Y: 0},
			{Color: grid.Green, Shape: grid.Circle, X: 1, Y: 0},
			{Color: grid.Blue, Shape: grid.Circle, X: 0, Y: 1},
		},
	})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Robots = []grid.Color{grid.Red, grid.Green, grid.Blue, grid.Yellow}
	_, err = ricochet.NewRoom("TEST", b, cfg, newFakeClock(), nil, rand.New(rand.NewPCG(1, 2)))
	assert.ErrorIs(t, err, grid.ErrInvalidLayout)

	cfg.Robots = []grid.Color{grid.Red, grid.Green}
	_, err = ricochet.NewRoom("TEST", b, cfg, newFakeClock(), nil, rand.New(rand.NewPCG(1, 2)))
	assert.NoError(t, err)
}

func TestCoveredTargetsScatterRobots(t *testing.T) {
	b, err := grid.New(grid.Layout{
		Size:    3,
		Targets: []grid.TargetSpec{{Color: grid.Red, Shape: grid.Circle, X: 1, Y: 1}},
		Robots:  map[grid.Color]grid.Cell{grid.Red: {X: 1, Y: 1}},
	})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.MinPlayers = 1
	cfg.Robots = []grid.Color{grid.Red, grid.Green, grid.Blue, grid.Yellow}
	for seed := range uint64(20) {
		room, err := ricochet.NewRoom("TEST", b, cfg, newFakeClock(), nil, rand.New(rand.NewPCG(seed, 7)))
		require.NoError(t, err)
		require.NoError(t, room.AddPlayer("solo", "solo"))
		require.NoError(t, room.Connect("solo"))

		target, ok := room.Target()
		require.True(t, ok)
		_, covered := room.Robots().RobotAt(target.Cell)
		assert.False(t, covered, "seed %d revealed a covered target", seed)
	}
}

func TestCloseCancelsPendingTimer(t *testing.T) {
	f := newFixture(t, testConfig(), "alice", "bob")
	_, err := f.room.Claim("alice", 2)
	require.NoError(t, err)

	f.room.Close()
	_, ok := f.room.Deadline()
	assert.False(t, ok)
	for _, timer := range f.clock.timers {
		assert.True(t, timer.stopped || timer.fired)
	}

	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, ricochet.ClaimWindow, f.room.Phase())
	_, started := f.events.last(ricochet.EventVerificationStarted)
	assert.False(t, started)
}

func TestAddPlayerRules(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPlayers = 2
	f := newFixture(t, cfg)
	room := f.room

	require.NoError(t, room.AddPlayer("a", "Alice"))
	assert.ErrorIs(t, room.AddPlayer("a", "Other"), ricochet.ErrPlayerExists)
	assert.ErrorIs(t, room.AddPlayer("b", "alice"), ricochet.ErrUsernameTaken)
	require.NoError(t, room.AddPlayer("b", "Bob"))
	assert.ErrorIs(t, room.AddPlayer("c", "Carol"), ricochet.ErrRoomFull)
	assert.ErrorIs(t, room.Connect("c"), ricochet.ErrPlayerNotInRoom)
}

func TestChat(t *testing.T) {
	f := newFixture(t, testConfig(), "alice")
	require.NoError(t, f.room.Chat("alice", "  hello  "))

	ev, ok := f.events.last(ricochet.EventChat)
	require.True(t, ok)
	assert.Equal(t, "hello", ev.Payload.(ricochet.ChatPayload).Text)

	assert.ErrorIs(t, f.room.Chat("alice", "   "), ricochet.ErrInvalidMessage)
	assert.ErrorIs(t, f.room.Chat("ghost", "boo"), ricochet.ErrPlayerNotInRoom)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, testConfig(), "alice", "bob")
	_, err := f.room.Claim("bob", 3)
	require.NoError(t, err)

	snap := f.room.Snapshot()
	assert := assert.New(t)
	assert.Equal("TEST", snap.Code)
	assert.Equal(ricochet.ClaimWindow, snap.Phase)
	assert.Len(snap.Players, 2)
	require.NotNil(t, snap.Target)
	require.NotNil(t, snap.BestClaim)
	assert.Equal(3, snap.BestClaim.Moves)
	assert.NotNil(snap.Deadline)
	assert.Empty(snap.Claimant)

	assert.True(slices.Contains(f.events.types(), ricochet.EventClaimAccepted))
}
