package ricochet

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"ricochet-server/internal/grid"
)

type Phase string

const (
	WaitingForPlayers   Phase = "waiting_for_players"
	RoundActive         Phase = "round_active"
	ClaimWindow         Phase = "claim_window"
	VerificationPending Phase = "verification_pending"
	RoundComplete       Phase = "round_complete"
	GameOver            Phase = "game_over"
)

const (
	maxChatLength = 500

	reasonPlayerLeft = "PLAYER_LEFT"
)

type Player struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Connected bool      `json:"connected"`
	Points    int       `json:"points"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Claim is a promise to solve the current target in Moves moves.
type Claim struct {
	PlayerID string    `json:"playerId"`
	Moves    int       `json:"moves"`
	At       time.Time `json:"at"`
}

// Room is the state machine for one game. It is not safe for concurrent
// use: every call, timer callbacks included, must come from a single
// goroutine (see registry).
type Room struct {
	code  string
	cfg   Config
	board *grid.Board
	sched Scheduler
	emit  Emitter
	rng   *rand.Rand
	deck  *TargetDeck

	phase     Phase
	round     int
	robots    Positions
	target    grid.Target
	hasTarget bool
	players   []*Player
	host      string

	// claims accepted this round, strictly decreasing in Moves. The last
	// entry is the best claim and, during verification, the claimant's.
	claims   []Claim
	deadline time.Time
	// lowest is the fewest moves accepted this round, kept even after the
	// claim that set it is withdrawn; 0 before the first claim.
	lowest int

	timer         Timer
	timerGen      uint64
	everConnected bool
}

func NewRoom(code string, board *grid.Board, cfg Config, sched Scheduler, emit Emitter, rng *rand.Rand) (*Room, error) {
	cfg = cfg.withDefaults()
	seen := make(map[grid.Color]bool, len(cfg.Robots))
	for _, c := range cfg.Robots {
		if !c.IsRobot() || seen[c] {
			return nil, fmt.Errorf("%w: robot %q", ErrUnknownRobot, c)
		}
		seen[c] = true
	}
	if emit == nil {
		emit = EmitterFunc(func(Event) {})
	}

	r := &Room{
		code:  code,
		cfg:   cfg,
		board: board,
		sched: sched,
		emit:  emit,
		rng:   rng,
		deck:  NewTargetDeck(board.Targets(), rng),
		phase: WaitingForPlayers,
	}
	if err := r.checkCapacity(); err != nil {
		return nil, err
	}
	robots, err := r.placeRobots(true)
	if err != nil {
		return nil, err
	}
	r.robots = robots
	return r, nil
}

// checkCapacity makes sure a round can always reveal a target no robot
// stands on: either there are more targets than robots, or every robot fits
// on a cell without a target, where placeRobots puts them when scattering.
func (r *Room) checkCapacity() error {
	targets := len(r.board.Targets())
	robots := len(r.cfg.Robots)
	if targets > robots {
		return nil
	}
	open := 0
	n := r.board.Size()
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			c := grid.Cell{X: x, Y: y}
			if _, ok := r.board.TargetAt(c); !ok && !r.board.Blocked(c) {
				open++
			}
		}
	}
	if open < robots {
		return fmt.Errorf("%w: %d robots but only %d targets and %d cells without a target",
			grid.ErrInvalidLayout, robots, targets, open)
	}
	return nil
}

// placeRobots uses the layout's start cells when asked and puts every other
// robot on a random free cell, preferring cells without a target.
func (r *Room) placeRobots(useStarts bool) (Positions, error) {
	pos := make(Positions, len(r.cfg.Robots))
	taken := make(map[grid.Cell]bool)
	if useStarts {
		starts := r.board.StartPositions()
		for _, c := range r.cfg.Robots {
			if cell, ok := starts[c]; ok {
				pos[c] = cell
				taken[cell] = true
			}
		}
	}

	var free, fallback []grid.Cell
	n := r.board.Size()
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			c := grid.Cell{X: x, Y: y}
			if taken[c] || r.board.Blocked(c) {
				continue
			}
			if _, ok := r.board.TargetAt(c); ok {
				fallback = append(fallback, c)
			} else {
				free = append(free, c)
			}
		}
	}
	r.rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
	free = append(free, fallback...)

	for _, c := range r.cfg.Robots {
		if _, ok := pos[c]; ok {
			continue
		}
		if len(free) == 0 {
			return nil, fmt.Errorf("%w: no room on the board for %d robots", grid.ErrInvalidLayout, len(r.cfg.Robots))
		}
		pos[c] = free[0]
		free = free[1:]
	}
	return pos, nil
}

func (r *Room) Code() string { return r.code }

func (r *Room) Phase() Phase { return r.phase }

func (r *Room) Round() int { return r.round }

func (r *Room) Host() string { return r.host }

func (r *Room) Config() Config { return r.cfg }

func (r *Room) Board() *grid.Board { return r.board }

func (r *Room) Robots() Positions { return r.robots.Clone() }

// Target returns the active target, if a round is in progress.
func (r *Room) Target() (grid.Target, bool) { return r.target, r.hasTarget }

// BestClaim returns the lowest claim of the current round.
func (r *Room) BestClaim() (Claim, bool) {
	if len(r.claims) == 0 {
		return Claim{}, false
	}
	return r.claims[len(r.claims)-1], true
}

// Claims returns every claim accepted this round, best last.
func (r *Room) Claims() []Claim { return slices.Clone(r.claims) }

// Claimant is the player whose solution is awaited.
func (r *Room) Claimant() (string, bool) {
	if r.phase != VerificationPending {
		return "", false
	}
	return r.claims[len(r.claims)-1].PlayerID, true
}

func (r *Room) Deadline() (time.Time, bool) { return r.deadline, !r.deadline.IsZero() }

func (r *Room) Players() []Player {
	out := make([]Player, len(r.players))
	for i, p := range r.players {
		out[i] = *p
	}
	return out
}

func (r *Room) Player(id string) (Player, bool) {
	if p := r.player(id); p != nil {
		return *p, true
	}
	return Player{}, false
}

func (r *Room) player(id string) *Player {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) ConnectedCount() int {
	n := 0
	for _, p := range r.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// EverConnected reports whether any player has connected since creation.
func (r *Room) EverConnected() bool { return r.everConnected }

func (r *Room) Empty() bool { return len(r.players) == 0 }

// AddPlayer seats a new player. Players join disconnected; the round
// starts once enough of them Connect.
func (r *Room) AddPlayer(id, name string) error {
	if r.phase == GameOver {
		return fmt.Errorf("%w: game is over", ErrInvalidPhaseAction)
	}
	if r.player(id) != nil {
		return fmt.Errorf("%w: %s", ErrPlayerExists, id)
	}
	name = strings.TrimSpace(name)
	for _, p := range r.players {
		if strings.EqualFold(p.Name, name) {
			return fmt.Errorf("%w: %s", ErrUsernameTaken, name)
		}
	}
	if len(r.players) >= r.cfg.MaxPlayers {
		return fmt.Errorf("%w: %d players", ErrRoomFull, r.cfg.MaxPlayers)
	}

	r.players = append(r.players, &Player{ID: id, Name: name, JoinedAt: r.sched.Now()})
	r.emit.Emit(Event{Type: EventPlayerJoined, Payload: PlayerPayload{PlayerID: id, Name: name}})
	if r.host == "" {
		r.setHost(id)
	}
	return nil
}

func (r *Room) Connect(id string) error {
	p := r.player(id)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrPlayerNotInRoom, id)
	}
	if p.Connected {
		return nil
	}
	p.Connected = true
	r.everConnected = true
	r.emit.Emit(Event{Type: EventPlayerConnected, Payload: PlayerPayload{PlayerID: id, Name: p.Name}})
	r.maybeStart()
	return nil
}

// Disconnect keeps the player's seat, score and claims. A pending
// verification is never affected.
func (r *Room) Disconnect(id string) error {
	p := r.player(id)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrPlayerNotInRoom, id)
	}
	if !p.Connected {
		return nil
	}
	p.Connected = false
	r.emit.Emit(Event{Type: EventPlayerDisconnected, Payload: PlayerPayload{PlayerID: id, Name: p.Name}})
	r.checkDeserted()
	return nil
}

// RemovePlayer handles an explicit leave: the seat, score and claims go
// with the player, and a claimant under verification forfeits.
func (r *Room) RemovePlayer(id string) error {
	p := r.player(id)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrPlayerNotInRoom, id)
	}
	claimant, verifying := r.Claimant()

	r.players = slices.DeleteFunc(r.players, func(q *Player) bool { return q.ID == id })
	r.emit.Emit(Event{Type: EventPlayerLeft, Payload: PlayerPayload{PlayerID: id, Name: p.Name}})
	if r.host == id {
		r.promoteHost()
	}

	switch {
	case verifying && claimant == id:
		r.forfeit(reasonPlayerLeft)
	case r.phase == ClaimWindow, r.phase == VerificationPending:
		// The window keeps its deadline; a round left without claims is
		// voided when it closes.
		r.claims = slices.DeleteFunc(r.claims, func(c Claim) bool { return c.PlayerID == id })
	}
	r.checkDeserted()
	return nil
}

// promoteHost hands the room to the longest-seated remaining player.
func (r *Room) promoteHost() {
	if len(r.players) == 0 {
		r.host = ""
		return
	}
	r.setHost(r.players[0].ID)
}

func (r *Room) setHost(id string) {
	r.host = id
	name := ""
	if p := r.player(id); p != nil {
		name = p.Name
	}
	r.emit.Emit(Event{Type: EventHostChanged, Payload: PlayerPayload{PlayerID: id, Name: name}})
}

// checkDeserted parks the room when nobody is left watching a live round.
func (r *Room) checkDeserted() {
	if r.ConnectedCount() > 0 {
		return
	}
	if r.phase == RoundActive || r.phase == ClaimWindow {
		r.enterWaiting()
	}
}

func (r *Room) Chat(id, text string) error {
	p := r.player(id)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrPlayerNotInRoom, id)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(text) > maxChatLength {
		return fmt.Errorf("%w: message longer than %d characters", ErrInvalidMessage, maxChatLength)
	}
	r.emit.Emit(Event{Type: EventChat, Payload: ChatPayload{PlayerID: id, Name: p.Name, Text: text, At: r.sched.Now()}})
	return nil
}

// Claim records a player's promise to reach the target in moves moves.
// The first claim of a round opens the claim window; later claims must
// beat every claim accepted this round, withdrawn ones included, and
// shorten the window to the grace period.
func (r *Room) Claim(id string, moves int) (Claim, error) {
	if r.player(id) == nil {
		return Claim{}, fmt.Errorf("%w: %s", ErrPlayerNotInRoom, id)
	}
	if r.phase != RoundActive && r.phase != ClaimWindow {
		return Claim{}, fmt.Errorf("%w: cannot claim during %s", ErrInvalidPhaseAction, r.phase)
	}
	if moves < 1 {
		return Claim{}, fmt.Errorf("%w: %d moves", ErrInvalidClaim, moves)
	}

	now := r.sched.Now()
	c := Claim{PlayerID: id, Moves: moves, At: now}

	if r.phase == RoundActive {
		r.claims = []Claim{c}
		r.lowest = moves
		r.deadline = now.Add(r.cfg.ClaimWindow)
		r.arm(ClaimWindow, r.cfg.ClaimWindow, r.startVerification)
		r.emitClaim(c)
		r.setPhase(ClaimWindow)
		return c, nil
	}

	if moves >= r.lowest {
		return Claim{}, fmt.Errorf("%w: best claim this round is %d moves", ErrClaimTooHigh, r.lowest)
	}
	r.claims = append(r.claims, c)
	r.lowest = moves
	if grace := now.Add(r.cfg.ClaimGrace); grace.Before(r.deadline) {
		r.deadline = grace
		r.arm(ClaimWindow, r.cfg.ClaimGrace, r.startVerification)
	}
	r.emitClaim(c)
	return c, nil
}

func (r *Room) emitClaim(c Claim) {
	r.emit.Emit(Event{Type: EventClaimAccepted, Payload: ClaimPayload{PlayerID: c.PlayerID, Moves: c.Moves, Deadline: r.deadline}})
}

// startVerification hands the round to the holder of the best claim.
func (r *Room) startVerification() {
	if len(r.claims) == 0 {
		r.completeRound(RoundPayload{})
		return
	}
	best := r.claims[len(r.claims)-1]
	r.deadline = r.sched.Now().Add(r.cfg.VerificationTimeout)
	r.arm(VerificationPending, r.cfg.VerificationTimeout, func() { r.forfeit(ErrVerificationTimedOut.Error()) })
	r.phase = VerificationPending
	r.emit.Emit(Event{Type: EventVerificationStarted, Payload: ClaimPayload{PlayerID: best.PlayerID, Moves: best.Moves, Deadline: r.deadline}})
	r.emitPhase()
}

// SubmitSolution verifies the claimant's moves. Malformed sequences are
// rejected without touching the room so the claimant may try again before
// the deadline. A sequence that misses the target, or does not use exactly
// the claimed number of moves, forfeits the claim.
func (r *Room) SubmitSolution(id string, moves []Move) (Verdict, error) {
	if r.player(id) == nil {
		return Verdict{}, fmt.Errorf("%w: %s", ErrPlayerNotInRoom, id)
	}
	if r.phase != VerificationPending {
		return Verdict{}, fmt.Errorf("%w: no solution expected during %s", ErrInvalidPhaseAction, r.phase)
	}
	claim := r.claims[len(r.claims)-1]
	if claim.PlayerID != id {
		return Verdict{}, fmt.Errorf("%w: waiting on another player's solution", ErrInvalidPhaseAction)
	}

	v, err := Validate(r.board, r.robots, r.target, moves)
	if err != nil {
		return Verdict{}, err
	}
	if !v.ReachesTarget {
		r.forfeit(ErrVerificationFailed.Error())
		return v, fmt.Errorf("%w: target not reached", ErrVerificationFailed)
	}
	if v.MoveCount != claim.Moves {
		r.forfeit(ErrVerificationFailed.Error())
		return v, fmt.Errorf("%w: solved in %d moves, claimed %d", ErrVerificationFailed, v.MoveCount, claim.Moves)
	}

	r.robots = v.FinalPositions
	points := r.cfg.Points(claim.Moves)
	r.player(id).Points += points
	r.completeRound(RoundPayload{
		WinnerID: id,
		Moves:    claim.Moves,
		Points:   points,
		Solution: slices.Clone(moves),
	})
	return v, nil
}

// forfeit drops every claim of the current claimant and moves on to the
// next best claim, or voids the round when none is left.
func (r *Room) forfeit(reason string) {
	claimant := r.claims[len(r.claims)-1].PlayerID
	r.claims = slices.DeleteFunc(r.claims, func(c Claim) bool { return c.PlayerID == claimant })
	r.emit.Emit(Event{Type: EventClaimForfeited, Payload: ForfeitPayload{PlayerID: claimant, Reason: reason}})
	if len(r.claims) > 0 {
		r.startVerification()
		return
	}
	r.completeRound(RoundPayload{})
}

func (r *Room) completeRound(res RoundPayload) {
	res.Round = r.round
	res.Target = r.target
	res.Robots = r.robots.Clone()

	r.claims = nil
	r.lowest = 0
	r.hasTarget = false
	r.deadline = r.sched.Now().Add(r.cfg.RoundPause)
	r.arm(RoundComplete, r.cfg.RoundPause, r.afterPause)
	r.phase = RoundComplete
	r.emit.Emit(Event{Type: EventRoundResolved, Payload: res})
	r.emit.Emit(Event{Type: EventScoreboardUpdated, Payload: ScoreboardPayload{Scores: r.Scoreboard()}})
	r.emitPhase()
}

func (r *Room) afterPause() {
	switch {
	case r.limitReached():
		r.endGame()
	case r.ConnectedCount() < r.cfg.MinPlayers:
		r.enterWaiting()
	default:
		r.startRound()
	}
}

func (r *Room) limitReached() bool {
	if r.cfg.MaxRounds > 0 && r.round >= r.cfg.MaxRounds {
		return true
	}
	if r.cfg.ScoreLimit > 0 {
		for _, p := range r.players {
			if p.Points >= r.cfg.ScoreLimit {
				return true
			}
		}
	}
	return false
}

func (r *Room) endGame() {
	r.stopTimer()
	r.deadline = time.Time{}
	r.phase = GameOver

	scores := r.Scoreboard()
	var winners []string
	if len(scores) > 0 && scores[0].Points > 0 {
		for _, s := range scores {
			if s.Points == scores[0].Points {
				winners = append(winners, s.PlayerID)
			}
		}
	}
	r.emit.Emit(Event{Type: EventGameOver, Payload: GameOverPayload{Rounds: r.round, Winners: winners, Scores: scores}})
	r.emitPhase()
}

func (r *Room) enterWaiting() {
	r.stopTimer()
	r.claims = nil
	r.lowest = 0
	r.hasTarget = false
	r.deadline = time.Time{}
	r.setPhase(WaitingForPlayers)
}

func (r *Room) maybeStart() {
	if r.phase == WaitingForPlayers && r.ConnectedCount() >= r.cfg.MinPlayers {
		r.startRound()
	}
}

// startRound draws a target no robot is standing on. If the robots cover
// every target they are scattered again first; checkCapacity guarantees a
// free target after that.
func (r *Room) startRound() {
	covered := func(t grid.Target) bool {
		_, ok := r.robots.RobotAt(t.Cell)
		return ok
	}
	t, ok := r.deck.Draw(covered)
	if !ok {
		if robots, err := r.placeRobots(false); err == nil {
			r.robots = robots
		}
		t, _ = r.deck.Draw(covered)
	}

	r.stopTimer()
	r.round++
	r.target = t
	r.hasTarget = true
	r.claims = nil
	r.lowest = 0
	r.deadline = time.Time{}
	r.phase = RoundActive
	r.emit.Emit(Event{Type: EventTargetRevealed, Payload: TargetPayload{Round: r.round, Target: t, Robots: r.robots.Clone()}})
	r.emitPhase()
}

func (r *Room) setPhase(p Phase) {
	r.phase = p
	r.emitPhase()
}

func (r *Room) emitPhase() {
	payload := PhasePayload{Phase: r.phase, Round: r.round}
	if d, ok := r.Deadline(); ok {
		payload.Deadline = &d
	}
	r.emit.Emit(Event{Type: EventPhaseChanged, Payload: payload})
}

// arm replaces the room timer with one guarding phase. A callback that
// fires after the timer was replaced or stopped, or once the room has left
// that phase, does nothing.
func (r *Room) arm(phase Phase, d time.Duration, fire func()) {
	r.stopTimer()
	gen := r.timerGen
	r.timer = r.sched.AfterFunc(d, func() {
		if gen != r.timerGen || r.phase != phase {
			return
		}
		r.timer = nil
		fire()
	})
}

// Close cancels the pending room timer. The room must not be used after.
func (r *Room) Close() {
	r.stopTimer()
	r.deadline = time.Time{}
}

func (r *Room) stopTimer() {
	r.timerGen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Scoreboard lists players by points, ties in seating order.
func (r *Room) Scoreboard() []ScoreEntry {
	out := make([]ScoreEntry, len(r.players))
	for i, p := range r.players {
		out[i] = ScoreEntry{PlayerID: p.ID, Name: p.Name, Points: p.Points}
	}
	slices.SortStableFunc(out, func(a, b ScoreEntry) int { return b.Points - a.Points })
	return out
}

// Snapshot is everything a newly connected client needs to draw the room.
type Snapshot struct {
	Code       string       `json:"code"`
	Phase      Phase        `json:"phase"`
	Round      int          `json:"round"`
	MaxRounds  int          `json:"maxRounds"`
	ScoreLimit int          `json:"scoreLimit"`
	Host       string       `json:"host"`
	Players    []Player     `json:"players"`
	Robots     Positions    `json:"robots"`
	Target     *grid.Target `json:"target,omitempty"`
	BestClaim  *Claim       `json:"bestClaim,omitempty"`
	Claimant   string       `json:"claimant,omitempty"`
	Deadline   *time.Time   `json:"deadline,omitempty"`
	Board      *grid.Board  `json:"board"`
}

func (r *Room) Snapshot() Snapshot {
	snap := Snapshot{
		Code:       r.code,
		Phase:      r.phase,
		Round:      r.round,
		MaxRounds:  r.cfg.MaxRounds,
		ScoreLimit: r.cfg.ScoreLimit,
		Host:       r.host,
		Players:    r.Players(),
		Robots:     r.robots.Clone(),
		Board:      r.board,
	}
	if t, ok := r.Target(); ok {
		snap.Target = &t
	}
	if c, ok := r.BestClaim(); ok {
		snap.BestClaim = &c
	}
	snap.Claimant, _ = r.Claimant()
	if d, ok := r.Deadline(); ok {
		snap.Deadline = &d
	}
	return snap
}
