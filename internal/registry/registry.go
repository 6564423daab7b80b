package registry

import (
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"ricochet-server/internal/grid"
	"ricochet-server/internal/obslog"
	"ricochet-server/internal/ricochet"
)

var (
	ErrRoomNotFound      = errors.New("ROOM_NOT_FOUND")
	ErrIncorrectPassword = errors.New("INCORRECT_PASSWORD")
	ErrClosed            = errors.New("SERVER_SHUTTING_DOWN")

	ErrPlayerNotInRoom = ricochet.ErrPlayerNotInRoom
	ErrRoomFull        = ricochet.ErrRoomFull
	ErrUsernameTaken   = ricochet.ErrUsernameTaken
)

const (
	defaultSubscriberBuffer = 10
	inboxSize               = 64
)

type Options struct {
	// Board used when Settings.Board is nil. Defaults to grid.Classic.
	Board  *grid.Board
	Config ricochet.Config
	// IdleExpiry is how long Sweep lets a room live without any player
	// ever connecting.
	IdleExpiry time.Duration
	// EmptyGrace delays removing a room whose players all disconnected, so
	// a reloading client can come back. Zero removes it at once.
	EmptyGrace       time.Duration
	SubscriberBuffer int
	Logger           *zap.Logger
}

// Settings describe one room at creation.
type Settings struct {
	Config   ricochet.Config
	Board    *grid.Board
	Password string
}

// Summary is the lobby view of a room, refreshed after every room action.
type Summary struct {
	Code        string         `json:"code"`
	Phase       ricochet.Phase `json:"phase"`
	Round       int            `json:"round"`
	Players     int            `json:"players"`
	Connected   int            `json:"connected"`
	MaxPlayers  int            `json:"maxPlayers"`
	HasPassword bool           `json:"hasPassword"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Registry owns the live rooms. Each room runs in its own goroutine; the
// registry only routes calls to it.
type Registry struct {
	mu        sync.RWMutex
	rooms     map[string]*roomActor
	usedCodes map[string]bool
	closed    bool

	board      *grid.Board
	defaults   ricochet.Config
	idleExpiry time.Duration
	emptyGrace time.Duration
	subBuffer  int
	log        *zap.Logger

	onRemoved []func(code string)
	observers []func(code string, e ricochet.Event)
}

func New(opts Options) (*Registry, error) {
	board := opts.Board
	if board == nil {
		b, err := grid.Classic()
		if err != nil {
			return nil, fmt.Errorf("load classic board: %w", err)
		}
		board = b
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = defaultSubscriberBuffer
	}
	if opts.IdleExpiry <= 0 {
		opts.IdleExpiry = 10 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = obslog.L()
	}
	return &Registry{
		rooms:      make(map[string]*roomActor),
		usedCodes:  make(map[string]bool),
		board:      board,
		defaults:   opts.Config,
		idleExpiry: opts.IdleExpiry,
		emptyGrace: opts.EmptyGrace,
		subBuffer:  opts.SubscriberBuffer,
		log:        opts.Logger,
	}, nil
}

// Defaults is the game configuration rooms get unless told otherwise.
func (r *Registry) Defaults() ricochet.Config { return r.defaults }

// OnRoomRemoved registers a callback run after a room is torn down.
func (r *Registry) OnRoomRemoved(fn func(code string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemoved = append(r.onRemoved, fn)
}

// Observe registers a callback for every room event. It runs on the room's
// goroutine and must not block.
func (r *Registry) Observe(fn func(code string, e ricochet.Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *Registry) notify(code string, e ricochet.Event) {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()
	for _, fn := range observers {
		fn(code, e)
	}
}

// CreateRoom builds the board and room and starts its goroutine. Nobody is
// seated yet; the creator joins like everyone else.
func (r *Registry) CreateRoom(s Settings) (string, error) {
	board := s.Board
	if board == nil {
		board = r.board
	}

	var hash []byte
	if s.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(s.Password), bcrypt.DefaultCost)
		if err != nil {
			return "", fmt.Errorf("hash room password: %w", err)
		}
		hash = h
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrClosed
	}
	code := newRoomCode(r.usedCodes)
	a := newRoomActor(r, code, hash)
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	room, err := ricochet.NewRoom(code, board, s.Config, actorScheduler{a}, ricochet.EmitterFunc(a.emit), rng)
	if err != nil {
		r.mu.Unlock()
		return "", err
	}
	a.room = room
	a.publishSummary()
	r.rooms[code] = a
	r.usedCodes[code] = true
	r.mu.Unlock()

	go a.run()
	r.log.Info("room created", zap.String("room", code), zap.Bool("password", hash != nil))
	return code, nil
}

func (r *Registry) lookup(code string) (*roomActor, error) {
	code = NormalizeRoomCode(code)
	if err := checkRoomCode(code); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.rooms[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	return a, nil
}

// CheckPassword verifies a room password without joining.
func (r *Registry) CheckPassword(code, password string) error {
	a, err := r.lookup(code)
	if err != nil {
		return err
	}
	return a.checkPassword(password)
}

// Join seats a player. Joining does not connect them.
func (r *Registry) Join(code, playerID, name, password string) error {
	a, err := r.lookup(code)
	if err != nil {
		return err
	}
	if err := a.checkPassword(password); err != nil {
		return err
	}

	var joinErr error
	if err := a.do(func() { joinErr = a.room.AddPlayer(playerID, name) }); err != nil {
		return err
	}
	if joinErr != nil {
		return joinErr
	}
	r.log.Info("player joined", zap.String("room", a.code), zap.String("player", playerID), zap.String("name", name))
	return nil
}

// Connect subscribes the player to room events and marks them connected.
// A second Connect for the same player replaces the first subscription.
func (r *Registry) Connect(code, playerID string) (*Subscription, error) {
	a, err := r.lookup(code)
	if err != nil {
		return nil, err
	}
	var (
		sub     *Subscription
		connErr error
	)
	if err := a.do(func() { sub, connErr = a.subscribe(playerID) }); err != nil {
		return nil, err
	}
	if connErr != nil {
		return nil, connErr
	}
	r.log.Debug("player connected", zap.String("room", a.code), zap.String("player", playerID))
	return sub, nil
}

// Disconnect drops whatever subscription the player holds.
func (r *Registry) Disconnect(code, playerID string) error {
	a, err := r.lookup(code)
	if err != nil {
		return err
	}
	var discErr error
	if err := a.do(func() { discErr = a.unsubscribe(playerID, nil, ReasonClosed) }); err != nil {
		return err
	}
	return discErr
}

// Action is something a seated player asks the room to do.
type Action interface {
	action()
}

type Claim struct {
	Moves int
}

type SubmitSolution struct {
	Moves []ricochet.Move
}

type Chat struct {
	Text string
}

type Leave struct{}

func (Claim) action()          {}
func (SubmitSolution) action() {}
func (Chat) action()           {}
func (Leave) action()          {}

// Dispatch runs an action in the room. The error is for the acting player
// only; the room keeps going either way.
func (r *Registry) Dispatch(code, playerID string, act Action) error {
	a, err := r.lookup(code)
	if err != nil {
		return err
	}

	var actErr error
	err = a.do(func() {
		switch act := act.(type) {
		case Claim:
			_, actErr = a.room.Claim(playerID, act.Moves)
		case SubmitSolution:
			_, actErr = a.room.SubmitSolution(playerID, act.Moves)
		case Chat:
			actErr = a.room.Chat(playerID, act.Text)
		case Leave:
			if actErr = a.room.RemovePlayer(playerID); actErr == nil {
				a.dropSubscriber(playerID, ReasonLeft)
			}
		default:
			actErr = fmt.Errorf("unknown action %T", act)
		}
	})
	if err != nil {
		return err
	}
	if actErr != nil {
		r.log.Debug("action rejected",
			zap.String("room", a.code),
			zap.String("player", playerID),
			zap.String("action", fmt.Sprintf("%T", act)),
			zap.Error(actErr))
	}
	return actErr
}

func (r *Registry) Snapshot(code string) (ricochet.Snapshot, error) {
	a, err := r.lookup(code)
	if err != nil {
		return ricochet.Snapshot{}, err
	}
	var snap ricochet.Snapshot
	if err := a.do(func() { snap = a.room.Snapshot() }); err != nil {
		return ricochet.Snapshot{}, err
	}
	return snap, nil
}

func (r *Registry) Room(code string) (Summary, error) {
	a, err := r.lookup(code)
	if err != nil {
		return Summary{}, err
	}
	return *a.summary.Load(), nil
}

// Rooms lists every live room, oldest first.
func (r *Registry) Rooms() []Summary {
	r.mu.RLock()
	out := make([]Summary, 0, len(r.rooms))
	for _, a := range r.rooms {
		out = append(out, *a.summary.Load())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(x, y Summary) int { return x.CreatedAt.Compare(y.CreatedAt) })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) actors() []*roomActor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Collect(maps.Values(r.rooms))
}

// Sweep removes rooms older than the idle expiry that no player ever
// connected to. It returns how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	removed := 0
	for _, a := range r.actors() {
		if now.Sub(a.createdAt) < r.idleExpiry {
			continue
		}
		expired := false
		_ = a.do(func() {
			if !a.room.EverConnected() {
				expired = true
				a.stopping = true
			}
		})
		if expired {
			removed++
		}
	}
	if removed > 0 {
		r.log.Info("swept idle rooms", zap.Int("count", removed))
	}
	return removed
}

// Close stops every room. Later calls fail with ErrClosed or ErrRoomNotFound.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	for _, a := range r.actors() {
		_ = a.do(func() { a.stopping = true })
	}
}

func (r *Registry) remove(a *roomActor) {
	r.mu.Lock()
	delete(r.rooms, a.code)
	delete(r.usedCodes, a.code)
	callbacks := r.onRemoved
	r.mu.Unlock()

	r.log.Info("room removed", zap.String("room", a.code))
	for _, fn := range callbacks {
		fn(a.code)
	}
}
