package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"ricochet-server/internal/ricochet"
)

type job struct {
	f   func()
	ran chan struct{}
}

// roomActor serializes every call into one ricochet.Room. Fields below the
// inbox are touched only by the run goroutine.
type roomActor struct {
	reg          *Registry
	code         string
	passwordHash []byte
	createdAt    time.Time

	inbox chan job
	done  chan struct{}

	room       *ricochet.Room
	subs       map[string]*Subscription
	deferred   []func()
	stopping   bool
	emptyTimer *time.Timer

	summary atomic.Pointer[Summary]
}

func newRoomActor(reg *Registry, code string, passwordHash []byte) *roomActor {
	return &roomActor{
		reg:          reg,
		code:         code,
		passwordHash: passwordHash,
		createdAt:    time.Now(),
		inbox:        make(chan job, inboxSize),
		done:         make(chan struct{}),
		subs:         make(map[string]*Subscription),
	}
}

func (a *roomActor) checkPassword(password string) error {
	if a.passwordHash == nil {
		return nil
	}
	if bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) != nil {
		return ErrIncorrectPassword
	}
	return nil
}

func (a *roomActor) run() {
	defer close(a.done)
	for j := range a.inbox {
		j.f()
		for len(a.deferred) > 0 {
			next := a.deferred[0]
			a.deferred = a.deferred[1:]
			next()
		}
		a.checkDeserted()
		a.publishSummary()

		if a.stopping {
			a.shutdown()
		}
		if j.ran != nil {
			close(j.ran)
		}
		if a.stopping {
			return
		}
	}
}

// post queues f without waiting. It reports false once the room is gone.
func (a *roomActor) post(f func()) bool {
	select {
	case a.inbox <- job{f: f}:
		return true
	case <-a.done:
		return false
	}
}

// do runs f on the room goroutine and waits for it.
func (a *roomActor) do(f func()) error {
	ran := make(chan struct{})
	select {
	case a.inbox <- job{f: f, ran: ran}:
	case <-a.done:
		return ErrRoomNotFound
	}
	select {
	case <-ran:
		return nil
	case <-a.done:
		select {
		case <-ran:
			return nil
		default:
			return ErrRoomNotFound
		}
	}
}

// deserted rooms are removed: somebody was here once, nobody is now, and
// no solution is being waited on.
func (a *roomActor) deserted() bool {
	return a.room.EverConnected() &&
		a.room.ConnectedCount() == 0 &&
		a.room.Phase() != ricochet.VerificationPending
}

func (a *roomActor) checkDeserted() {
	if a.stopping {
		return
	}
	if !a.deserted() {
		if a.emptyTimer != nil {
			a.emptyTimer.Stop()
			a.emptyTimer = nil
		}
		return
	}
	if a.reg.emptyGrace <= 0 {
		a.stopping = true
		return
	}
	if a.emptyTimer == nil {
		a.emptyTimer = time.AfterFunc(a.reg.emptyGrace, func() {
			a.post(func() {
				a.emptyTimer = nil
				if a.deserted() {
					a.stopping = true
				}
			})
		})
	}
}

func (a *roomActor) shutdown() {
	if a.emptyTimer != nil {
		a.emptyTimer.Stop()
	}
	a.room.Close()
	for pid := range a.subs {
		a.dropSubscriber(pid, ReasonRoomClosed)
	}
	a.reg.remove(a)
}

func (a *roomActor) publishSummary() {
	cfg := a.room.Config()
	a.summary.Store(&Summary{
		Code:        a.code,
		Phase:       a.room.Phase(),
		Round:       a.room.Round(),
		Players:     len(a.room.Players()),
		Connected:   a.room.ConnectedCount(),
		MaxPlayers:  cfg.MaxPlayers,
		HasPassword: a.passwordHash != nil,
		CreatedAt:   a.createdAt,
	})
}

// emit fans an event out to every subscriber. It runs inside room calls,
// so a subscriber that cannot keep up is dropped now and disconnected from
// the room once the call returns.
func (a *roomActor) emit(e ricochet.Event) {
	for pid, sub := range a.subs {
		if !sub.send(e) {
			a.reg.log.Warn("subscriber too slow, dropping",
				zap.String("room", a.code), zap.String("player", pid), zap.String("event", e.Type))
			a.dropSubscriber(pid, ReasonOverflow)
			a.deferred = append(a.deferred, func() { _ = a.room.Disconnect(pid) })
		}
	}
	a.reg.notify(a.code, e)
}

func (a *roomActor) subscribe(playerID string) (*Subscription, error) {
	if _, ok := a.room.Player(playerID); !ok {
		return nil, ErrPlayerNotInRoom
	}
	if _, ok := a.subs[playerID]; ok {
		a.dropSubscriber(playerID, ReasonReplaced)
	}

	sub := &Subscription{
		PlayerID: playerID,
		RoomCode: a.code,
		Snapshot: a.room.Snapshot(),
		events:   make(chan ricochet.Event, a.reg.subBuffer),
		actor:    a,
	}
	a.subs[playerID] = sub
	if err := a.room.Connect(playerID); err != nil {
		a.dropSubscriber(playerID, ReasonClosed)
		return nil, err
	}
	return sub, nil
}

// unsubscribe disconnects the player. When only is set, nothing happens
// unless it is still the player's current subscription.
func (a *roomActor) unsubscribe(playerID string, only *Subscription, reason CloseReason) error {
	current, ok := a.subs[playerID]
	if only != nil && (!ok || current != only) {
		return nil
	}
	a.dropSubscriber(playerID, reason)
	return a.room.Disconnect(playerID)
}

func (a *roomActor) dropSubscriber(playerID string, reason CloseReason) {
	if sub, ok := a.subs[playerID]; ok {
		delete(a.subs, playerID)
		sub.close(reason)
	}
}

// actorScheduler delivers room timers through the actor inbox.
type actorScheduler struct {
	a *roomActor
}

func (s actorScheduler) Now() time.Time { return time.Now() }

func (s actorScheduler) AfterFunc(d time.Duration, f func()) ricochet.Timer {
	return time.AfterFunc(d, func() { s.a.post(f) })
}

type CloseReason string

const (
	ReasonClosed     CloseReason = "closed"
	ReasonReplaced   CloseReason = "disconnected_elsewhere"
	ReasonOverflow   CloseReason = "too_slow"
	ReasonLeft       CloseReason = "left"
	ReasonRoomClosed CloseReason = "room_closed"
)

// Subscription carries one player's room events. The channel is closed
// when the subscription ends; Reason then says why.
type Subscription struct {
	PlayerID string
	RoomCode string
	// Snapshot is the room state just before the player connected.
	Snapshot ricochet.Snapshot

	events    chan ricochet.Event
	reason    CloseReason
	closeOnce sync.Once
	actor     *roomActor
}

func (s *Subscription) Events() <-chan ricochet.Event { return s.events }

// Reason is valid once Events is closed.
func (s *Subscription) Reason() CloseReason { return s.reason }

// Close ends the subscription and disconnects the player, unless a newer
// subscription for the same player has replaced it.
func (s *Subscription) Close() {
	a := s.actor
	_ = a.do(func() { _ = a.unsubscribe(s.PlayerID, s, ReasonClosed) })
}

func (s *Subscription) send(e ricochet.Event) bool {
	select {
	case s.events <- e:
		return true
	default:
		return false
	}
}

func (s *Subscription) close(reason CloseReason) {
	s.closeOnce.Do(func() {
		s.reason = reason
		close(s.events)
	})
}
