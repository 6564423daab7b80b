package ricochet

import "time"

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Scheduler supplies the room's clock and delayed callbacks. Callbacks must
// be delivered on the same serialized path as every other room call.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}
