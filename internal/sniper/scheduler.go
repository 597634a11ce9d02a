package sniper

import "time"

// Scheduler abstracts the countdown timer so expiry logic can be driven by a
// manual clock in tests.
type Scheduler interface {
	Submit(delay time.Duration, fn func()) Handle
}

// Handle cancels a pending submission. Cancel reports whether the callback
// was stopped before it fired.
type Handle interface {
	Cancel() bool
}

// TimerScheduler is the production Scheduler on top of time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) Submit(delay time.Duration, fn func()) Handle {
	return timerHandle{time.AfterFunc(delay, fn)}
}

type timerHandle struct{ t *time.Timer }

func (h timerHandle) Cancel() bool { return h.t.Stop() }
