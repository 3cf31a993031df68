// Package alert implements the alert actions fired by the monitoring loop.
//
// Every action is fire-and-forget: Fire starts the alert and returns, and the
// onFinished callback passed at construction runs once the alert has ended.
// An action refuses to fire again while a previous alert is still playing.
package alert

import (
	"sync"

	"github.com/scrypster/notouch/internal/engine"
)

// ErrInFlight is returned by Fire while the previous alert has not finished.
// The monitoring loop treats it as the previous alert still cooling down.
var ErrInFlight = engine.ErrActionInFlight

// flight tracks whether an alert is playing and reports its end once.
type flight struct {
	mu         sync.Mutex
	active     bool
	id         string
	onFinished func()
}

// begin marks an alert as started. It returns ErrInFlight if one is active.
func (f *flight) begin(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		return ErrInFlight
	}
	f.active = true
	f.id = id
	return nil
}

// end marks the alert id as finished and runs the callback. Ending an alert
// that is not the active one is ignored; an empty id matches any.
func (f *flight) end(id string) bool {
	f.mu.Lock()
	if !f.active || (id != "" && id != f.id) {
		f.mu.Unlock()
		return false
	}
	f.active = false
	f.id = ""
	cb := f.onFinished
	f.mu.Unlock()

	if cb != nil {
		cb()
	}
	return true
}

// abort clears the active alert without reporting completion.
func (f *flight) abort() {
	f.mu.Lock()
	f.active = false
	f.id = ""
	f.mu.Unlock()
}

// InFlight reports whether an alert is playing.
func (f *flight) InFlight() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}
