package alert

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/notouch/internal/notify"
)

// EventAction hands the alert to another process: Fire writes an
// alert_fire event and the alert finishes when that process answers with an
// alert_finished event carrying the same alert ID.
type EventAction struct {
	flight
	writer  *notify.EventWriter
	watcher *notify.EventWatcher
	timeout time.Duration
}

// NewEventAction creates an action exchanging events under dataPath. If no
// answer arrives within timeout the alert is considered finished anyway; a
// non-positive timeout waits forever.
func NewEventAction(dataPath string, timeout time.Duration, onFinished func()) *EventAction {
	a := &EventAction{
		flight:  flight{onFinished: onFinished},
		writer:  notify.NewEventWriter(dataPath, notify.ChannelFire),
		timeout: timeout,
	}
	a.watcher = notify.NewEventWatcher(dataPath, notify.ChannelFinished, a.handle)
	return a
}

// Start begins watching for alert_finished events.
func (a *EventAction) Start() error {
	return a.watcher.Start()
}

// Stop stops watching.
func (a *EventAction) Stop() {
	a.watcher.Stop()
}

// Fire publishes an alert_fire event.
func (a *EventAction) Fire(ctx context.Context) error {
	id := uuid.New().String()
	if err := a.begin(id); err != nil {
		return err
	}

	if err := a.writer.Notify(notify.EventAlertFire, id); err != nil {
		a.abort()
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	if a.timeout > 0 {
		time.AfterFunc(a.timeout, func() {
			if a.end(id) {
				log.Printf("alert: WARNING - no answer for alert %s after %v, assuming finished", id, a.timeout)
			}
		})
	}
	return nil
}

func (a *EventAction) handle(evt notify.Event) {
	if evt.Type != notify.EventAlertFinished {
		return
	}
	if !a.end(evt.AlertID) {
		log.Printf("alert: ignoring finished event for unknown alert %q", evt.AlertID)
	}
}
