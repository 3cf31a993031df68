package alert

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// DefaultLogDuration is how long a LogAction alert lasts.
const DefaultLogDuration = 2 * time.Second

// LogAction writes the alert to the log and finishes after a fixed duration.
// It stands in for a sound player on headless devices.
type LogAction struct {
	flight
	duration time.Duration
}

// NewLogAction creates a LogAction. A non-positive duration selects
// DefaultLogDuration.
func NewLogAction(duration time.Duration, onFinished func()) *LogAction {
	if duration <= 0 {
		duration = DefaultLogDuration
	}
	return &LogAction{
		flight:   flight{onFinished: onFinished},
		duration: duration,
	}
}

// Fire logs the alert and schedules its completion.
func (a *LogAction) Fire(ctx context.Context) error {
	id := uuid.New().String()
	if err := a.begin(id); err != nil {
		return err
	}
	log.Printf("alert: hands off your face! (alert %s)", id)
	time.AfterFunc(a.duration, func() {
		a.end(id)
	})
	return nil
}
