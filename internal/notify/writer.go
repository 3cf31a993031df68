// Package notify passes alert events between the device and an external
// alert player through files in a shared directory.
//
// Each channel is a subdirectory of {dataPath}/events. The device writes to
// the "fire" channel and watches "finished"; a player does the reverse.
// Events are consumed (deleted) by the watcher that reads them.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Channels and event types.
const (
	ChannelFire     = "fire"
	ChannelFinished = "finished"

	EventAlertFire     = "alert_fire"
	EventAlertFinished = "alert_finished"
)

// Event is the payload written to an event file.
type Event struct {
	Type    string `json:"type"`
	AlertID string `json:"alert_id"`
	Time    int64  `json:"time"`
}

// EventWriter writes event files to one channel directory.
type EventWriter struct {
	dir string
}

// NewEventWriter creates a writer that emits events to {dataPath}/events/{channel}/.
func NewEventWriter(dataPath, channel string) *EventWriter {
	return &EventWriter{dir: channelDir(dataPath, channel)}
}

// Dir returns the channel directory.
func (w *EventWriter) Dir() string {
	return w.dir
}

// Notify writes an event file. The file is written under a temporary name and
// renamed so watchers never read a partial event.
func (w *EventWriter) Notify(eventType, alertID string) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	evt := Event{
		Type:    eventType,
		AlertID: alertID,
		Time:    time.Now().UnixNano(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	name := fmt.Sprintf("%d-%s", evt.Time, sanitizeID(alertID))
	tmp := filepath.Join(w.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("notify: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, filepath.Join(w.dir, name+".event")); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("notify: publish event: %w", err)
	}
	return nil
}

func channelDir(dataPath, channel string) string {
	return filepath.Join(dataPath, "events", channel)
}

// sanitizeID replaces characters unsafe for filenames.
func sanitizeID(id string) string {
	out := make([]byte, len(id))
	for i := 0; i < len(id); i++ {
		switch id[i] {
		case '/', ':', '\\', '.':
			out[i] = '_'
		default:
			out[i] = id[i]
		}
	}
	return string(out)
}
