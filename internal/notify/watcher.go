package notify

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// EventWatcher watches one channel directory and dispatches callbacks.
type EventWatcher struct {
	dir      string
	callback func(Event)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewEventWatcher creates a watcher for {dataPath}/events/{channel}/.
func NewEventWatcher(dataPath, channel string, callback func(Event)) *EventWatcher {
	return &EventWatcher{
		dir:      channelDir(dataPath, channel),
		callback: callback,
		done:     make(chan struct{}),
	}
}

// Start begins watching. Event files left from before the start are
// discarded: a stale completion must not re-arm an alert that fires later.
// Call Stop() to clean up.
func (ew *EventWatcher) Start() error {
	if err := os.MkdirAll(ew.dir, 0o700); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(ew.dir); err != nil {
		_ = w.Close()
		return err
	}
	ew.watcher = w

	ew.discardExisting()

	go ew.loop()
	log.Printf("notify: watching %s for alert events", ew.dir)
	return nil
}

// Stop shuts down the watcher. It is a no-op if Start failed or was never called.
func (ew *EventWatcher) Stop() {
	if ew.watcher == nil {
		return
	}
	_ = ew.watcher.Close()
	<-ew.done
}

func (ew *EventWatcher) loop() {
	defer close(ew.done)
	for {
		select {
		case evt, ok := <-ew.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && isEventFile(evt.Name) {
				ew.processFile(evt.Name)
			}
		case err, ok := <-ew.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("notify: watcher error: %v", err)
		}
	}
}

func (ew *EventWatcher) discardExisting() {
	entries, err := os.ReadDir(ew.dir)
	if err != nil {
		return
	}
	discarded := 0
	for _, entry := range entries {
		if !entry.IsDir() && isEventFile(entry.Name()) {
			if os.Remove(filepath.Join(ew.dir, entry.Name())) == nil {
				discarded++
			}
		}
	}
	if discarded > 0 {
		log.Printf("notify: discarded %d stale events in %s", discarded, ew.dir)
	}
}

func (ew *EventWatcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // file already consumed by another process
	}
	_ = os.Remove(path)

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("notify: invalid event file %s: %v", filepath.Base(path), err)
		return
	}

	if ew.callback != nil {
		ew.callback(event)
	}
}

func isEventFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".event") && !strings.HasPrefix(base, ".")
}
