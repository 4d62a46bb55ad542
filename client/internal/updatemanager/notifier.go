package updatemanager

import (
	log "github.com/sirupsen/logrus"
)

const (
	EventUpdateProgress = "app://update-progress"
	EventUpdateError    = "app://update-error"
	EventUpdateDone     = "app://update-done"
)

// Emitter delivers a named event to the UI
type Emitter interface {
	Emit(event string, payload any) error
}

// ProgressNotifier reports the update status to the UI. Delivery is best effort,
// emit errors are logged and dropped.
type ProgressNotifier struct {
	emitter Emitter
}

func NewProgressNotifier(emitter Emitter) *ProgressNotifier {
	return &ProgressNotifier{emitter: emitter}
}

// Notify sends the download progress, nil meaning unknown
func (n *ProgressNotifier) Notify(progress *float64) {
	n.emit(EventUpdateProgress, progress)
}

func (n *ProgressNotifier) NotifyError() {
	n.emit(EventUpdateError, nil)
}

func (n *ProgressNotifier) NotifyDone() {
	n.emit(EventUpdateDone, nil)
}

func (n *ProgressNotifier) emit(event string, payload any) {
	if err := n.emitter.Emit(event, payload); err != nil {
		log.Debugf("failed to emit %s: %v", event, err)
	}
}
