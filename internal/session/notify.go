package session

import (
	"github.com/roach88/mapsync/internal/feature"
)

// RequestInfo identifies a failed request in FailedRequest notifications.
type RequestInfo struct {
	EntryID string
	Method  string
	Path    string
}

// Notifier holds the caller's notification callbacks. Any field may be nil.
//
// Callbacks run on the goroutine that observed the event: the caller's own
// for blocking sends, otherwise the sync loop or the queue worker. Most run
// while the session holds its exchange lock, so they must not block for
// long and must not make blocking sends. Queued sends are fine.
type Notifier struct {
	PropertyChanged    func(f *feature.Feature)
	GeometryChanged    func(f *feature.Feature)
	NewFeature         func(f *feature.Feature)
	DeletedFeature     func(id string, class feature.Class)
	SyncCompleted      func(timestamp int64)
	Disconnected       func()
	Reconnected        func()
	QueueLengthChanged func(n int)
	FailedRequest      func(info RequestInfo, err error)
	MapClosed          func()
}

func (n *Notifier) propertyChanged(f *feature.Feature) {
	if n.PropertyChanged != nil {
		n.PropertyChanged(f)
	}
}

func (n *Notifier) geometryChanged(f *feature.Feature) {
	if n.GeometryChanged != nil {
		n.GeometryChanged(f)
	}
}

func (n *Notifier) newFeature(f *feature.Feature) {
	if n.NewFeature != nil {
		n.NewFeature(f)
	}
}

func (n *Notifier) deletedFeature(id string, class feature.Class) {
	if n.DeletedFeature != nil {
		n.DeletedFeature(id, class)
	}
}

func (n *Notifier) syncCompleted(ts int64) {
	if n.SyncCompleted != nil {
		n.SyncCompleted(ts)
	}
}

func (n *Notifier) disconnected() {
	if n.Disconnected != nil {
		n.Disconnected()
	}
}

func (n *Notifier) reconnected() {
	if n.Reconnected != nil {
		n.Reconnected()
	}
}

func (n *Notifier) queueLengthChanged(l int) {
	if n.QueueLengthChanged != nil {
		n.QueueLengthChanged(l)
	}
}

func (n *Notifier) failedRequest(info RequestInfo, err error) {
	if n.FailedRequest != nil {
		n.FailedRequest(info, err)
	}
}

func (n *Notifier) mapClosed() {
	if n.MapClosed != nil {
		n.MapClosed()
	}
}
