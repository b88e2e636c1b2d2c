package sheetsync

import (
	"context"
	"sync"
	"time"
)

// Document is the wire shape of one remote document:
// a flat mapping of field keys to values, never nested documents.
type Document struct {
	Fields    map[string]Value `json:"fields"`
	UpdatedAt int64            `json:"updatedAt"`
}

func NewDocument(fields map[string]Value) *Document {
	return &Document{
		Fields:    fields,
		UpdatedAt: NowMilli(),
	}
}

func NowMilli() int64 {
	return time.Now().UnixMilli()
}

// Snapshot is a point-in-time read of a document's full content
type Snapshot struct {
	Exists    bool             `json:"exists"`
	Fields    map[string]Value `json:"fields,omitempty"`
	UpdatedAt int64            `json:"updatedAt,omitempty"`
}

type SnapshotFunction = func(snapshot *Snapshot)
type ErrorFunction = func(err error)

// DocumentStore is an opaque key-path-addressed store. Required guarantees:
// - per-document ordered snapshot delivery
// - a client's own acknowledged write is observable by that client's
//   subscription no later than any later write (read-your-writes)
// Subscription errors are terminal for that subscription.
type DocumentStore interface {
	Get(ctx context.Context, path string) (*Snapshot, error)
	// merge=true overwrites only the listed keys and preserves the rest.
	// merge=false replaces the whole document.
	Set(ctx context.Context, path string, doc *Document, merge bool) error
	// delivers an initial snapshot, then every subsequent change.
	// the returned function cancels the subscription.
	Subscribe(path string, onSnapshot SnapshotFunction, onError ErrorFunction) func()
}

// snapshotQueue delivers snapshots to one subscriber in FIFO order
// on a dedicated goroutine, preserving per-document ordering without
// holding store locks through callbacks.
type snapshotQueue struct {
	mutex  sync.Mutex
	notify *sync.Cond
	queue  []*Snapshot
	err    error
	closed bool

	onSnapshot SnapshotFunction
	onError    ErrorFunction
}

func newSnapshotQueue(onSnapshot SnapshotFunction, onError ErrorFunction) *snapshotQueue {
	q := &snapshotQueue{
		onSnapshot: onSnapshot,
		onError:    onError,
	}
	q.notify = sync.NewCond(&q.mutex)
	go q.run()
	return q
}

func (self *snapshotQueue) Push(snapshot *Snapshot) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if self.closed {
		return
	}
	self.queue = append(self.queue, snapshot)
	self.notify.Signal()
}

// Fail delivers one terminal error and closes the queue
func (self *snapshotQueue) Fail(err error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if self.closed {
		return
	}
	self.err = err
	self.closed = true
	self.notify.Signal()
}

func (self *snapshotQueue) Close() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.closed = true
	self.notify.Signal()
}

func (self *snapshotQueue) run() {
	for {
		self.mutex.Lock()
		for len(self.queue) == 0 && !self.closed {
			self.notify.Wait()
		}
		if len(self.queue) == 0 {
			err := self.err
			self.mutex.Unlock()
			if err != nil && self.onError != nil {
				HandleError(func() {
					self.onError(err)
				})
			}
			return
		}
		snapshot := self.queue[0]
		self.queue = self.queue[1:]
		self.mutex.Unlock()

		HandleError(func() {
			self.onSnapshot(snapshot)
		})
	}
}
