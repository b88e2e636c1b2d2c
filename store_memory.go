package sheetsync

import (
	"context"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/golang/glog"
)

// MemoryStore is an in-process DocumentStore. Writes serialize under one
// lock, so per-document ordering and read-your-writes hold trivially.
type MemoryStore struct {
	stateLock sync.Mutex
	docs      map[string]*Document
	subs      map[string]map[Id]*snapshotQueue
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: map[string]*Document{},
		subs: map[string]map[Id]*snapshotQueue{},
	}
}

func (self *MemoryStore) Get(ctx context.Context, path string) (*Snapshot, error) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.snapshot(path), nil
}

func (self *MemoryStore) Set(ctx context.Context, path string, doc *Document, merge bool) error {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	updatedAt := doc.UpdatedAt
	if updatedAt == 0 {
		updatedAt = NowMilli()
	}

	stored, ok := self.docs[path]
	if !ok || !merge {
		stored = &Document{
			Fields: map[string]Value{},
		}
		self.docs[path] = stored
	}
	maps.Copy(stored.Fields, doc.Fields)
	stored.UpdatedAt = updatedAt

	glog.V(2).Infof("[store]set %s (%d keys)\n", path, len(doc.Fields))

	snapshot := self.snapshot(path)
	for _, queue := range self.subs[path] {
		queue.Push(snapshot)
	}
	return nil
}

func (self *MemoryStore) Subscribe(path string, onSnapshot SnapshotFunction, onError ErrorFunction) func() {
	queue := newSnapshotQueue(onSnapshot, onError)

	self.stateLock.Lock()
	subId := NewId()
	pathSubs, ok := self.subs[path]
	if !ok {
		pathSubs = map[Id]*snapshotQueue{}
		self.subs[path] = pathSubs
	}
	pathSubs[subId] = queue
	queue.Push(self.snapshot(path))
	self.stateLock.Unlock()

	return func() {
		self.stateLock.Lock()
		if pathSubs, ok := self.subs[path]; ok {
			delete(pathSubs, subId)
			if len(pathSubs) == 0 {
				delete(self.subs, path)
			}
		}
		self.stateLock.Unlock()
		queue.Close()
	}
}

// must be called inside the state lock
func (self *MemoryStore) snapshot(path string) *Snapshot {
	stored, ok := self.docs[path]
	if !ok {
		return &Snapshot{}
	}
	return &Snapshot{
		Exists:    true,
		Fields:    maps.Clone(stored.Fields),
		UpdatedAt: stored.UpdatedAt,
	}
}
