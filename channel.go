package sheetsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"
)

// surfaced to a status display collaborator as human-readable text
type ConnectionStatus string

const (
	ConnectionStatusUnknown          ConnectionStatus = "unknown"
	ConnectionStatusSyncing          ConnectionStatus = "syncing..."
	ConnectionStatusSynced           ConnectionStatus = "synced"
	ConnectionStatusSyncFailed       ConnectionStatus = "sync failed"
	ConnectionStatusConnectedNew     ConnectionStatus = "connected (new sheet)"
	ConnectionStatusConnectedLoaded  ConnectionStatus = "connected (loaded)"
	ConnectionStatusUpdatedFromCloud ConnectionStatus = "updated from cloud"
	ConnectionStatusConnectionError  ConnectionStatus = "connection error"
)

func (self ConnectionStatus) IsError() bool {
	switch self {
	case ConnectionStatusSyncFailed, ConnectionStatusConnectionError:
		return true
	default:
		return false
	}
}

type StatusFunction = func(status ConnectionStatus)

type channelState string

const (
	channelStateUnbound   channelState = "unbound"
	channelStateLoading   channelState = "loading"
	channelStateBoundLive channelState = "bound-live"
)

// SyncChannel binds one remote document to the field registry:
// initial load (or lazy create), merge-semantics pushes of the registry
// state, and a live subscription that re-applies every delivered snapshot
// and re-runs track enforcement.
type SyncChannel struct {
	ctx    context.Context
	cancel context.CancelFunc

	store    DocumentStore
	path     string
	registry *FieldRegistry
	tracks   *TrackEngine

	statusCallbacks *CallbackList[StatusFunction]

	stateLock    sync.Mutex
	state        channelState
	live         bool
	lastPushedAt int64
	status       ConnectionStatus
	unsubscribe  func()
}

func NewSyncChannel(ctx context.Context, store DocumentStore, path string, registry *FieldRegistry, tracks *TrackEngine) *SyncChannel {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &SyncChannel{
		ctx:             cancelCtx,
		cancel:          cancel,
		store:           store,
		path:            path,
		registry:        registry,
		tracks:          tracks,
		statusCallbacks: NewCallbackList[StatusFunction](),
		state:           channelStateUnbound,
		status:          ConnectionStatusUnknown,
	}
}

func (self *SyncChannel) AddStatusCallback(statusCallback StatusFunction) func() {
	callbackId := self.statusCallbacks.Add(statusCallback)
	return func() {
		self.statusCallbacks.Remove(callbackId)
	}
}

func (self *SyncChannel) Status() ConnectionStatus {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.status
}

// Bind requests the current snapshot, creating the document from the
// registry's current values when absent, then opens the live subscription.
func (self *SyncChannel) Bind() error {
	self.stateLock.Lock()
	if self.state != channelStateUnbound {
		self.stateLock.Unlock()
		return fmt.Errorf("already bound to %s", self.path)
	}
	self.state = channelStateLoading
	self.stateLock.Unlock()

	snapshot, err := self.store.Get(self.ctx, self.path)
	if err != nil {
		glog.Infof("[channel]load %s error = %s\n", self.path, err)
		self.stateLock.Lock()
		self.state = channelStateUnbound
		self.stateLock.Unlock()
		self.setStatus(ConnectionStatusConnectionError)
		return err
	}

	if !snapshot.Exists {
		// synthesize the document from the current control state
		doc := NewDocument(self.registry.ReadAll())
		if err := self.store.Set(self.ctx, self.path, doc, false); err != nil {
			glog.Infof("[channel]create %s error = %s\n", self.path, err)
			self.stateLock.Lock()
			self.state = channelStateUnbound
			self.stateLock.Unlock()
			self.setStatus(ConnectionStatusConnectionError)
			return err
		}
		// advance only after the acknowledged write. a failed create has no
		// pushed value, and must not suppress later remote snapshots.
		self.stateLock.Lock()
		self.lastPushedAt = doc.UpdatedAt
		self.stateLock.Unlock()
		self.setStatus(ConnectionStatusConnectedNew)
	} else {
		self.apply(snapshot)
		self.setStatus(ConnectionStatusConnectedLoaded)
	}

	unsubscribe := self.store.Subscribe(self.path, self.handleSnapshot, self.handleSubscriptionError)

	self.stateLock.Lock()
	self.state = channelStateBoundLive
	self.unsubscribe = unsubscribe
	self.stateLock.Unlock()
	return nil
}

// Push merge-writes the registry's current values with a fresh timestamp.
// A failed push leaves local control state intact; the next debounced
// edit naturally retries.
func (self *SyncChannel) Push() error {
	self.stateLock.Lock()
	if self.state != channelStateBoundLive {
		state := self.state
		self.stateLock.Unlock()
		return fmt.Errorf("cannot push in state %s", state)
	}
	self.stateLock.Unlock()

	self.setStatus(ConnectionStatusSyncing)

	doc := NewDocument(self.registry.ReadAll())
	if err := self.store.Set(self.ctx, self.path, doc, true); err != nil {
		glog.Infof("[channel]push %s error = %s\n", self.path, err)
		self.setStatus(ConnectionStatusSyncFailed)
		return err
	}
	// the stale-echo watermark advances only on an acknowledged write
	self.stateLock.Lock()
	self.lastPushedAt = doc.UpdatedAt
	self.stateLock.Unlock()
	glog.V(2).Infof("[channel]push %s (%d keys)\n", self.path, len(doc.Fields))
	self.setStatus(ConnectionStatusSynced)
	return nil
}

func (self *SyncChannel) handleSnapshot(snapshot *Snapshot) {
	self.stateLock.Lock()
	first := !self.live
	self.live = true
	lastPushedAt := self.lastPushedAt
	self.stateLock.Unlock()

	if !snapshot.Exists {
		return
	}
	if snapshot.UpdatedAt < lastPushedAt {
		// a stale echo of state before our last push. applying it would
		// visually roll back the local edit until the next delivery.
		glog.V(2).Infof("[channel]drop stale %s (%d < %d)\n", self.path, snapshot.UpdatedAt, lastPushedAt)
		return
	}

	self.apply(snapshot)
	if !first {
		self.setStatus(ConnectionStatusUpdatedFromCloud)
	}
}

func (self *SyncChannel) handleSubscriptionError(err error) {
	// terminal for this subscription. no automatic reconnect.
	glog.Infof("[channel]subscription %s error = %s\n", self.path, err)
	self.setStatus(ConnectionStatusConnectionError)
}

func (self *SyncChannel) apply(snapshot *Snapshot) {
	self.registry.ApplyAll(snapshot.Fields)
	self.tracks.Enforce(snapshot.Fields)
}

func (self *SyncChannel) setStatus(status ConnectionStatus) {
	self.stateLock.Lock()
	self.status = status
	self.stateLock.Unlock()
	for _, statusCallback := range self.statusCallbacks.Get() {
		HandleError(func() {
			statusCallback(status)
		})
	}
}

func (self *SyncChannel) Close() {
	self.stateLock.Lock()
	unsubscribe := self.unsubscribe
	self.unsubscribe = nil
	self.stateLock.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	self.cancel()
}
