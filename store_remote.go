package sheetsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

type RemoteStoreSettings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	RequestTimeout   time.Duration
	PingTimeout      time.Duration
}

func DefaultRemoteStoreSettings() *RemoteStoreSettings {
	return &RemoteStoreSettings{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      60 * time.Second,
		RequestTimeout:   15 * time.Second,
		PingTimeout:      15 * time.Second,
	}
}

// RemoteStore is a DocumentStore backed by a sync server connection.
// Requests correlate by id; subscription snapshots dispatch per path.
// A connection failure is terminal: pending requests fail, every
// subscription receives one terminal error, and no reconnect is
// attempted.
type RemoteStore struct {
	ctx    context.Context
	cancel context.CancelFunc

	conn     *websocket.Conn
	settings *RemoteStoreSettings

	writeLock sync.Mutex

	stateLock sync.Mutex
	closeErr  error
	pending   map[Id]chan *wireMessage
	subs      map[string]map[Id]*snapshotQueue
	// paths subscribed on the server. outlives the local subscribers:
	// the server sends the initial snapshot only once per path, so the
	// last delivered snapshot replays to every later subscriber.
	serverSubs    map[string]bool
	lastSnapshots map[string]*Snapshot
}

func DialRemoteStoreWithDefaults(ctx context.Context, url string) (*RemoteStore, error) {
	return DialRemoteStore(ctx, url, DefaultRemoteStoreSettings())
}

func DialRemoteStore(ctx context.Context, url string, settings *RemoteStoreSettings) (*RemoteStore, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: settings.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	store := &RemoteStore{
		ctx:           cancelCtx,
		cancel:        cancel,
		conn:          conn,
		settings:      settings,
		pending:       map[Id]chan *wireMessage{},
		subs:          map[string]map[Id]*snapshotQueue{},
		serverSubs:    map[string]bool{},
		lastSnapshots: map[string]*Snapshot{},
	}
	go store.run()
	go store.ping()
	return store, nil
}

func (self *RemoteStore) Get(ctx context.Context, path string) (*Snapshot, error) {
	result, err := self.request(ctx, &wireMessage{
		Type: wireMessageTypeGet,
		Path: path,
	})
	if err != nil {
		return nil, err
	}
	if result.Snapshot == nil {
		return nil, errors.New("missing snapshot in result")
	}
	return result.Snapshot, nil
}

func (self *RemoteStore) Set(ctx context.Context, path string, doc *Document, merge bool) error {
	_, err := self.request(ctx, &wireMessage{
		Type:  wireMessageTypeSet,
		Path:  path,
		Doc:   doc,
		Merge: merge,
	})
	return err
}

func (self *RemoteStore) Subscribe(path string, onSnapshot SnapshotFunction, onError ErrorFunction) func() {
	queue := newSnapshotQueue(onSnapshot, onError)

	self.stateLock.Lock()
	if self.closeErr != nil {
		closeErr := self.closeErr
		self.stateLock.Unlock()
		queue.Fail(closeErr)
		return func() {}
	}
	subId := NewId()
	pathSubs, ok := self.subs[path]
	if !ok {
		pathSubs = map[Id]*snapshotQueue{}
		self.subs[path] = pathSubs
	}
	pathSubs[subId] = queue
	subscribeServer := !self.serverSubs[path]
	if subscribeServer {
		self.serverSubs[path] = true
	} else if lastSnapshot, ok := self.lastSnapshots[path]; ok {
		// the server already sent this path's initial snapshot.
		// replay the last delivered one.
		queue.Push(lastSnapshot)
	}
	self.stateLock.Unlock()

	if subscribeServer {
		if err := self.writeMessage(&wireMessage{
			Type: wireMessageTypeSubscribe,
			Path: path,
		}); err != nil {
			glog.Infof("[remote]subscribe %s error = %s\n", path, err)
			self.stateLock.Lock()
			delete(self.serverSubs, path)
			self.stateLock.Unlock()
			queue.Fail(err)
		}
	}

	return func() {
		self.stateLock.Lock()
		if pathSubs, ok := self.subs[path]; ok {
			delete(pathSubs, subId)
		}
		self.stateLock.Unlock()
		queue.Close()
	}
}

func (self *RemoteStore) request(ctx context.Context, message *wireMessage) (*wireMessage, error) {
	return TraceWithReturnError(
		fmt.Sprintf("[remote]%s %s", message.Type, message.Path),
		func() (*wireMessage, error) {
			return self.doRequest(ctx, message)
		},
	)
}

func (self *RemoteStore) doRequest(ctx context.Context, message *wireMessage) (*wireMessage, error) {
	requestId := NewId()
	message.RequestId = requestId
	reply := make(chan *wireMessage, 1)

	self.stateLock.Lock()
	if self.closeErr != nil {
		closeErr := self.closeErr
		self.stateLock.Unlock()
		return nil, closeErr
	}
	self.pending[requestId] = reply
	self.stateLock.Unlock()

	defer func() {
		self.stateLock.Lock()
		delete(self.pending, requestId)
		self.stateLock.Unlock()
	}()

	if err := self.writeMessage(message); err != nil {
		return nil, err
	}

	select {
	case result, ok := <-reply:
		if !ok {
			return nil, self.CloseErr()
		}
		if result.Error != "" {
			return nil, errors.New(result.Error)
		}
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-self.ctx.Done():
		return nil, self.CloseErr()
	case <-time.After(self.settings.RequestTimeout):
		return nil, fmt.Errorf("%s timeout", message.Type)
	}
}

func (self *RemoteStore) writeMessage(message *wireMessage) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	self.writeLock.Lock()
	defer self.writeLock.Unlock()
	self.conn.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
	return self.conn.WriteMessage(websocket.TextMessage, messageBytes)
}

func (self *RemoteStore) run() {
	defer self.cancel()

	for {
		select {
		case <-self.ctx.Done():
			self.close(errors.New("store closed"))
			return
		default:
		}

		self.conn.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		_, messageBytes, err := self.conn.ReadMessage()
		if err != nil {
			self.close(err)
			return
		}
		if len(messageBytes) == 0 {
			// ping
			continue
		}

		message := &wireMessage{}
		if err := json.Unmarshal(messageBytes, message); err != nil {
			glog.Infof("[remote]<- bad message = %s\n", err)
			continue
		}

		switch message.Type {
		case wireMessageTypeResult:
			self.stateLock.Lock()
			reply, ok := self.pending[message.RequestId]
			delete(self.pending, message.RequestId)
			self.stateLock.Unlock()
			if ok {
				reply <- message
			}
		case wireMessageTypeSnapshot:
			if message.Error != "" {
				self.failPath(message.Path, errors.New(message.Error))
				continue
			}
			if message.Snapshot == nil {
				continue
			}
			self.stateLock.Lock()
			self.lastSnapshots[message.Path] = message.Snapshot
			queues := []*snapshotQueue{}
			for _, queue := range self.subs[message.Path] {
				queues = append(queues, queue)
			}
			self.stateLock.Unlock()
			for _, queue := range queues {
				queue.Push(message.Snapshot)
			}
		default:
			glog.Infof("[remote]<- unknown message type %s\n", message.Type)
		}
	}
}

func (self *RemoteStore) ping() {
	for {
		select {
		case <-self.ctx.Done():
			return
		case <-time.After(self.settings.PingTimeout):
		}
		self.writeLock.Lock()
		self.conn.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
		err := self.conn.WriteMessage(websocket.TextMessage, make([]byte, 0))
		self.writeLock.Unlock()
		if err != nil {
			return
		}
	}
}

func (self *RemoteStore) failPath(path string, err error) {
	self.stateLock.Lock()
	pathSubs := self.subs[path]
	delete(self.subs, path)
	// the server-side subscription is gone. a fresh subscribe resends.
	delete(self.serverSubs, path)
	delete(self.lastSnapshots, path)
	self.stateLock.Unlock()
	for _, queue := range pathSubs {
		queue.Fail(err)
	}
}

func (self *RemoteStore) close(err error) {
	self.stateLock.Lock()
	if self.closeErr != nil {
		self.stateLock.Unlock()
		return
	}
	self.closeErr = err
	pending := self.pending
	self.pending = map[Id]chan *wireMessage{}
	subs := self.subs
	self.subs = map[string]map[Id]*snapshotQueue{}
	self.stateLock.Unlock()

	glog.V(1).Infof("[remote]close = %s\n", err)

	for _, reply := range pending {
		close(reply)
	}
	for _, pathSubs := range subs {
		for _, queue := range pathSubs {
			queue.Fail(err)
		}
	}
	self.cancel()
	self.conn.Close()
}

func (self *RemoteStore) CloseErr() error {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if self.closeErr == nil {
		return errors.New("store closed")
	}
	return self.closeErr
}

func (self *RemoteStore) Close() {
	self.close(errors.New("store closed"))
}
