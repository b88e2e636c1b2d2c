package sheetsync

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// json frames between a remote store client and the sync server.
// empty messages are pings.
const (
	wireMessageTypeGet       = "get"
	wireMessageTypeSet       = "set"
	wireMessageTypeSubscribe = "subscribe"
	wireMessageTypeResult    = "result"
	wireMessageTypeSnapshot  = "snapshot"
)

type wireMessage struct {
	Type      string    `json:"type"`
	RequestId Id        `json:"requestId"`
	Path      string    `json:"path,omitempty"`
	Doc       *Document `json:"doc,omitempty"`
	Merge     bool      `json:"merge,omitempty"`
	Snapshot  *Snapshot `json:"snapshot,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type SyncServerSettings struct {
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	PingTimeout  time.Duration
	BufferSize   int
}

func DefaultSyncServerSettings() *SyncServerSettings {
	return &SyncServerSettings{
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  60 * time.Second,
		PingTimeout:  15 * time.Second,
		BufferSize:   32,
	}
}

// SyncServer exposes a DocumentStore over websocket. One connection can
// issue get/set requests and hold live subscriptions; snapshots for a
// subscription flow in write order through the per-connection sender, so
// per-document ordering and read-your-writes carry through to the client.
type SyncServer struct {
	ctx    context.Context
	cancel context.CancelFunc

	store    DocumentStore
	settings *SyncServerSettings

	upgrader *websocket.Upgrader
}

func NewSyncServerWithDefaults(ctx context.Context, store DocumentStore) *SyncServer {
	return NewSyncServer(ctx, store, DefaultSyncServerSettings())
}

func NewSyncServer(ctx context.Context, store DocumentStore, settings *SyncServerSettings) *SyncServer {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &SyncServer{
		ctx:      cancelCtx,
		cancel:   cancel,
		store:    store,
		settings: settings,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (self *SyncServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := self.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Infof("[server]upgrade error = %s\n", err)
		return
	}
	self.handleConn(conn)
}

func (self *SyncServer) handleConn(conn *websocket.Conn) {
	defer conn.Close()

	handleCtx, handleCancel := context.WithCancel(self.ctx)
	defer handleCancel()

	connId := NewId()
	glog.V(1).Infof("[server]%s open\n", connId)

	send := make(chan []byte, self.settings.BufferSize)

	enqueue := func(message *wireMessage) {
		messageBytes, err := json.Marshal(message)
		if err != nil {
			glog.Infof("[server]%s marshal error = %s\n", connId, err)
			return
		}
		select {
		case send <- messageBytes:
		case <-handleCtx.Done():
		}
	}

	// writer
	go func() {
		defer handleCancel()
		for {
			select {
			case <-handleCtx.Done():
				return
			case messageBytes := <-send:
				conn.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, messageBytes); err != nil {
					glog.Infof("[server]%s-> error = %s\n", connId, err)
					return
				}
				glog.V(2).Infof("[server]%s->\n", connId)
			case <-time.After(self.settings.PingTimeout):
				conn.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, make([]byte, 0)); err != nil {
					return
				}
			}
		}
	}()

	unsubscribes := map[string]func(){}
	defer func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}()

	// reader
	for {
		select {
		case <-handleCtx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			glog.V(1).Infof("[server]%s<- error = %s\n", connId, err)
			return
		}
		if len(messageBytes) == 0 {
			// ping
			glog.V(2).Infof("[server]ping %s<-\n", connId)
			continue
		}

		message := &wireMessage{}
		if err := json.Unmarshal(messageBytes, message); err != nil {
			glog.Infof("[server]%s<- bad message = %s\n", connId, err)
			continue
		}

		switch message.Type {
		case wireMessageTypeGet:
			result := &wireMessage{
				Type:      wireMessageTypeResult,
				RequestId: message.RequestId,
			}
			snapshot, err := self.store.Get(handleCtx, message.Path)
			if err != nil {
				result.Error = err.Error()
			} else {
				result.Snapshot = snapshot
			}
			enqueue(result)
		case wireMessageTypeSet:
			result := &wireMessage{
				Type:      wireMessageTypeResult,
				RequestId: message.RequestId,
			}
			if message.Doc == nil {
				result.Error = "set requires a doc"
			} else if err := self.store.Set(handleCtx, message.Path, message.Doc, message.Merge); err != nil {
				result.Error = err.Error()
			}
			enqueue(result)
		case wireMessageTypeSubscribe:
			path := message.Path
			if _, ok := unsubscribes[path]; ok {
				continue
			}
			unsubscribes[path] = self.store.Subscribe(
				path,
				func(snapshot *Snapshot) {
					enqueue(&wireMessage{
						Type:     wireMessageTypeSnapshot,
						Path:     path,
						Snapshot: snapshot,
					})
				},
				func(err error) {
					enqueue(&wireMessage{
						Type:  wireMessageTypeSnapshot,
						Path:  path,
						Error: err.Error(),
					})
				},
			)
		default:
			glog.Infof("[server]%s<- unknown message type %s\n", connId, message.Type)
		}
	}
}

func (self *SyncServer) Close() {
	self.cancel()
}
