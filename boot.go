package sheetsync

import (
	"context"
	"fmt"
	"net/url"

	"github.com/golang/glog"
)

type SessionSettings struct {
	TrackCatalog TrackCatalog
	Debounce     *DebounceSettings
}

func DefaultSessionSettings() *SessionSettings {
	return &SessionSettings{
		TrackCatalog: DefaultTrackCatalog(),
		Debounce:     DefaultDebounceSettings(),
	}
}

// Session owns the full binding of one page to its two remote documents.
// All state lives here, constructed at boot and passed to each component.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	locator  SheetLocator
	store    DocumentStore
	registry *FieldRegistry
	tracks   *TrackEngine
	capture  *ChangeCapture
	channel  *SyncChannel
	layout   *LayoutChannel
}

func NewSessionWithDefaults(ctx context.Context, surface Surface, store DocumentStore, query url.Values) *Session {
	return NewSession(ctx, surface, store, query, DefaultSessionSettings())
}

func NewSession(ctx context.Context, surface Surface, store DocumentStore, query url.Values, settings *SessionSettings) *Session {
	cancelCtx, cancel := context.WithCancel(ctx)

	locator := ParseSheetLocator(query)
	registry := NewFieldRegistry(surface)
	tracks := NewTrackEngine(registry, settings.TrackCatalog)
	channel := NewSyncChannel(cancelCtx, store, locator.FieldDocumentPath(), registry, tracks)
	layout := NewLayoutChannel(cancelCtx, store, locator.LayoutDocumentPath(), registry)

	session := &Session{
		ctx:      cancelCtx,
		cancel:   cancel,
		locator:  locator,
		store:    store,
		registry: registry,
		tracks:   tracks,
		channel:  channel,
		layout:   layout,
	}
	session.capture = NewChangeCapture(cancelCtx, registry, session.pushEdits, settings.Debounce)
	return session
}

// Boot orders initialization: scan, load layout once, attach local
// listeners, then open the live binding.
//
// Precondition: all dynamic control generation (track sub-fields etc)
// must be complete before Boot, or those controls are silently missed.
func (self *Session) Boot() (returnErr error) {
	Trace(fmt.Sprintf("[boot]%s", self.locator), func() {
		returnErr = self.boot()
	})
	return
}

func (self *Session) boot() error {
	self.registry.Scan()

	// layout is best effort. a failed load leaves default styling and
	// does not block field sync.
	if err := self.layout.Load(); err != nil {
		glog.Infof("[boot]%s layout error = %s\n", self.locator, err)
	}

	self.capture.Attach()

	if err := self.channel.Bind(); err != nil {
		// degrade to local-only editing. controls stay live,
		// nothing persists, the error state is surfaced.
		glog.Infof("[boot]%s bind error = %s\n", self.locator, err)
		return err
	}
	glog.V(1).Infof("[boot]%s live\n", self.locator)
	return nil
}

func (self *Session) pushEdits() {
	// push errors surface through the status callbacks and the next
	// debounced edit retries
	self.channel.Push()
}

func (self *Session) Locator() SheetLocator {
	return self.locator
}

func (self *Session) Registry() *FieldRegistry {
	return self.registry
}

func (self *Session) Tracks() *TrackEngine {
	return self.tracks
}

func (self *Session) Channel() *SyncChannel {
	return self.channel
}

func (self *Session) Layout() *LayoutChannel {
	return self.layout
}

func (self *Session) AddStatusCallback(statusCallback StatusFunction) func() {
	return self.channel.AddStatusCallback(statusCallback)
}

func (self *Session) SaveLayout() error {
	return self.layout.Save()
}

func (self *Session) ReloadLayout() error {
	return self.layout.Reload()
}

func (self *Session) Close() {
	self.capture.Close()
	self.channel.Close()
	self.cancel()
}
