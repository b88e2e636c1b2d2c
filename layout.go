package sheetsync

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/glog"
)

// LayoutEntry is the positional and sizing metadata of one control,
// in pixels. Unset attributes stay nil and are omitted on the wire.
type LayoutEntry struct {
	Top        *float64 `json:"top,omitempty"`
	Left       *float64 `json:"left,omitempty"`
	Bottom     *float64 `json:"bottom,omitempty"`
	Right      *float64 `json:"right,omitempty"`
	Width      *float64 `json:"width,omitempty"`
	Height     *float64 `json:"height,omitempty"`
	LineHeight *float64 `json:"lineHeight,omitempty"`
}

func (self *LayoutEntry) IsZero() bool {
	return self.Top == nil &&
		self.Left == nil &&
		self.Bottom == nil &&
		self.Right == nil &&
		self.Width == nil &&
		self.Height == nil &&
		self.LineHeight == nil
}

// style property name per entry attribute
var layoutStyles = []struct {
	style string
	get   func(entry *LayoutEntry) **float64
}{
	{"top", func(entry *LayoutEntry) **float64 { return &entry.Top }},
	{"left", func(entry *LayoutEntry) **float64 { return &entry.Left }},
	{"bottom", func(entry *LayoutEntry) **float64 { return &entry.Bottom }},
	{"right", func(entry *LayoutEntry) **float64 { return &entry.Right }},
	{"width", func(entry *LayoutEntry) **float64 { return &entry.Width }},
	{"height", func(entry *LayoutEntry) **float64 { return &entry.Height }},
	{"line-height", func(entry *LayoutEntry) **float64 { return &entry.LineHeight }},
}

func formatPx(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}

func parsePx(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "px"))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// LayoutChannel is the second instance of the sync channel pattern,
// read-mostly: the layout document is read once at boot and applied to
// control styling, and written only on an explicit save.
type LayoutChannel struct {
	ctx context.Context

	store    DocumentStore
	path     string
	registry *FieldRegistry

	statusCallbacks *CallbackList[StatusFunction]

	stateLock sync.Mutex
	loadedAt  int64
}

func NewLayoutChannel(ctx context.Context, store DocumentStore, path string, registry *FieldRegistry) *LayoutChannel {
	return &LayoutChannel{
		ctx:             ctx,
		store:           store,
		path:            path,
		registry:        registry,
		statusCallbacks: NewCallbackList[StatusFunction](),
	}
}

func (self *LayoutChannel) AddStatusCallback(statusCallback StatusFunction) func() {
	callbackId := self.statusCallbacks.Add(statusCallback)
	return func() {
		self.statusCallbacks.Remove(callbackId)
	}
}

// Load reads the layout document once and applies it.
// A missing document is not an error.
func (self *LayoutChannel) Load() error {
	snapshot, err := self.store.Get(self.ctx, self.path)
	if err != nil {
		glog.Infof("[layout]load %s error = %s\n", self.path, err)
		self.setStatus(ConnectionStatusConnectionError)
		return err
	}
	if !snapshot.Exists {
		return nil
	}
	self.stateLock.Lock()
	self.loadedAt = snapshot.UpdatedAt
	self.stateLock.Unlock()
	self.ApplyLayout(snapshot.Fields)
	return nil
}

// Reload re-reads and reapplies
func (self *LayoutChannel) Reload() error {
	return self.Load()
}

// ApplyLayout sets positioning styling only for the keys present in the
// mapping. Unspecified keys retain their prior styling. Entries that do
// not decode are skipped.
func (self *LayoutChannel) ApplyLayout(fields map[string]Value) {
	for key, value := range fields {
		field := self.registry.Field(key)
		if field == nil {
			continue
		}
		raw := value.Raw()
		if raw == nil {
			continue
		}
		entry := &LayoutEntry{}
		if err := json.Unmarshal(raw, entry); err != nil {
			glog.Infof("[layout]bad entry %s = %s\n", key, err)
			continue
		}
		for _, layoutStyle := range layoutStyles {
			if v := *layoutStyle.get(entry); v != nil {
				field.Control.SetStyle(layoutStyle.style, formatPx(*v))
			}
		}
	}
}

// CollectLayout walks the current styling of every known field and
// serializes only the non-empty positional and sizing attributes.
func (self *LayoutChannel) CollectLayout() map[string]Value {
	fields := map[string]Value{}
	for _, field := range self.registry.Fields() {
		entry := &LayoutEntry{}
		for _, layoutStyle := range layoutStyles {
			if v, ok := parsePx(field.Control.Style(layoutStyle.style)); ok {
				pv := v
				*layoutStyle.get(entry) = &pv
			}
		}
		if entry.IsZero() {
			continue
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		fields[field.Key] = RawValue(raw)
	}
	return fields
}

// Save merge-writes the collected layout
func (self *LayoutChannel) Save() error {
	self.setStatus(ConnectionStatusSyncing)
	doc := NewDocument(self.CollectLayout())
	if err := self.store.Set(self.ctx, self.path, doc, true); err != nil {
		glog.Infof("[layout]save %s error = %s\n", self.path, err)
		self.setStatus(ConnectionStatusSyncFailed)
		return err
	}
	self.setStatus(ConnectionStatusSynced)
	return nil
}

func (self *LayoutChannel) setStatus(status ConnectionStatus) {
	for _, statusCallback := range self.statusCallbacks.Get() {
		HandleError(func() {
			statusCallback(status)
		})
	}
}
