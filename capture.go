package sheetsync

import (
	"context"
)

// ChangeCapture listens for user edits on every registered control and
// funnels them into one shared debounced callback, so that a burst of
// edits produces a single outbound write.
type ChangeCapture struct {
	registry  *FieldRegistry
	debouncer *Debouncer

	removeListeners []func()
}

func NewChangeCaptureWithDefaults(ctx context.Context, registry *FieldRegistry, changeCallback func()) *ChangeCapture {
	return NewChangeCapture(ctx, registry, changeCallback, DefaultDebounceSettings())
}

func NewChangeCapture(ctx context.Context, registry *FieldRegistry, changeCallback func(), settings *DebounceSettings) *ChangeCapture {
	return &ChangeCapture{
		registry:  registry,
		debouncer: NewDebouncer(ctx, changeCallback, settings),
	}
}

// Attach registers a trigger on every field known to the registry.
// Call after the registry scan.
func (self *ChangeCapture) Attach() {
	self.Detach()
	for _, field := range self.registry.Fields() {
		removeListener := field.Control.AddChangeListener(self.debouncer.Trigger)
		self.removeListeners = append(self.removeListeners, removeListener)
	}
}

func (self *ChangeCapture) Detach() {
	for _, removeListener := range self.removeListeners {
		removeListener()
	}
	self.removeListeners = nil
}

func (self *ChangeCapture) Close() {
	self.Detach()
	self.debouncer.Close()
}
