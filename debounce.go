package sheetsync

import (
	"context"
	"time"
)

type DebounceSettings struct {
	// quiet window measured from the last trigger in a burst
	QuietWindow time.Duration
}

func DefaultDebounceSettings() *DebounceSettings {
	return &DebounceSettings{
		QuietWindow: 450 * time.Millisecond,
	}
}

// Debouncer collapses any sequence of triggers arriving within the quiet
// window into exactly one invocation of the callback, timed from the last
// trigger (trailing edge). A callback in flight does not block new triggers
// from starting the next window.
type Debouncer struct {
	ctx    context.Context
	cancel context.CancelFunc

	callback func()
	settings *DebounceSettings

	triggers chan struct{}
}

func NewDebouncerWithDefaults(ctx context.Context, callback func()) *Debouncer {
	return NewDebouncer(ctx, callback, DefaultDebounceSettings())
}

func NewDebouncer(ctx context.Context, callback func(), settings *DebounceSettings) *Debouncer {
	cancelCtx, cancel := context.WithCancel(ctx)
	debouncer := &Debouncer{
		ctx:      cancelCtx,
		cancel:   cancel,
		callback: callback,
		settings: settings,
		triggers: make(chan struct{}, 1),
	}
	go debouncer.run()
	return debouncer
}

// Trigger never blocks. A trigger arriving while the callback runs
// is retained and starts the next window.
func (self *Debouncer) Trigger() {
	select {
	case self.triggers <- struct{}{}:
	default:
	}
}

func (self *Debouncer) run() {
	defer self.cancel()
	for {
		select {
		case <-self.ctx.Done():
			return
		case <-self.triggers:
		}

		timer := time.NewTimer(self.settings.QuietWindow)
	waiting:
		for {
			select {
			case <-self.ctx.Done():
				timer.Stop()
				return
			case <-self.triggers:
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(self.settings.QuietWindow)
			case <-timer.C:
				break waiting
			}
		}

		HandleError(self.callback)
	}
}

func (self *Debouncer) Close() {
	self.cancel()
}
