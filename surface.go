package sheetsync

import (
	"sync"
)

// control kind resolves once at scan time, not per access
type ControlKind string

const (
	ControlKindText     ControlKind = "text"
	ControlKindCheckbox ControlKind = "checkbox"
)

// ChangeFunction fires on a user edit gesture, never on a programmatic set
type ChangeFunction = func()

// Control is one interactive control on the page with a uniform
// logical value independent of the underlying control type.
//
// SetValue, SetDisabled, SetMarked and SetStyle are programmatic and do not
// fire change listeners, mirroring how assigning to a DOM control's value
// does not fire input events. Edit simulates the user gesture: it sets the
// value and fires the listeners.
type Control interface {
	Key() string
	Kind() ControlKind
	Value() Value
	SetValue(value Value)
	Edit(value Value)
	Disabled() bool
	SetDisabled(disabled bool)
	// the beyond-max visual marker
	Marked() bool
	SetMarked(marked bool)
	Style(name string) string
	SetStyle(name string, value string)
	AddChangeListener(changeCallback ChangeFunction) func()
}

// Surface enumerates the control wrappers present on a page, in page order
type Surface interface {
	Controls() []Control
}

// MemorySurface is a headless surface for tests and non-browser embedders
type MemorySurface struct {
	stateLock sync.Mutex
	controls  []Control
}

func NewMemorySurface() *MemorySurface {
	return &MemorySurface{}
}

func (self *MemorySurface) Controls() []Control {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	controls := make([]Control, len(self.controls))
	copy(controls, self.controls)
	return controls
}

func (self *MemorySurface) AddText(key string) *MemoryControl {
	return self.add(key, ControlKindText)
}

func (self *MemorySurface) AddCheckbox(key string) *MemoryControl {
	return self.add(key, ControlKindCheckbox)
}

// AddTrack generates the sub-field controls for one track:
// checkboxes "{base}_0".."{base}_{absoluteMax-1}" plus the "{base}_max" text control.
// This is the dynamic generation step that must complete before a registry scan.
func (self *MemorySurface) AddTrack(base string, absoluteMax int) {
	for i := 0; i < absoluteMax; i += 1 {
		self.add(trackSubFieldKey(base, i), ControlKindCheckbox)
	}
	self.add(base+"_max", ControlKindText)
}

func (self *MemorySurface) add(key string, kind ControlKind) *MemoryControl {
	control := &MemoryControl{
		key:             key,
		kind:            kind,
		styles:          map[string]string{},
		changeCallbacks: NewCallbackList[ChangeFunction](),
	}
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.controls = append(self.controls, control)
	return control
}

type MemoryControl struct {
	key  string
	kind ControlKind

	stateLock sync.Mutex
	value     Value
	disabled  bool
	marked    bool
	styles    map[string]string

	changeCallbacks *CallbackList[ChangeFunction]
}

func (self *MemoryControl) Key() string {
	return self.key
}

func (self *MemoryControl) Kind() ControlKind {
	return self.kind
}

func (self *MemoryControl) Value() Value {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if self.kind == ControlKindCheckbox {
		return BoolValue(self.value.Checked())
	}
	return TextValue(self.value.Text())
}

func (self *MemoryControl) SetValue(value Value) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.value = value
}

func (self *MemoryControl) Edit(value Value) {
	self.SetValue(value)
	for _, changeCallback := range self.changeCallbacks.Get() {
		HandleError(changeCallback)
	}
}

func (self *MemoryControl) Disabled() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.disabled
}

func (self *MemoryControl) SetDisabled(disabled bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.disabled = disabled
}

func (self *MemoryControl) Marked() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.marked
}

func (self *MemoryControl) SetMarked(marked bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.marked = marked
}

func (self *MemoryControl) Style(name string) string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.styles[name]
}

func (self *MemoryControl) SetStyle(name string, value string) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if value == "" {
		delete(self.styles, name)
	} else {
		self.styles[name] = value
	}
}

func (self *MemoryControl) AddChangeListener(changeCallback ChangeFunction) func() {
	callbackId := self.changeCallbacks.Add(changeCallback)
	return func() {
		self.changeCallbacks.Remove(callbackId)
	}
}
