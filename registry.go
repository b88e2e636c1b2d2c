package sheetsync

import (
	"sync"

	"github.com/golang/glog"
)

type Field struct {
	Key     string
	Kind    ControlKind
	Control Control
}

// FieldRegistry exposes the labeled controls of a surface as a stable
// ordered collection keyed by field identifier.
type FieldRegistry struct {
	surface Surface

	stateLock   sync.Mutex
	fields      []*Field
	fieldsByKey map[string]*Field
}

func NewFieldRegistry(surface Surface) *FieldRegistry {
	return &FieldRegistry{
		surface:     surface,
		fieldsByKey: map[string]*Field{},
	}
}

// Scan enumerates the control wrappers present on the surface at call time.
// Controls generated after a scan are silently missed until the next scan,
// so callers must scan after all dynamic generation completes.
func (self *FieldRegistry) Scan() []*Field {
	controls := self.surface.Controls()

	fields := make([]*Field, 0, len(controls))
	fieldsByKey := map[string]*Field{}
	for _, control := range controls {
		key := control.Key()
		if key == "" {
			continue
		}
		if _, ok := fieldsByKey[key]; ok {
			glog.Infof("[registry]duplicate field key %s\n", key)
			continue
		}
		field := &Field{
			Key:     key,
			Kind:    control.Kind(),
			Control: control,
		}
		fields = append(fields, field)
		fieldsByKey[key] = field
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.fields = fields
	self.fieldsByKey = fieldsByKey
	return fields
}

func (self *FieldRegistry) Fields() []*Field {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	fields := make([]*Field, len(self.fields))
	copy(fields, self.fields)
	return fields
}

// Field returns nil when the key has no control binding
func (self *FieldRegistry) Field(key string) *Field {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.fieldsByKey[key]
}

// ReadAll produces the live control state. No side effects.
func (self *FieldRegistry) ReadAll() map[string]Value {
	fields := self.Fields()
	values := map[string]Value{}
	for _, field := range fields {
		values[field.Key] = field.Control.Value()
	}
	return values
}

// ApplyAll sets the value of every known field whose key is present
// in the mapping. This is a partial apply: fields absent from the
// mapping keep their current value.
func (self *FieldRegistry) ApplyAll(values map[string]Value) {
	fields := self.Fields()
	for _, field := range fields {
		value, ok := values[field.Key]
		if !ok {
			continue
		}
		switch field.Kind {
		case ControlKindCheckbox:
			field.Control.SetValue(BoolValue(value.Checked()))
		default:
			field.Control.SetValue(TextValue(value.Text()))
		}
	}
}
