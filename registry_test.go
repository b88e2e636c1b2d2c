package sheetsync

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func newSheetSurface() *MemorySurface {
	surface := NewMemorySurface()
	surface.AddText("name")
	surface.AddText("pronouns")
	surface.AddTrack("hp", 12)
	surface.AddTrack("stress", 12)
	return surface
}

func TestRegistryScanOrder(t *testing.T) {
	surface := newSheetSurface()
	registry := NewFieldRegistry(surface)
	fields := registry.Scan()

	// 2 text + (12+1) per track
	assert.Equal(t, len(fields), 2+13+13)
	assert.Equal(t, fields[0].Key, "name")
	assert.Equal(t, fields[0].Kind, ControlKindText)
	assert.Equal(t, fields[2].Key, "hp_0")
	assert.Equal(t, fields[2].Kind, ControlKindCheckbox)
	assert.Equal(t, fields[14].Key, "hp_max")
	assert.Equal(t, fields[14].Kind, ControlKindText)

	assert.Equal(t, registry.Field("hp_11").Key, "hp_11")
	assert.Equal(t, registry.Field("missing") == nil, true)
}

func TestRegistryScanMissesLateControls(t *testing.T) {
	surface := NewMemorySurface()
	surface.AddText("name")
	registry := NewFieldRegistry(surface)
	registry.Scan()

	// generated after the scan: silently missed until the next scan
	surface.AddTrack("hp", 12)
	_, ok := registry.ReadAll()["hp_0"]
	assert.Equal(t, ok, false)

	registry.Scan()
	_, ok = registry.ReadAll()["hp_0"]
	assert.Equal(t, ok, true)
}

func TestRegistryReadApplyRoundTrip(t *testing.T) {
	surface := newSheetSurface()
	registry := NewFieldRegistry(surface)
	registry.Scan()

	registry.Field("name").Control.SetValue(TextValue("Aria"))
	registry.Field("hp_1").Control.SetValue(BoolValue(true))
	registry.Field("hp_max").Control.SetValue(TextValue("3"))

	values := registry.ReadAll()
	assert.Equal(t, values["name"], TextValue("Aria"))
	assert.Equal(t, values["hp_0"], BoolValue(false))
	assert.Equal(t, values["hp_1"], BoolValue(true))
	assert.Equal(t, values["hp_max"], TextValue("3"))

	// applyAll(readAll()) is a no-op when no track constraints apply
	registry.ApplyAll(values)
	assert.Equal(t, registry.ReadAll(), values)
}

func TestRegistryPartialApply(t *testing.T) {
	surface := newSheetSurface()
	registry := NewFieldRegistry(surface)
	registry.Scan()

	registry.Field("name").Control.SetValue(TextValue("Aria"))
	registry.Field("hp_1").Control.SetValue(BoolValue(true))

	registry.ApplyAll(map[string]Value{
		"pronouns": TextValue("they/them"),
		"unknown":  TextValue("ignored"),
	})

	// listed keys applied, unlisted keys untouched, unknown keys skipped
	assert.Equal(t, registry.Field("pronouns").Control.Value(), TextValue("they/them"))
	assert.Equal(t, registry.Field("name").Control.Value(), TextValue("Aria"))
	assert.Equal(t, registry.Field("hp_1").Control.Value(), BoolValue(true))
}

func TestRegistryApplyCoercions(t *testing.T) {
	surface := newSheetSurface()
	registry := NewFieldRegistry(surface)
	registry.Scan()

	registry.Field("name").Control.SetValue(TextValue("Aria"))

	// a missing value coerces to empty text, a text value to checkbox truthiness
	registry.ApplyAll(map[string]Value{
		"name": {},
		"hp_0": TextValue("true"),
		"hp_1": TextValue(""),
	})
	assert.Equal(t, registry.Field("name").Control.Value(), TextValue(""))
	assert.Equal(t, registry.Field("hp_0").Control.Value(), BoolValue(true))
	assert.Equal(t, registry.Field("hp_1").Control.Value(), BoolValue(false))
}
