package sheetsync

import (
	"fmt"
	"testing"

	"github.com/go-playground/assert/v2"
)

func newTrackFixture(t *testing.T) (*FieldRegistry, *TrackEngine) {
	surface := NewMemorySurface()
	surface.AddText("name")
	surface.AddTrack("hp", 12)
	registry := NewFieldRegistry(surface)
	registry.Scan()
	tracks := NewTrackEngine(registry, TrackCatalog{"hp": 12})
	return registry, tracks
}

func assertTrackState(t *testing.T, registry *FieldRegistry, base string, absoluteMax int, currentMax int) {
	for i := 0; i < absoluteMax; i += 1 {
		field := registry.Field(fmt.Sprintf("%s_%d", base, i))
		if i < currentMax {
			assert.Equal(t, field.Control.Disabled(), false)
			assert.Equal(t, field.Control.Marked(), false)
		} else {
			assert.Equal(t, field.Control.Disabled(), true)
			assert.Equal(t, field.Control.Marked(), true)
			assert.Equal(t, field.Control.Value(), BoolValue(false))
		}
	}
}

func TestTrackEnforce(t *testing.T) {
	registry, tracks := newTrackFixture(t)

	// sub-fields beyond the declared max are cleared, disabled and marked
	registry.Field("hp_1").Control.SetValue(BoolValue(true))
	registry.Field("hp_5").Control.SetValue(BoolValue(true))

	tracks.Enforce(map[string]Value{"hp_max": TextValue("3")})
	assertTrackState(t, registry, "hp", 12, 3)
	// an active sub-field keeps its value
	assert.Equal(t, registry.Field("hp_1").Control.Value(), BoolValue(true))

	// raising the max re-enables and unmarks, but cleared values stay cleared
	tracks.Enforce(map[string]Value{"hp_max": TextValue("8")})
	assertTrackState(t, registry, "hp", 12, 8)
	assert.Equal(t, registry.Field("hp_5").Control.Value(), BoolValue(false))
}

func TestTrackEnforceIdempotent(t *testing.T) {
	registry, tracks := newTrackFixture(t)
	registry.Field("hp_2").Control.SetValue(BoolValue(true))

	fields := map[string]Value{"hp_max": TextValue("4")}
	tracks.Enforce(fields)
	state1 := registry.ReadAll()
	tracks.Enforce(fields)
	assert.Equal(t, registry.ReadAll(), state1)
}

func TestTrackInvalidMax(t *testing.T) {
	// missing, negative or non-numeric opens the track fully
	for _, fields := range []map[string]Value{
		{},
		{"hp_max": TextValue("")},
		{"hp_max": TextValue("abc")},
		{"hp_max": TextValue("-1")},
		{"hp_max": BoolValue(true)},
	} {
		registry, tracks := newTrackFixture(t)
		tracks.Enforce(fields)
		assertTrackState(t, registry, "hp", 12, 12)
	}
}

func TestTrackMaxClamp(t *testing.T) {
	registry, tracks := newTrackFixture(t)
	tracks.Enforce(map[string]Value{"hp_max": TextValue("99")})
	assertTrackState(t, registry, "hp", 12, 12)

	assert.Equal(t, tracks.CurrentMax("hp", map[string]Value{"hp_max": TextValue("99")}), 12)
	assert.Equal(t, tracks.CurrentMax("hp", map[string]Value{"hp_max": TextValue("0")}), 0)
	assert.Equal(t, tracks.CurrentMax("unknown", map[string]Value{}), 0)
}

func TestTrackMissingSubFieldsSkipped(t *testing.T) {
	// the template rendered fewer sub-fields than the absolute max
	surface := NewMemorySurface()
	surface.AddCheckbox("hope_0")
	surface.AddCheckbox("hope_1")
	registry := NewFieldRegistry(surface)
	registry.Scan()

	tracks := NewTrackEngine(registry, TrackCatalog{"hope": 10})
	tracks.Enforce(map[string]Value{"hope_max": TextValue("1")})

	assert.Equal(t, registry.Field("hope_0").Control.Disabled(), false)
	assert.Equal(t, registry.Field("hope_1").Control.Disabled(), true)
}

func TestTrackTextSubFields(t *testing.T) {
	// text sub-fields beyond the max clear to empty
	surface := NewMemorySurface()
	for i := 0; i < 6; i += 1 {
		surface.AddText(fmt.Sprintf("proficiency_%d", i))
	}
	surface.AddText("proficiency_max")
	registry := NewFieldRegistry(surface)
	registry.Scan()

	registry.Field("proficiency_4").Control.SetValue(TextValue("climb"))
	tracks := NewTrackEngine(registry, TrackCatalog{"proficiency": 6})
	tracks.Enforce(map[string]Value{"proficiency_max": TextValue("2")})

	assert.Equal(t, registry.Field("proficiency_4").Control.Value(), TextValue(""))
	assert.Equal(t, registry.Field("proficiency_4").Control.Disabled(), true)
}
