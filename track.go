package sheetsync

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// TrackCatalog maps a track base key to the absolute maximum number of
// sub-fields printed on the sheet. Fixed per deployment.
type TrackCatalog map[string]int

func DefaultTrackCatalog() TrackCatalog {
	return TrackCatalog{
		"armor":       12,
		"hp":          12,
		"stress":      12,
		"hope":        10,
		"gold_hand":   9,
		"gold_bag":    9,
		"proficiency": 6,
	}
}

func trackSubFieldKey(base string, i int) string {
	return fmt.Sprintf("%s_%d", base, i)
}

// TrackEngine derives the effective maximum of each track from the
// "{base}_max" field and disables and clears the sub-fields beyond it.
// The effective maximum is player-controlled and can change from any
// client, so enforcement re-derives on every applied snapshot.
type TrackEngine struct {
	registry *FieldRegistry
	catalog  TrackCatalog
}

func NewTrackEngine(registry *FieldRegistry, catalog TrackCatalog) *TrackEngine {
	return &TrackEngine{
		registry: registry,
		catalog:  catalog,
	}
}

func (self *TrackEngine) Catalog() TrackCatalog {
	return self.catalog
}

// CurrentMax reads "{base}_max" out of the fields mapping.
// Missing, negative or non-numeric values open the track fully;
// values above the absolute maximum clamp down to it.
func (self *TrackEngine) CurrentMax(base string, fields map[string]Value) int {
	absoluteMax, ok := self.catalog[base]
	if !ok {
		return 0
	}
	value, ok := fields[base+"_max"]
	if !ok {
		return absoluteMax
	}
	m, ok := value.Int()
	if !ok || m < 0 {
		return absoluteMax
	}
	return min(m, absoluteMax)
}

// Enforce is idempotent: identical input yields identical final control
// state. Sub-fields with no control binding are skipped.
func (self *TrackEngine) Enforce(fields map[string]Value) {
	bases := maps.Keys(self.catalog)
	slices.Sort(bases)
	for _, base := range bases {
		absoluteMax := self.catalog[base]
		currentMax := self.CurrentMax(base, fields)
		for i := 0; i < absoluteMax; i += 1 {
			field := self.registry.Field(trackSubFieldKey(base, i))
			if field == nil {
				continue
			}
			if i < currentMax {
				field.Control.SetDisabled(false)
				field.Control.SetMarked(false)
			} else {
				switch field.Kind {
				case ControlKindCheckbox:
					field.Control.SetValue(BoolValue(false))
				default:
					field.Control.SetValue(TextValue(""))
				}
				field.Control.SetDisabled(true)
				field.Control.SetMarked(true)
			}
		}
	}
}
