package sheetsync

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestSessionBoot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	query := url.Values{"char": []string{"alice"}}

	session := NewSessionWithDefaults(ctx, newSheetSurface(), store, query)
	defer session.Close()

	err := session.Boot()
	assert.Equal(t, err, nil)
	assert.Equal(t, session.Channel().Status(), ConnectionStatusConnectedNew)
	assert.Equal(t, session.Locator().CharId, "alice")

	// the created document carries every scanned field
	snapshot, err := store.Get(ctx, "characters/alice/pages/core")
	assert.Equal(t, err, nil)
	assert.Equal(t, snapshot.Exists, true)
	_, ok := snapshot.Fields["hp_11"]
	assert.Equal(t, ok, true)
}

func TestSessionBootLoadsSavedLayout(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	query := url.Values{"char": []string{"alice"}}

	session := NewSessionWithDefaults(ctx, newSheetSurface(), store, query)
	err := session.Boot()
	assert.Equal(t, err, nil)
	session.Registry().Field("name").Control.SetStyle("top", "25px")
	err = session.SaveLayout()
	assert.Equal(t, err, nil)
	session.Close()

	// boot of a fresh session applies the saved layout before going live
	session2 := NewSessionWithDefaults(ctx, newSheetSurface(), store, query)
	defer session2.Close()
	err = session2.Boot()
	assert.Equal(t, err, nil)
	assert.Equal(t, session2.Registry().Field("name").Control.Style("top"), "25px")
}

func TestSessionsConvergeInMemory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	query := url.Values{"char": []string{"alice"}}
	settings := &SessionSettings{
		TrackCatalog: DefaultTrackCatalog(),
		Debounce:     &DebounceSettings{QuietWindow: 50 * time.Millisecond},
	}

	sessionA := NewSession(ctx, newSheetSurface(), store, query, settings)
	defer sessionA.Close()
	err := sessionA.Boot()
	assert.Equal(t, err, nil)

	sessionB := NewSession(ctx, newSheetSurface(), store, query, settings)
	defer sessionB.Close()
	err = sessionB.Boot()
	assert.Equal(t, err, nil)
	assert.Equal(t, sessionB.Channel().Status(), ConnectionStatusConnectedLoaded)

	sessionA.Registry().Field("hp_1").Control.Edit(BoolValue(true))
	waitFor(t, 2*time.Second, func() bool {
		return sessionB.Registry().Field("hp_1").Control.Value().Equal(BoolValue(true))
	})

	// lowering the max on one session disables on both
	sessionB.Registry().Field("hp_max").Control.Edit(TextValue("2"))
	waitFor(t, 2*time.Second, func() bool {
		return sessionA.Registry().Field("hp_5").Control.Disabled() &&
			sessionB.Registry().Field("hp_5").Control.Disabled()
	})
	assert.Equal(t, sessionA.Registry().Field("hp_1").Control.Value(), BoolValue(true))
}

func TestSessionBootDegradesToLocal(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore(NewMemoryStore())
	store.failSet.Store(true)

	session := NewSessionWithDefaults(ctx, newSheetSurface(), store, url.Values{})
	defer session.Close()

	err := session.Boot()
	assert.Equal(t, err == nil, false)
	assert.Equal(t, session.Channel().Status(), ConnectionStatusConnectionError)

	// controls stay live for local-only editing
	session.Registry().Field("name").Control.Edit(TextValue("offline"))
	assert.Equal(t, session.Registry().Field("name").Control.Value(), TextValue("offline"))
}
