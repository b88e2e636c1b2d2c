package sheetsync

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func newTestServer(t *testing.T) (string, *MemoryStore) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := NewMemoryStore()
	server := NewSyncServerWithDefaults(ctx, store)
	t.Cleanup(server.Close)

	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)

	return "ws" + strings.TrimPrefix(ts.URL, "http"), store
}

func TestRemoteStoreGetSet(t *testing.T) {
	ctx := context.Background()
	url, _ := newTestServer(t)

	remote, err := DialRemoteStoreWithDefaults(ctx, url)
	assert.Equal(t, err, nil)
	defer remote.Close()

	snapshot, err := remote.Get(ctx, "characters/alice/pages/core")
	assert.Equal(t, err, nil)
	assert.Equal(t, snapshot.Exists, false)

	err = remote.Set(ctx, "characters/alice/pages/core", &Document{
		Fields: map[string]Value{
			"name": TextValue("Aria"),
			"hp_0": BoolValue(true),
		},
		UpdatedAt: 1000,
	}, true)
	assert.Equal(t, err, nil)

	snapshot, err = remote.Get(ctx, "characters/alice/pages/core")
	assert.Equal(t, err, nil)
	assert.Equal(t, snapshot.Exists, true)
	assert.Equal(t, snapshot.UpdatedAt, int64(1000))
	assert.Equal(t, snapshot.Fields["name"], TextValue("Aria"))
	assert.Equal(t, snapshot.Fields["hp_0"], BoolValue(true))
}

func TestRemoteStoreSubscribe(t *testing.T) {
	ctx := context.Background()
	url, _ := newTestServer(t)

	// writer and watcher on separate connections
	writer, err := DialRemoteStoreWithDefaults(ctx, url)
	assert.Equal(t, err, nil)
	defer writer.Close()
	watcher, err := DialRemoteStoreWithDefaults(ctx, url)
	assert.Equal(t, err, nil)
	defer watcher.Close()

	snapshots := make(chan *Snapshot, 16)
	unsubscribe := watcher.Subscribe(
		"characters/alice/pages/core",
		func(snapshot *Snapshot) {
			snapshots <- snapshot
		},
		nil,
	)
	defer unsubscribe()

	select {
	case initial := <-snapshots:
		assert.Equal(t, initial.Exists, false)
	case <-time.After(2 * time.Second):
		t.Fatal("missing initial snapshot")
	}

	for i := 1; i <= 3; i += 1 {
		err := writer.Set(ctx, "characters/alice/pages/core", &Document{
			Fields:    map[string]Value{"name": TextValue("Aria")},
			UpdatedAt: int64(i),
		}, true)
		assert.Equal(t, err, nil)
	}

	// write order carries through the server's per-connection sender
	for i := 1; i <= 3; i += 1 {
		select {
		case snapshot := <-snapshots:
			assert.Equal(t, snapshot.Exists, true)
			assert.Equal(t, snapshot.UpdatedAt, int64(i))
			assert.Equal(t, snapshot.Fields["name"], TextValue("Aria"))
		case <-time.After(2 * time.Second):
			t.Fatal("missing snapshot")
		}
	}
}

func TestRemoteStoreSecondSubscriberReplay(t *testing.T) {
	ctx := context.Background()
	url, _ := newTestServer(t)

	remote, err := DialRemoteStoreWithDefaults(ctx, url)
	assert.Equal(t, err, nil)
	defer remote.Close()

	err = remote.Set(ctx, "layouts/core", &Document{
		Fields:    map[string]Value{"name": TextValue("Aria")},
		UpdatedAt: 1,
	}, true)
	assert.Equal(t, err, nil)

	first := make(chan *Snapshot, 16)
	unsubscribe1 := remote.Subscribe(
		"layouts/core",
		func(snapshot *Snapshot) {
			first <- snapshot
		},
		nil,
	)
	defer unsubscribe1()
	select {
	case snapshot := <-first:
		assert.Equal(t, snapshot.Exists, true)
	case <-time.After(2 * time.Second):
		t.Fatal("missing initial snapshot")
	}

	// the server sends the initial snapshot once per path; a later
	// subscriber on the same connection replays the last delivered one
	second := make(chan *Snapshot, 16)
	unsubscribe2 := remote.Subscribe(
		"layouts/core",
		func(snapshot *Snapshot) {
			second <- snapshot
		},
		nil,
	)
	defer unsubscribe2()
	select {
	case snapshot := <-second:
		assert.Equal(t, snapshot.Exists, true)
		assert.Equal(t, snapshot.Fields["name"], TextValue("Aria"))
	case <-time.After(2 * time.Second):
		t.Fatal("missing replayed snapshot")
	}
}

func TestRemoteStoreResubscribe(t *testing.T) {
	ctx := context.Background()
	url, _ := newTestServer(t)

	remote, err := DialRemoteStoreWithDefaults(ctx, url)
	assert.Equal(t, err, nil)
	defer remote.Close()

	err = remote.Set(ctx, "layouts/core", &Document{
		Fields:    map[string]Value{"name": TextValue("Aria")},
		UpdatedAt: 1,
	}, true)
	assert.Equal(t, err, nil)

	first := make(chan *Snapshot, 16)
	unsubscribe := remote.Subscribe(
		"layouts/core",
		func(snapshot *Snapshot) {
			first <- snapshot
		},
		nil,
	)
	select {
	case snapshot := <-first:
		assert.Equal(t, snapshot.Exists, true)
	case <-time.After(2 * time.Second):
		t.Fatal("missing initial snapshot")
	}
	unsubscribe()

	// subscribing the path again after its last subscriber left must
	// still deliver an initial snapshot
	second := make(chan *Snapshot, 16)
	unsubscribe2 := remote.Subscribe(
		"layouts/core",
		func(snapshot *Snapshot) {
			second <- snapshot
		},
		nil,
	)
	defer unsubscribe2()
	select {
	case snapshot := <-second:
		assert.Equal(t, snapshot.Exists, true)
		assert.Equal(t, snapshot.Fields["name"], TextValue("Aria"))
	case <-time.After(2 * time.Second):
		t.Fatal("missing initial snapshot on resubscribe")
	}

	// and live deliveries continue
	err = remote.Set(ctx, "layouts/core", &Document{
		Fields:    map[string]Value{"name": TextValue("Bria")},
		UpdatedAt: 2,
	}, true)
	assert.Equal(t, err, nil)
	select {
	case snapshot := <-second:
		assert.Equal(t, snapshot.Fields["name"], TextValue("Bria"))
	case <-time.After(2 * time.Second):
		t.Fatal("missing live snapshot on resubscribe")
	}
}

func TestRemoteStoreTerminalClose(t *testing.T) {
	ctx := context.Background()
	url, _ := newTestServer(t)

	remote, err := DialRemoteStoreWithDefaults(ctx, url)
	assert.Equal(t, err, nil)

	errs := make(chan error, 16)
	unsubscribe := remote.Subscribe(
		"characters/alice/pages/core",
		func(snapshot *Snapshot) {},
		func(err error) {
			errs <- err
		},
	)
	defer unsubscribe()

	remote.Close()

	// every subscription receives one terminal error, and requests fail
	select {
	case err := <-errs:
		assert.Equal(t, err == nil, false)
	case <-time.After(2 * time.Second):
		t.Fatal("missing terminal error")
	}
	_, err = remote.Get(ctx, "characters/alice/pages/core")
	assert.Equal(t, err == nil, false)
}

func TestSessionsConvergeOverWire(t *testing.T) {
	ctx := context.Background()
	serverUrl, _ := newTestServer(t)
	query := url.Values{"char": []string{"alice"}, "page": []string{"core"}}
	settings := &SessionSettings{
		TrackCatalog: DefaultTrackCatalog(),
		Debounce:     &DebounceSettings{QuietWindow: 50 * time.Millisecond},
	}

	remoteA, err := DialRemoteStoreWithDefaults(ctx, serverUrl)
	assert.Equal(t, err, nil)
	defer remoteA.Close()
	sessionA := NewSession(ctx, newSheetSurface(), remoteA, query, settings)
	defer sessionA.Close()
	err = sessionA.Boot()
	assert.Equal(t, err, nil)
	assert.Equal(t, sessionA.Channel().Status(), ConnectionStatusConnectedNew)

	remoteB, err := DialRemoteStoreWithDefaults(ctx, serverUrl)
	assert.Equal(t, err, nil)
	defer remoteB.Close()
	sessionB := NewSession(ctx, newSheetSurface(), remoteB, query, settings)
	defer sessionB.Close()
	err = sessionB.Boot()
	assert.Equal(t, err, nil)
	assert.Equal(t, sessionB.Channel().Status(), ConnectionStatusConnectedLoaded)

	// a debounced edit on one session reaches the other, and the lowered
	// track max enforces there too
	sessionA.Registry().Field("name").Control.Edit(TextValue("Aria"))
	sessionA.Registry().Field("hp_max").Control.Edit(TextValue("3"))

	waitFor(t, 5*time.Second, func() bool {
		return sessionB.Registry().Field("name").Control.Value().Equal(TextValue("Aria"))
	})
	waitFor(t, 5*time.Second, func() bool {
		return sessionB.Registry().Field("hp_3").Control.Disabled()
	})
	assert.Equal(t, sessionB.Registry().Field("hp_2").Control.Disabled(), false)
	assert.Equal(t, sessionB.Registry().Field("hp_3").Control.Marked(), true)
}
