package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"pet-diary/internal/adapters/storage/memory"
	"pet-diary/internal/ports/docstore"
)

func newTestHub(t *testing.T) (*Hub, *ChangeFeed) {
	t.Helper()
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = bus.Close() })

	hub := NewHub(bus, nil)
	t.Cleanup(hub.Shutdown)

	return hub, NewChangeFeed(memory.NewStore(), bus, nil)
}

func countLoader(store docstore.Store, collection string) Loader {
	return func(ctx context.Context) (any, error) {
		docs, err := store.List(ctx, collection, docstore.Query{})
		if err != nil {
			return nil, err
		}
		return len(docs), nil
	}
}

func nextSnapshot(t *testing.T, s *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-s.Snapshots():
		if !ok {
			t.Fatalf("subscription closed")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for snapshot")
	}
	return Snapshot{}
}

func waitFor(t *testing.T, s *Subscription, want int) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-s.Snapshots():
			if !ok {
				t.Fatalf("subscription closed")
			}
			if snap.Data == want {
				return snap
			}
		case <-deadline:
			t.Fatalf("timeout waiting for data=%d", want)
		}
	}
}

func TestHub_InitialSnapshotAndFanOut(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()
	const topic = "pets/p1/weights"

	if _, err := store.Create(ctx, topic+"/w1", map[string]any{"value": 3.2}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	a, err := hub.Subscribe(ctx, topic, "list", countLoader(store, topic))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer a.Close()

	if snap := nextSnapshot(t, a); snap.Data != 1 {
		t.Fatalf("initial snapshot = %v, want 1", snap.Data)
	}

	// segundo listener del mismo canal recibe el último snapshot sin recargar
	b, err := hub.Subscribe(ctx, topic, "list", countLoader(store, topic))
	if err != nil {
		t.Fatalf("Subscribe b: %v", err)
	}
	defer b.Close()
	if snap := nextSnapshot(t, b); snap.Data != 1 {
		t.Fatalf("late listener snapshot = %v, want 1", snap.Data)
	}

	if ch, ls := hub.Stats(); ch != 1 || ls != 2 {
		t.Fatalf("stats = %d channels / %d listeners, want 1/2", ch, ls)
	}

	if _, err := store.Create(ctx, topic+"/w2", map[string]any{"value": 3.4}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitFor(t, a, 2)
	waitFor(t, b, 2)
}

func TestHub_OtherTopicsDoNotWake(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	s, err := hub.Subscribe(ctx, "pets/p1/tasks", "list", countLoader(store, "pets/p1/tasks"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer s.Close()
	first := nextSnapshot(t, s)

	if _, err := store.Create(ctx, "pets/p2/tasks/t1", map[string]any{"name": "walk"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	select {
	case snap := <-s.Snapshots():
		t.Fatalf("unexpected snapshot v%d after first v%d", snap.Version, first.Version)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_LastListenerTearsDownChannel(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()
	const topic = "pets/p1/entries"

	a, _ := hub.Subscribe(ctx, topic, "page", countLoader(store, topic))
	b, _ := hub.Subscribe(ctx, topic, "page", countLoader(store, topic))

	a.Close()
	if ch, _ := hub.Stats(); ch != 1 {
		t.Fatalf("channel closed while a listener remains")
	}

	b.Close()
	if ch, ls := hub.Stats(); ch != 0 || ls != 0 {
		t.Fatalf("stats after last close = %d/%d, want 0/0", ch, ls)
	}

	// el canal de b se cierra
	for range b.Snapshots() {
	}

	// reabrir funciona con un canal nuevo
	c, err := hub.Subscribe(ctx, topic, "page", countLoader(store, topic))
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	defer c.Close()
	nextSnapshot(t, c)
}

func TestHub_ContextCancelClosesSubscription(t *testing.T) {
	hub, store := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())

	s, err := hub.Subscribe(ctx, "pets/p1/friends", "list", countLoader(store, "pets/p1/friends"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-s.Snapshots():
			if !ok {
				if ch, _ := hub.Stats(); ch != 0 {
					t.Fatalf("channel still open after cancel")
				}
				return
			}
		case <-deadline:
			t.Fatalf("subscription not closed after ctx cancel")
		}
	}
}

func TestHub_ShutdownClosesEverything(t *testing.T) {
	hub, store := newTestHub(t)

	s, _ := hub.Subscribe(context.Background(), "pets/p1/members", "caps:u1", countLoader(store, "pets/p1/members"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return")
	}

	for range s.Snapshots() {
	}
	if _, err := hub.Subscribe(context.Background(), "x", "y", countLoader(store, "x")); err != ErrHubClosed {
		t.Fatalf("expected ErrHubClosed, got %v", err)
	}
	s.Close()
}

func TestDeliver_KeepsOnlyLatest(t *testing.T) {
	ch := make(chan Snapshot, 1)

	if Deliver(ch, Snapshot{Version: 1}) {
		t.Fatalf("first deliver must not replace")
	}
	if !Deliver(ch, Snapshot{Version: 2}) {
		t.Fatalf("second deliver must replace the pending snapshot")
	}
	if got := (<-ch).Version; got != 2 {
		t.Fatalf("got version %d, want 2", got)
	}
}
