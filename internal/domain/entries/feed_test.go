package entries

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"pet-diary/internal/adapters/storage/memory"
	"pet-diary/internal/domain/members"
	"pet-diary/internal/realtime"
)

func newLiveFixture(t *testing.T) (*fixture, *realtime.Hub) {
	t.Helper()
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = bus.Close() })
	hub := realtime.NewHub(bus, nil)
	t.Cleanup(hub.Shutdown)

	return newFixture(t, realtime.NewChangeFeed(memory.NewStore(), bus, nil)), hub
}

// nextView espera hasta que cond se cumpla o vence el timeout.
func nextView(t *testing.T, feed *Feed, cond func(View) bool) View {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-feed.Snapshots():
			if !ok {
				t.Fatalf("feed closed")
			}
			if snap.Err != nil {
				t.Fatalf("unexpected error snapshot: %v", snap.Err)
			}
			if v := snap.Data.(View); cond(v) {
				return v
			}
		case <-deadline:
			t.Fatalf("timeout waiting for view")
		}
	}
}

func uniqueIDs(t *testing.T, v View) {
	t.Helper()
	seen := map[string]bool{}
	for _, e := range v.Items {
		if seen[e.ID] {
			t.Fatalf("duplicated entry %s in view", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestFeed_LoadMoreAppendsAndLivePageWins(t *testing.T) {
	f, hub := newLiveFixture(t)
	ctx := context.Background()
	seed(t, f.svc, 25)

	feed, err := f.svc.Feed(ctx, hub, petID, "A", nil)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	defer feed.Close()

	v := nextView(t, feed, func(v View) bool { return len(v.Items) == PageSize })
	if !v.HasMore {
		t.Fatalf("first page must report more")
	}
	top := v.Items[0]

	if err := feed.Command(ctx, realtime.MessageTypeLoadMore); err != nil {
		t.Fatalf("load_more: %v", err)
	}
	v = nextView(t, feed, func(v View) bool { return len(v.Items) == 25 })
	if v.HasMore {
		t.Fatalf("all entries loaded, hasMore must be false")
	}
	uniqueIDs(t, v)

	// sin más páginas load_more no hace nada
	if err := feed.LoadMore(ctx); err != nil {
		t.Fatalf("extra load_more: %v", err)
	}

	title := "editado"
	if _, err := f.svc.Update(ctx, petID, top.ID, "A", UpdateInput{Title: &title}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	v = nextView(t, feed, func(v View) bool { return v.Items[0].Title == "editado" })
	if len(v.Items) != 25 {
		t.Fatalf("live update must keep loaded pages, have %d", len(v.Items))
	}
	uniqueIDs(t, v)

	if err := feed.Command(ctx, "rewind"); err == nil {
		t.Fatalf("unknown command must fail")
	}
}

func TestFeed_ClosesWhenAccessRevoked(t *testing.T) {
	f, hub := newLiveFixture(t)
	ctx := context.Background()
	m := f.addMember(t, "V", members.RoleViewer)
	seed(t, f.svc, 1)

	feed, err := f.svc.Feed(ctx, hub, petID, "V", nil)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	defer feed.Close()
	nextView(t, feed, func(v View) bool { return len(v.Items) == 1 })

	if err := f.members.Remove(ctx, petID, m.ID, "A"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	seed(t, f.svc, 1)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-feed.Snapshots():
			if !ok {
				return
			}
			if snap.Err != nil && !errors.Is(snap.Err, ErrForbidden) {
				t.Fatalf("unexpected error: %v", snap.Err)
			}
		case <-deadline:
			t.Fatalf("feed must close after access is revoked")
		}
	}
}

func TestService_Feed_RequiresMembership(t *testing.T) {
	f, hub := newLiveFixture(t)
	if _, err := f.svc.Feed(context.Background(), hub, petID, "Z", nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v", err)
	}
}
