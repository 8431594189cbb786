package entries

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pet-diary/internal/ports/docstore"
	"pet-diary/internal/realtime"
)

// livePageView es la vista compartida del hub: la primera página, sin datos del usuario.
const livePageView = "page1"

// View es lo que ve un cliente del Feed: la página viva más las que pidió con load_more.
type View struct {
	Items   []Entry
	HasMore bool
}

// Feed implementa realtime.Source y realtime.Commander. Solo la primera página
// está suscrita; las siguientes son lecturas únicas que se agregan detrás,
// deduplicadas por id con prioridad de la copia viva.
type Feed struct {
	svc    *Service
	petID  string
	userID string
	render func(View) any

	sub *realtime.Subscription
	out chan realtime.Snapshot

	loadMu sync.Mutex // serializa LoadMore

	mu      sync.Mutex
	live    *Page
	more    []Entry
	next    *docstore.Cursor
	hasMore bool
	version uint64
	closed  bool
}

// Feed abre el stream de entradas para userID. render convierte la vista al
// payload que viaja por WebSocket; nil deja View tal cual.
func (s *Service) Feed(ctx context.Context, hub *realtime.Hub, petID, userID string, render func(View) any) (*Feed, error) {
	if err := s.access(ctx, petID, userID, false); err != nil {
		return nil, err
	}
	if render == nil {
		render = func(v View) any { return v }
	}

	sub, err := hub.Subscribe(ctx, Collection(petID), livePageView, func(ctx context.Context) (any, error) {
		return s.repo.Page(ctx, petID, PageSize, nil)
	})
	if err != nil {
		return nil, err
	}

	f := &Feed{
		svc:    s,
		petID:  petID,
		userID: userID,
		render: render,
		sub:    sub,
		out:    make(chan realtime.Snapshot, 1),
	}
	go f.run(ctx)
	return f, nil
}

func (f *Feed) Snapshots() <-chan realtime.Snapshot { return f.out }

func (f *Feed) Close() { f.sub.Close() }

func (f *Feed) Command(ctx context.Context, cmd string) error {
	if cmd != realtime.MessageTypeLoadMore {
		return fmt.Errorf("entries: unknown command %q", cmd)
	}
	return f.LoadMore(ctx)
}

func (f *Feed) run(ctx context.Context) {
	defer func() {
		f.mu.Lock()
		f.closed = true
		close(f.out)
		f.mu.Unlock()
	}()

	for snap := range f.sub.Snapshots() {
		if snap.Err != nil {
			f.emitErr(snap.Err)
			continue
		}
		page, ok := snap.Data.(Page)
		if !ok {
			continue
		}

		// el rol puede cambiar mientras el stream sigue abierto
		if err := f.svc.access(ctx, f.petID, f.userID, false); err != nil {
			f.emitErr(err)
			if errors.Is(err, ErrForbidden) {
				f.sub.Close()
			}
			continue
		}

		f.mu.Lock()
		f.live = &page
		if len(f.more) == 0 {
			f.hasMore = page.HasMore
		}
		f.emitLocked()
		f.mu.Unlock()
	}
}

// LoadMore trae la página siguiente a la última cargada. Sin más páginas no hace nada.
func (f *Feed) LoadMore(ctx context.Context) error {
	f.loadMu.Lock()
	defer f.loadMu.Unlock()

	if err := f.svc.access(ctx, f.petID, f.userID, false); err != nil {
		return err
	}

	f.mu.Lock()
	if f.live == nil || !f.hasMore || f.closed {
		f.mu.Unlock()
		return nil
	}
	after := f.next
	if after == nil {
		after = f.live.Next
	}
	f.mu.Unlock()

	p, err := f.svc.repo.Page(ctx, f.petID, PageSize, after)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	seen := make(map[string]struct{}, len(f.more))
	for _, e := range f.more {
		seen[e.ID] = struct{}{}
	}
	for _, e := range p.Items {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		f.more = append(f.more, e)
	}
	if p.Next != nil {
		f.next = p.Next
	}
	f.hasMore = p.HasMore
	f.emitLocked()
	return nil
}

// View arma la vista actual: primero la página viva y detrás lo cargado aparte.
func (f *Feed) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

func (f *Feed) viewLocked() View {
	v := View{HasMore: f.hasMore}
	if f.live == nil {
		return v
	}
	v.Items = make([]Entry, 0, len(f.live.Items)+len(f.more))
	seen := make(map[string]struct{}, len(f.live.Items))
	for _, e := range f.live.Items {
		seen[e.ID] = struct{}{}
		v.Items = append(v.Items, e)
	}
	for _, e := range f.more {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		v.Items = append(v.Items, e)
	}
	return v
}

func (f *Feed) emitLocked() {
	if f.closed {
		return
	}
	f.version++
	realtime.Deliver(f.out, realtime.Snapshot{
		Topic:   Collection(f.petID),
		View:    livePageView,
		Version: f.version,
		Data:    f.render(f.viewLocked()),
	})
}

func (f *Feed) emitErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.version++
	realtime.Deliver(f.out, realtime.Snapshot{Topic: Collection(f.petID), View: livePageView, Version: f.version, Err: err})
}
