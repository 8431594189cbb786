package members

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"pet-diary/internal/adapters/storage/memory"
	"pet-diary/internal/platform/metrics"
	"pet-diary/internal/ports/docstore"
)

// -------------------------
// Test store: cuenta escrituras
// -------------------------

type countingStore struct {
	docstore.Store
	writes atomic.Int64
}

func (c *countingStore) Create(ctx context.Context, path string, f map[string]any) (docstore.Document, error) {
	c.writes.Add(1)
	return c.Store.Create(ctx, path, f)
}

func (c *countingStore) Set(ctx context.Context, path string, f map[string]any) (docstore.Document, error) {
	c.writes.Add(1)
	return c.Store.Set(ctx, path, f)
}

func (c *countingStore) Update(ctx context.Context, path string, f map[string]any) (docstore.Document, error) {
	c.writes.Add(1)
	return c.Store.Update(ctx, path, f)
}

func (c *countingStore) Delete(ctx context.Context, path string) error {
	c.writes.Add(1)
	return c.Store.Delete(ctx, path)
}

func (c *countingStore) Commit(ctx context.Context, b *docstore.Batch) error {
	c.writes.Add(1)
	return c.Store.Commit(ctx, b)
}

type fixture struct {
	store *countingStore
	repo  *DocRepository
	svc   *Service
	owner Member
}

const petID = "p1"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := &countingStore{Store: memory.NewStore()}
	repo := NewRepository(store)
	svc := NewService(repo)
	now := time.Date(2025, 12, 22, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	if _, err := store.Create(ctx, docstore.Join("pets", petID), map[string]any{"name": "Milo", "ownerId": "A"}); err != nil {
		t.Fatalf("seed pet: %v", err)
	}
	owner := NewOwner(petID, "A", "a@example.com", now)
	if err := repo.Create(ctx, owner); err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	return &fixture{store: store, repo: repo, svc: svc, owner: owner}
}

// addActive invita y acepta a userID con el rol dado.
func (f *fixture) addActive(t *testing.T, userID, email string, role Role) Member {
	t.Helper()
	ctx := context.Background()
	m, err := f.svc.Invite(ctx, InviteInput{PetID: petID, CallerID: "A", Email: email, Role: role})
	if err != nil {
		t.Fatalf("Invite %s: %v", email, err)
	}
	m, err = f.svc.Accept(ctx, petID, m.ID, userID, email)
	if err != nil {
		t.Fatalf("Accept %s: %v", email, err)
	}
	return m
}

func (f *fixture) assertOwnerExists(t *testing.T) {
	t.Helper()
	all, err := f.repo.ListByPet(context.Background(), petID)
	if err != nil {
		t.Fatalf("ListByPet: %v", err)
	}
	if activeOwners(all) < 1 {
		t.Fatalf("pet left without an active owner: %+v", all)
	}
}

// petOwnerID lee pets/{id}.ownerId tal como lo ve GET /pets.
func (f *fixture) petOwnerID(t *testing.T) any {
	t.Helper()
	pet, err := f.store.Get(context.Background(), docstore.Join("pets", petID))
	if err != nil {
		t.Fatalf("get pet: %v", err)
	}
	return pet.Fields["ownerId"]
}

// slowRepo demora ListByPet para que dos requests lean la lista antes de escribir.
type slowRepo struct {
	Repository
	delay time.Duration
}

func (r *slowRepo) ListByPet(ctx context.Context, petID string) ([]Member, error) {
	items, err := r.Repository.ListByPet(ctx, petID)
	time.Sleep(r.delay)
	return items, err
}

// -------------------------
// Tests
// -------------------------

func TestCapabilitiesFor(t *testing.T) {
	cases := []struct {
		role       Role
		edit, mngr bool
		view       bool
	}{
		{RoleOwner, true, true, true},
		{RoleEditor, true, false, true},
		{RoleViewer, false, false, true},
		{"", false, false, false},
		{"admin", false, false, false},
	}
	for _, tc := range cases {
		c := CapabilitiesFor(tc.role)
		if c.CanEdit != tc.edit || c.CanManageMembers != tc.mngr || c.CanView != tc.view {
			t.Errorf("CapabilitiesFor(%q) = %+v", tc.role, c)
		}
	}
}

func TestCapabilitiesFromSnapshot_OnlyActiveCounts(t *testing.T) {
	list := []Member{
		{ID: "m1", UserID: "A", Role: RoleOwner, Status: StatusActive},
		{ID: "m2", Email: "b@x.com", Role: RoleEditor, Status: StatusPending},
	}
	if !CapabilitiesFromSnapshot(list, "A").CanManageMembers {
		t.Fatalf("owner must manage members")
	}
	if CapabilitiesFromSnapshot(list, "B").CanView {
		t.Fatalf("pending member must not have capabilities")
	}
	if CapabilitiesFromSnapshot(list, "").CanView {
		t.Fatalf("anonymous must not have capabilities")
	}
}

func TestService_Invite_RejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Invite(ctx, InviteInput{PetID: petID, CallerID: "A", Email: "B@Example.com", Role: RoleEditor}); err != nil {
		t.Fatalf("Invite: %v", err)
	}

	before, _ := f.repo.ListByPet(ctx, petID)
	writes := f.store.writes.Load()

	// pending
	if _, err := f.svc.Invite(ctx, InviteInput{PetID: petID, CallerID: "A", Email: "b@example.com", Role: RoleViewer}); !errors.Is(err, ErrAlreadyInvited) {
		t.Fatalf("expected ErrAlreadyInvited, got %v", err)
	}
	// active (el owner)
	if _, err := f.svc.Invite(ctx, InviteInput{PetID: petID, CallerID: "A", Email: "a@example.com", Role: RoleViewer}); !errors.Is(err, ErrAlreadyInvited) {
		t.Fatalf("expected ErrAlreadyInvited for active member, got %v", err)
	}

	after, _ := f.repo.ListByPet(ctx, petID)
	if len(after) != len(before) || f.store.writes.Load() != writes {
		t.Fatalf("rejected invite must not write: before=%d after=%d", len(before), len(after))
	}
}

func TestService_Invite_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addActive(t, "B", "b@example.com", RoleEditor)

	if _, err := f.svc.Invite(ctx, InviteInput{PetID: petID, CallerID: "A", Email: "c@example.com", Role: RoleOwner}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("owner role invite must fail, got %v", err)
	}
	if _, err := f.svc.Invite(ctx, InviteInput{PetID: petID, CallerID: "A", Email: "not-an-email", Role: RoleViewer}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad email must fail, got %v", err)
	}
	if _, err := f.svc.Invite(ctx, InviteInput{PetID: petID, CallerID: "B", Email: "c@example.com", Role: RoleViewer}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("editor cannot invite, got %v", err)
	}
	if _, err := f.svc.Invite(ctx, InviteInput{PetID: petID, CallerID: "Z", Email: "c@example.com", Role: RoleViewer}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger cannot invite, got %v", err)
	}
}

func TestService_Invite_ReusesDeclined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.Invite(ctx, InviteInput{PetID: petID, CallerID: "A", Email: "c@example.com", Role: RoleViewer})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if _, err := f.svc.Decline(ctx, petID, m.ID, "c@example.com"); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	// declinar dos veces no falla
	if d, err := f.svc.Decline(ctx, petID, m.ID, "c@example.com"); err != nil || d.Status != StatusDeclined {
		t.Fatalf("second Decline: %+v %v", d, err)
	}

	again, err := f.svc.Invite(ctx, InviteInput{PetID: petID, CallerID: "A", Email: "c@example.com", Role: RoleEditor})
	if err != nil {
		t.Fatalf("re-invite: %v", err)
	}
	if again.ID != m.ID || again.Status != StatusPending || again.Role != RoleEditor {
		t.Fatalf("expected reused pending doc, got %+v", again)
	}
}

func TestService_Accept_BindsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.Invite(ctx, InviteInput{PetID: petID, CallerID: "A", Email: "b@example.com", Role: RoleEditor})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if m.UserID != "" {
		t.Fatalf("pending member must not have userId")
	}

	if _, err := f.svc.Accept(ctx, petID, m.ID, "X", "x@example.com"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("accept with other email must be forbidden, got %v", err)
	}

	got, err := f.svc.Accept(ctx, petID, m.ID, "B", "B@example.com")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if got.Status != StatusActive || got.UserID != "B" || got.AcceptedAt == nil {
		t.Fatalf("unexpected accepted member: %+v", got)
	}

	// Idempotente para el mismo usuario
	writes := f.store.writes.Load()
	again, err := f.svc.Accept(ctx, petID, m.ID, "B", "b@example.com")
	if err != nil || again.UserID != "B" {
		t.Fatalf("replay accept: %+v %v", again, err)
	}
	if f.store.writes.Load() != writes {
		t.Fatalf("replayed accept must not write")
	}

	// Otra identidad no puede re-vincular
	if _, err := f.svc.Accept(ctx, petID, m.ID, "C", "b@example.com"); !errors.Is(err, ErrBadState) {
		t.Fatalf("expected ErrBadState, got %v", err)
	}
	stored, _ := f.repo.Get(ctx, petID, m.ID)
	if stored.UserID != "B" {
		t.Fatalf("identity binding changed: %+v", stored)
	}

	if _, err := f.svc.Decline(ctx, petID, m.ID, "b@example.com"); !errors.Is(err, ErrBadState) {
		t.Fatalf("decline after accept must fail, got %v", err)
	}
}

func TestService_UpdateRole_SoleOwnerCannotDemote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addActive(t, "B", "b@example.com", RoleEditor)

	writes := f.store.writes.Load()
	if _, err := f.svc.UpdateRole(ctx, petID, f.owner.ID, "A", RoleEditor); !errors.Is(err, ErrLastOwner) {
		t.Fatalf("expected ErrLastOwner, got %v", err)
	}
	if f.store.writes.Load() != writes {
		t.Fatalf("rejected demotion must not write")
	}
	f.assertOwnerExists(t)
}

func TestService_UpdateRole_WithSecondOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.addActive(t, "B", "b@example.com", RoleEditor)

	if _, err := f.svc.UpdateRole(ctx, petID, b.ID, "B", RoleOwner); !errors.Is(err, ErrForbidden) {
		t.Fatalf("editor cannot change roles, got %v", err)
	}
	if _, err := f.svc.UpdateRole(ctx, petID, b.ID, "A", RoleOwner); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if _, err := f.svc.UpdateRole(ctx, petID, f.owner.ID, "A", RoleViewer); err != nil {
		t.Fatalf("demote with another owner must succeed: %v", err)
	}
	f.assertOwnerExists(t)

	if _, err := f.svc.UpdateRole(ctx, petID, b.ID, "B", "boss"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown role must fail, got %v", err)
	}
}

func TestService_Remove_OwnerProtected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.addActive(t, "B", "b@example.com", RoleEditor)
	c := f.addActive(t, "C", "c@example.com", RoleViewer)
	// con dos owners el owner igual sigue protegido
	if _, err := f.svc.UpdateRole(ctx, petID, c.ID, "A", RoleOwner); err != nil {
		t.Fatalf("promote C: %v", err)
	}

	before := testutil.ToFloat64(metrics.MembershipOperations.WithLabelValues("remove", "owner_protected"))
	writes := f.store.writes.Load()

	if err := f.svc.Remove(ctx, petID, f.owner.ID, "A"); !errors.Is(err, ErrOwnerProtected) {
		t.Fatalf("expected ErrOwnerProtected, got %v", err)
	}
	if f.store.writes.Load() != writes {
		t.Fatalf("rejected removal must not write")
	}
	if got := testutil.ToFloat64(metrics.MembershipOperations.WithLabelValues("remove", "owner_protected")); got != before+1 {
		t.Fatalf("metric not recorded: %v -> %v", before, got)
	}

	if err := f.svc.Remove(ctx, petID, b.ID, "A"); err != nil {
		t.Fatalf("Remove editor: %v", err)
	}
	if _, err := f.repo.Get(ctx, petID, b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("removed member must be deleted, got %v", err)
	}
	if _, err := f.svc.Authorize(ctx, petID, "B"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("removed member must lose access, got %v", err)
	}
}

func TestService_Leave_SoleOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addActive(t, "B", "b@example.com", RoleViewer)

	if err := f.svc.Leave(ctx, petID, "A"); !errors.Is(err, ErrLastOwner) {
		t.Fatalf("expected ErrLastOwner, got %v", err)
	}
	if err := f.svc.Leave(ctx, petID, "B"); err != nil {
		t.Fatalf("viewer Leave: %v", err)
	}
	if err := f.svc.Leave(ctx, petID, "B"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("second Leave must fail, got %v", err)
	}
	f.assertOwnerExists(t)
}

func TestService_TransferOwnership_Atomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.addActive(t, "B", "b@example.com", RoleEditor)

	pending, err := f.svc.Invite(ctx, InviteInput{PetID: petID, CallerID: "A", Email: "c@example.com", Role: RoleViewer})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if _, err := f.svc.TransferOwnership(ctx, petID, pending.ID, "A"); !errors.Is(err, ErrBadState) {
		t.Fatalf("transfer to pending must fail, got %v", err)
	}
	if _, err := f.svc.TransferOwnership(ctx, petID, f.owner.ID, "A"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("transfer to self must fail, got %v", err)
	}

	// sin el doc de la mascota el batch falla entero y nada cambia
	if err := f.store.Store.Delete(ctx, docstore.Join("pets", petID)); err != nil {
		t.Fatalf("delete pet: %v", err)
	}
	if _, err := f.svc.TransferOwnership(ctx, petID, b.ID, "A"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	stillEditor, _ := f.repo.Get(ctx, petID, b.ID)
	stillOwner, _ := f.repo.Get(ctx, petID, f.owner.ID)
	if stillEditor.Role != RoleEditor || stillOwner.Role != RoleOwner {
		t.Fatalf("failed transfer must not partially apply: %s %s", stillEditor.Role, stillOwner.Role)
	}
}

// A owner, B editor: B no puede quitar a A; A transfiere a B; A se va; queda B owner.
func TestService_MembershipScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.addActive(t, "B", "b@example.com", RoleEditor)

	writes := f.store.writes.Load()
	if err := f.svc.Remove(ctx, petID, f.owner.ID, "B"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("editor removing owner must be rejected, got %v", err)
	}
	if f.store.writes.Load() != writes {
		t.Fatalf("rejected removal must not write")
	}
	f.assertOwnerExists(t)

	to, err := f.svc.TransferOwnership(ctx, petID, b.ID, "A")
	if err != nil {
		t.Fatalf("TransferOwnership: %v", err)
	}
	if to.Role != RoleOwner || to.UserID != "B" {
		t.Fatalf("unexpected new owner: %+v", to)
	}
	a, _ := f.svc.Authorize(ctx, petID, "A")
	if a.Member.Role != RoleEditor || a.Capabilities.CanManageMembers {
		t.Fatalf("previous owner must be editor: %+v", a)
	}
	pet, _ := f.store.Get(ctx, docstore.Join("pets", petID))
	if pet.Fields["ownerId"] != "B" {
		t.Fatalf("pet ownerId not updated: %#v", pet.Fields)
	}
	f.assertOwnerExists(t)

	if err := f.svc.Leave(ctx, petID, "A"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	all, _ := f.repo.ListByPet(ctx, petID)
	if len(all) != 1 || all[0].UserID != "B" || all[0].Role != RoleOwner {
		t.Fatalf("expected only B as owner, got %+v", all)
	}
}

func TestService_Snapshot_RecomputesCapabilities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.addActive(t, "B", "b@example.com", RoleEditor)

	snap, err := f.svc.Snapshot(ctx, petID, "B")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !snap.Capabilities.CanEdit || len(snap.Members) != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if _, err := f.svc.UpdateRole(ctx, petID, b.ID, "A", RoleViewer); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	snap, _ = f.svc.Snapshot(ctx, petID, "B")
	if snap.Capabilities.CanEdit || !snap.Capabilities.CanView {
		t.Fatalf("downgrade not reflected: %+v", snap.Capabilities)
	}

	if err := f.svc.Remove(ctx, petID, b.ID, "A"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	snap, _ = f.svc.Snapshot(ctx, petID, "B")
	if snap.Capabilities.CanView || len(snap.Members) != 0 {
		t.Fatalf("removed member must see nothing: %+v", snap)
	}
}

func TestService_ListMyInvitations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Invite(ctx, InviteInput{PetID: petID, CallerID: "A", Email: "b@example.com", Role: RoleViewer}); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	items, err := f.svc.ListMyInvitations(ctx, "B@example.com")
	if err != nil || len(items) != 1 || items[0].PetID != petID {
		t.Fatalf("unexpected invitations: %+v %v", items, err)
	}

	mine, err := f.svc.ListActiveByUser(ctx, "A")
	if err != nil || len(mine) != 1 || mine[0].Role != RoleOwner {
		t.Fatalf("unexpected memberships: %+v %v", mine, err)
	}
}

func TestClassify(t *testing.T) {
	if Classify(nil) != "ok" || Classify(ErrLastOwner) != "last_owner" || Classify(errors.New("x")) != "error" {
		t.Fatalf("unexpected classification")
	}
}

func TestService_UpdateRole_DemotedOwnerHandsOverPetOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.addActive(t, "B", "b@example.com", RoleEditor)

	if _, err := f.svc.UpdateRole(ctx, petID, b.ID, "A", RoleOwner); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if got := f.petOwnerID(t); got != "A" {
		t.Fatalf("promotion must not move ownerId, got %v", got)
	}

	if _, err := f.svc.UpdateRole(ctx, petID, f.owner.ID, "A", RoleViewer); err != nil {
		t.Fatalf("demote: %v", err)
	}
	if got := f.petOwnerID(t); got != "B" {
		t.Fatalf("ownerId after A stepped down = %v, want B", got)
	}
}

func TestService_Leave_HandsOverPetOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.addActive(t, "B", "b@example.com", RoleEditor)
	if _, err := f.svc.UpdateRole(ctx, petID, b.ID, "A", RoleOwner); err != nil {
		t.Fatalf("promote: %v", err)
	}

	if err := f.svc.Leave(ctx, petID, "A"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if got := f.petOwnerID(t); got != "B" {
		t.Fatalf("ownerId after A left = %v, want B", got)
	}
	f.assertOwnerExists(t)
}

func TestService_Leave_OtherOwnerKeepsPetOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.addActive(t, "B", "b@example.com", RoleEditor)
	if _, err := f.svc.UpdateRole(ctx, petID, b.ID, "A", RoleOwner); err != nil {
		t.Fatalf("promote: %v", err)
	}

	if err := f.svc.Leave(ctx, petID, "B"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if got := f.petOwnerID(t); got != "A" {
		t.Fatalf("ownerId = %v, want A", got)
	}
}

func TestService_Leave_ConcurrentOwnersKeepOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addActive(t, "C", "c@example.com", RoleEditor)
	if _, err := f.svc.UpdateRole(ctx, petID, c.ID, "A", RoleOwner); err != nil {
		t.Fatalf("promote: %v", err)
	}

	svc := NewService(&slowRepo{Repository: f.repo, delay: 20 * time.Millisecond})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, uid := range []string{"A", "C"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = svc.Leave(ctx, petID, uid)
		}()
	}
	wg.Wait()

	var ok, last int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrLastOwner):
			last++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || last != 1 {
		t.Fatalf("expected one leave and one ErrLastOwner, got %v", errs)
	}
	f.assertOwnerExists(t)
}
