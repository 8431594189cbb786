package weights

import (
	"context"
	"errors"
	"testing"
	"time"

	"pet-diary/internal/adapters/storage/memory"
	"pet-diary/internal/domain/members"
	"pet-diary/internal/ports/docstore"
)

func TestSort_DateDescThenCreatedDesc(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	items := []Weight{
		{ID: "a", Date: "2025-01-01", CreatedAt: t0},
		{ID: "b", Date: "2025-01-02", CreatedAt: t0},
		{ID: "c", Date: "2025-01-01", CreatedAt: t0.Add(time.Hour)},
		{ID: "d", Date: "2025-01-01"}, // sin createdAt: epoch 0, va al final del día
	}
	Sort(items)

	got := ""
	for _, w := range items {
		got += w.ID
	}
	if got != "bcad" {
		t.Fatalf("order = %s, want bcad", got)
	}
}

func TestWeight_Kilograms(t *testing.T) {
	if kg := (Weight{Value: 4200, Unit: UnitG}).Kilograms(); kg != 4.2 {
		t.Fatalf("got %v", kg)
	}
	if kg := (Weight{Value: 4.2, Unit: UnitKg}).Kilograms(); kg != 4.2 {
		t.Fatalf("got %v", kg)
	}
}

func TestService_CRUD(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	mrepo := members.NewRepository(store)
	if _, err := store.Create(ctx, docstore.Join("pets", "p1"), map[string]any{"name": "Milo"}); err != nil {
		t.Fatalf("seed pet: %v", err)
	}
	if err := mrepo.Create(ctx, members.NewOwner("p1", "A", "a@example.com", time.Now())); err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	svc := NewService(NewRepository(store), members.NewService(mrepo))

	for _, tc := range []struct {
		value float64
		unit  Unit
		date  string
	}{
		{0, UnitKg, "2025-01-01"},
		{-1, UnitKg, "2025-01-01"},
		{3, "lb", "2025-01-01"},
		{3, UnitKg, "mañana"},
	} {
		if _, err := svc.Create(ctx, "p1", "A", tc.value, tc.unit, tc.date); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%+v: got %v", tc, err)
		}
	}

	first, err := svc.Create(ctx, "p1", "A", 4.1, "", "2025-01-01")
	if err != nil || first.Unit != UnitKg {
		t.Fatalf("Create: %+v %v", first, err)
	}
	if _, err := svc.Create(ctx, "p1", "A", 4300, UnitG, "2025-02-01"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	items, err := svc.List(ctx, "p1", "A")
	if err != nil || len(items) != 2 || items[0].Date != "2025-02-01" {
		t.Fatalf("List: %+v %v", items, err)
	}

	v := 4.0
	up, err := svc.Update(ctx, "p1", first.ID, "A", &v, nil, nil)
	if err != nil || up.Value != 4.0 || up.Date != "2025-01-01" {
		t.Fatalf("Update: %+v %v", up, err)
	}
	zero := 0.0
	if _, err := svc.Update(ctx, "p1", first.ID, "A", &zero, nil, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero value: got %v", err)
	}

	if err := svc.Delete(ctx, "p1", first.ID, "A"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.List(ctx, "p1", "Z"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger: got %v", err)
	}
	if _, err := svc.Create(ctx, "", "A", 1, UnitKg, "2025-01-01"); !errors.Is(err, ErrNoPetSelected) {
		t.Fatalf("no pet: got %v", err)
	}
}
