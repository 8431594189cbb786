// Package storetest contiene la suite de comportamiento que todo docstore.Store debe cumplir.
package storetest

import (
	"context"
	"errors"
	"testing"

	"pet-diary/internal/ports/docstore"
)

// Run ejecuta la suite contra el store que devuelve factory (uno nuevo por subtest).
func Run(t *testing.T, factory func(t *testing.T) docstore.Store) {
	t.Helper()

	t.Run("CreateGetUpdateDelete", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		d, err := s.Create(ctx, "pets/p1", map[string]any{"name": "Milo", "species": "dog"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if d.ID != "p1" || d.Parent != "pets" || d.CreateTime.IsZero() {
			t.Fatalf("unexpected doc: %+v", d)
		}

		if _, err := s.Create(ctx, "pets/p1", map[string]any{}); !errors.Is(err, docstore.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}

		u, err := s.Update(ctx, "pets/p1", map[string]any{"name": "Milo II"})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if u.Fields["name"] != "Milo II" || u.Fields["species"] != "dog" {
			t.Fatalf("update must merge fields, got %#v", u.Fields)
		}
		if !u.CreateTime.Equal(d.CreateTime) {
			t.Fatalf("update must keep createTime")
		}

		if err := s.Delete(ctx, "pets/p1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Get(ctx, "pets/p1"); !errors.Is(err, docstore.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		// delete idempotente
		if err := s.Delete(ctx, "pets/p1"); err != nil {
			t.Fatalf("second Delete: %v", err)
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := factory(t)
		if _, err := s.Update(context.Background(), "pets/nope", map[string]any{"x": 1}); !errors.Is(err, docstore.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListScopedToCollection", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		mustCreate(t, s, "pets/p1/weights/w1", map[string]any{"date": "2026-01-01"})
		mustCreate(t, s, "pets/p1/weights/w2", map[string]any{"date": "2026-01-03"})
		mustCreate(t, s, "pets/p2/weights/w3", map[string]any{"date": "2026-01-02"})

		got, err := s.List(ctx, "pets/p1/weights", docstore.Query{
			OrderBy: []docstore.Order{{Field: "date", Desc: true}},
		})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 || got[0].ID != "w2" || got[1].ID != "w1" {
			t.Fatalf("unexpected list: %+v", got)
		}
	})

	t.Run("ListGroup", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		mustCreate(t, s, "pets/p1/members/m1", map[string]any{"inviteEmail": "a@x.com", "status": "pending"})
		mustCreate(t, s, "pets/p2/members/m2", map[string]any{"inviteEmail": "a@x.com", "status": "pending"})
		mustCreate(t, s, "pets/p2/members/m3", map[string]any{"inviteEmail": "b@x.com", "status": "pending"})
		mustCreate(t, s, "pets/p2/friends/f1", map[string]any{"inviteEmail": "a@x.com"})

		got, err := s.ListGroup(ctx, "members", docstore.Query{
			Where: []docstore.Filter{{Field: "inviteEmail", Value: "a@x.com"}},
		})
		if err != nil {
			t.Fatalf("ListGroup: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 members across pets, got %d", len(got))
		}
	})

	t.Run("CommitIsAtomic", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		mustCreate(t, s, "pets/p1/members/a", map[string]any{"role": "owner"})
		mustCreate(t, s, "pets/p1/members/b", map[string]any{"role": "editor"})

		// segunda op falla (no existe) => la primera no debe aplicarse
		bad := docstore.NewBatch().
			Update("pets/p1/members/b", map[string]any{"role": "owner"}).
			Update("pets/p1/members/missing", map[string]any{"role": "editor"})
		if err := s.Commit(ctx, bad); !errors.Is(err, docstore.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		b, _ := s.Get(ctx, "pets/p1/members/b")
		if b.Fields["role"] != "editor" {
			t.Fatalf("failed batch leaked a write: %#v", b.Fields)
		}

		ok := docstore.NewBatch().
			Update("pets/p1/members/b", map[string]any{"role": "owner"}).
			Update("pets/p1/members/a", map[string]any{"role": "editor"}).
			Create("pets/p1/entries/e1", map[string]any{"title": "x"})
		if err := s.Commit(ctx, ok); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		a, _ := s.Get(ctx, "pets/p1/members/a")
		b, _ = s.Get(ctx, "pets/p1/members/b")
		if a.Fields["role"] != "editor" || b.Fields["role"] != "owner" {
			t.Fatalf("batch not applied: a=%v b=%v", a.Fields, b.Fields)
		}
		if _, err := s.Get(ctx, "pets/p1/entries/e1"); err != nil {
			t.Fatalf("batch create missing: %v", err)
		}
	})

	t.Run("InvalidPath", func(t *testing.T) {
		s := factory(t)
		if _, err := s.Get(context.Background(), "pets"); !errors.Is(err, docstore.ErrInvalidPath) {
			t.Fatalf("expected ErrInvalidPath, got %v", err)
		}
	})
}

func mustCreate(t *testing.T, s docstore.Store, path string, fields map[string]any) {
	t.Helper()
	if _, err := s.Create(context.Background(), path, fields); err != nil {
		t.Fatalf("Create %s: %v", path, err)
	}
}
