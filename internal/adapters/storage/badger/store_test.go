package badger

import (
	"testing"

	"pet-diary/internal/ports/docstore"
	"pet-diary/internal/ports/docstore/storetest"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store {
		db, err := Open("")
		if err != nil {
			t.Fatalf("open in-memory badger: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		return NewStore(db)
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := NewStore(db)
	if _, err := s.Create(t.Context(), "users/u1", map[string]any{"displayName": "Ana"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	d, err := NewStore(db).Get(t.Context(), "users/u1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if d.Fields["displayName"] != "Ana" || d.CreateTime.IsZero() {
		t.Fatalf("unexpected doc after reopen: %+v", d)
	}
}
