package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"pet-diary/internal/ports/docstore"
)

// Store es un docstore.Store en memoria (dev y tests).
type Store struct {
	mu     sync.RWMutex
	byPath map[string]docstore.Document
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		byPath: make(map[string]docstore.Document),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ docstore.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, path string) (docstore.Document, error) {
	if _, _, err := docstore.Split(path); err != nil {
		return docstore.Document{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.byPath[path]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return copyDoc(d), nil
}

func (s *Store) Create(ctx context.Context, path string, fields map[string]any) (docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.apply(docstore.Op{Kind: docstore.OpCreate, Path: path, Fields: fields}, s.now())
	if err != nil {
		return docstore.Document{}, err
	}
	return copyDoc(d), nil
}

func (s *Store) Set(ctx context.Context, path string, fields map[string]any) (docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.apply(docstore.Op{Kind: docstore.OpSet, Path: path, Fields: fields}, s.now())
	if err != nil {
		return docstore.Document{}, err
	}
	return copyDoc(d), nil
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) (docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.apply(docstore.Op{Kind: docstore.OpUpdate, Path: path, Fields: fields}, s.now())
	if err != nil {
		return docstore.Document{}, err
	}
	return copyDoc(d), nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.apply(docstore.Op{Kind: docstore.OpDelete, Path: path}, s.now())
	return err
}

func (s *Store) List(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if !docstore.ValidCollection(collection) {
		return nil, docstore.ErrInvalidPath
	}

	s.mu.RLock()
	out := make([]docstore.Document, 0)
	for _, d := range s.byPath {
		if d.Parent == collection {
			out = append(out, copyDoc(d))
		}
	}
	s.mu.RUnlock()

	return docstore.Evaluate(out, q), nil
}

func (s *Store) ListGroup(ctx context.Context, group string, q docstore.Query) ([]docstore.Document, error) {
	group = strings.TrimSpace(group)
	if group == "" || strings.Contains(group, "/") {
		return nil, docstore.ErrInvalidPath
	}

	s.mu.RLock()
	out := make([]docstore.Document, 0)
	for _, d := range s.byPath {
		if docstore.GroupOf(d.Parent) == group {
			out = append(out, copyDoc(d))
		}
	}
	s.mu.RUnlock()

	return docstore.Evaluate(out, q), nil
}

// Commit valida todo el batch sobre una copia y recién después lo publica.
func (s *Store) Commit(ctx context.Context, b *docstore.Batch) error {
	if b.Len() == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := &Store{byPath: make(map[string]docstore.Document, len(s.byPath)), now: s.now}
	for k, v := range s.byPath {
		staged.byPath[k] = v
	}

	now := s.now()
	for _, op := range b.Ops() {
		if _, err := staged.apply(op, now); err != nil {
			return err
		}
	}

	s.byPath = staged.byPath
	return nil
}

// apply asume el lock tomado.
func (s *Store) apply(op docstore.Op, now time.Time) (docstore.Document, error) {
	parent, id, err := docstore.Split(op.Path)
	if err != nil {
		return docstore.Document{}, err
	}

	current, exists := s.byPath[op.Path]

	switch op.Kind {
	case docstore.OpCreate:
		if exists {
			return docstore.Document{}, docstore.ErrAlreadyExists
		}
		d := docstore.Document{
			ID:         id,
			Path:       op.Path,
			Parent:     parent,
			Fields:     docstore.Clone(op.Fields),
			CreateTime: now,
			UpdateTime: now,
		}
		s.byPath[op.Path] = d
		return d, nil

	case docstore.OpSet:
		created := now
		if exists {
			created = current.CreateTime
		}
		d := docstore.Document{
			ID:         id,
			Path:       op.Path,
			Parent:     parent,
			Fields:     docstore.Clone(op.Fields),
			CreateTime: created,
			UpdateTime: now,
		}
		s.byPath[op.Path] = d
		return d, nil

	case docstore.OpUpdate:
		if !exists {
			return docstore.Document{}, docstore.ErrNotFound
		}
		current.Fields = docstore.Merge(current.Fields, op.Fields)
		current.UpdateTime = now
		s.byPath[op.Path] = current
		return current, nil

	case docstore.OpDelete:
		delete(s.byPath, op.Path)
		return docstore.Document{}, nil
	}

	return docstore.Document{}, docstore.ErrInvalidPath
}

// Seed inserta documentos tal cual (incluidos timestamps); solo para tests y fixtures.
func (s *Store) Seed(docs ...docstore.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range docs {
		parent, id, err := docstore.Split(d.Path)
		if err != nil {
			continue
		}
		d.ID = id
		d.Parent = parent
		d.Fields = docstore.Clone(d.Fields)
		s.byPath[d.Path] = d
	}
}

func copyDoc(d docstore.Document) docstore.Document {
	d.Fields = docstore.Clone(d.Fields)
	return d
}
