package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"pet-diary/internal/ports/docstore"
)

const docKeyPrefix = "doc:"

// envelope es lo que se persiste por documento.
type envelope struct {
	Fields     map[string]any `json:"f"`
	CreateTime time.Time      `json:"c"`
	UpdateTime time.Time      `json:"u"`
}

// Store implementa docstore.Store sobre Badger; cada operación corre en una transacción.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Open abre (o crea) la base en path. Con path vacío abre en memoria.
func Open(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if strings.TrimSpace(path) == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}
	return db, nil
}

func NewStore(db *badger.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

var _ docstore.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, path string) (docstore.Document, error) {
	if _, _, err := docstore.Split(path); err != nil {
		return docstore.Document{}, err
	}

	var out docstore.Document
	err := s.db.View(func(txn *badger.Txn) error {
		d, err := getDoc(txn, path)
		if err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

func (s *Store) Create(ctx context.Context, path string, fields map[string]any) (docstore.Document, error) {
	return s.write(docstore.Op{Kind: docstore.OpCreate, Path: path, Fields: fields})
}

func (s *Store) Set(ctx context.Context, path string, fields map[string]any) (docstore.Document, error) {
	return s.write(docstore.Op{Kind: docstore.OpSet, Path: path, Fields: fields})
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) (docstore.Document, error) {
	return s.write(docstore.Op{Kind: docstore.OpUpdate, Path: path, Fields: fields})
}

func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.write(docstore.Op{Kind: docstore.OpDelete, Path: path})
	return err
}

func (s *Store) List(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if !docstore.ValidCollection(collection) {
		return nil, docstore.ErrInvalidPath
	}
	docs, err := s.scan(docKeyPrefix+collection+"/", func(d docstore.Document) bool {
		return d.Parent == collection
	})
	if err != nil {
		return nil, err
	}
	return docstore.Evaluate(docs, q), nil
}

func (s *Store) ListGroup(ctx context.Context, group string, q docstore.Query) ([]docstore.Document, error) {
	group = strings.TrimSpace(group)
	if group == "" || strings.Contains(group, "/") {
		return nil, docstore.ErrInvalidPath
	}
	docs, err := s.scan(docKeyPrefix, func(d docstore.Document) bool {
		return docstore.GroupOf(d.Parent) == group
	})
	if err != nil {
		return nil, err
	}
	return docstore.Evaluate(docs, q), nil
}

// Commit corre todo el batch en una sola transacción de Badger.
func (s *Store) Commit(ctx context.Context, b *docstore.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	now := s.now()
	return s.db.Update(func(txn *badger.Txn) error {
		for _, op := range b.Ops() {
			if _, err := applyOp(txn, op, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) write(op docstore.Op) (docstore.Document, error) {
	var out docstore.Document
	now := s.now()
	err := s.db.Update(func(txn *badger.Txn) error {
		d, err := applyOp(txn, op, now)
		if err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

func (s *Store) scan(prefix string, keep func(docstore.Document) bool) ([]docstore.Document, error) {
	out := make([]docstore.Document, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			path := strings.TrimPrefix(string(item.Key()), docKeyPrefix)

			var env envelope
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			}); err != nil {
				return fmt.Errorf("badger: decode %s: %w", path, err)
			}

			d, err := toDocument(path, env)
			if err != nil {
				continue
			}
			if keep(d) {
				out = append(out, d)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func applyOp(txn *badger.Txn, op docstore.Op, now time.Time) (docstore.Document, error) {
	if _, _, err := docstore.Split(op.Path); err != nil {
		return docstore.Document{}, err
	}

	current, err := getDoc(txn, op.Path)
	exists := err == nil
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return docstore.Document{}, err
	}

	var env envelope
	switch op.Kind {
	case docstore.OpCreate:
		if exists {
			return docstore.Document{}, docstore.ErrAlreadyExists
		}
		env = envelope{Fields: docstore.Clone(op.Fields), CreateTime: now, UpdateTime: now}
	case docstore.OpSet:
		created := now
		if exists {
			created = current.CreateTime
		}
		env = envelope{Fields: docstore.Clone(op.Fields), CreateTime: created, UpdateTime: now}
	case docstore.OpUpdate:
		if !exists {
			return docstore.Document{}, docstore.ErrNotFound
		}
		env = envelope{Fields: docstore.Merge(current.Fields, op.Fields), CreateTime: current.CreateTime, UpdateTime: now}
	case docstore.OpDelete:
		if err := txn.Delete([]byte(docKeyPrefix + op.Path)); err != nil {
			return docstore.Document{}, fmt.Errorf("badger: delete %s: %w", op.Path, err)
		}
		return docstore.Document{}, nil
	default:
		return docstore.Document{}, docstore.ErrInvalidPath
	}

	val, err := json.Marshal(env)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("badger: encode %s: %w", op.Path, err)
	}
	if err := txn.Set([]byte(docKeyPrefix+op.Path), val); err != nil {
		return docstore.Document{}, fmt.Errorf("badger: set %s: %w", op.Path, err)
	}
	return toDocument(op.Path, env)
}

func getDoc(txn *badger.Txn, path string) (docstore.Document, error) {
	item, err := txn.Get([]byte(docKeyPrefix + path))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("badger: get %s: %w", path, err)
	}

	var env envelope
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &env)
	}); err != nil {
		return docstore.Document{}, fmt.Errorf("badger: decode %s: %w", path, err)
	}
	return toDocument(path, env)
}

func toDocument(path string, env envelope) (docstore.Document, error) {
	parent, id, err := docstore.Split(path)
	if err != nil {
		return docstore.Document{}, err
	}
	if env.Fields == nil {
		env.Fields = map[string]any{}
	}
	return docstore.Document{
		ID:         id,
		Path:       path,
		Parent:     parent,
		Fields:     env.Fields,
		CreateTime: env.CreateTime,
		UpdateTime: env.UpdateTime,
	}, nil
}
