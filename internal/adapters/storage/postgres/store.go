package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"pet-diary/internal/ports/docstore"
)

type row struct {
	Path      string    `db:"path"`
	Fields    []byte    `db:"fields"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store guarda cada documento como una fila jsonb. En List filtros, orden, cursor
// y límite van al motor (ver selectSQL); Evaluate queda como pasada final, y
// es la que resuelve todo cuando la query no se puede expresar en SQL.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewStore(db *sqlx.DB) *Store {
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
	return getDoc(ctx, s.db, path)
}

func (s *Store) Create(ctx context.Context, path string, fields map[string]any) (docstore.Document, error) {
	return applyOp(ctx, s.db, docstore.Op{Kind: docstore.OpCreate, Path: path, Fields: fields}, s.now())
}

func (s *Store) Set(ctx context.Context, path string, fields map[string]any) (docstore.Document, error) {
	return applyOp(ctx, s.db, docstore.Op{Kind: docstore.OpSet, Path: path, Fields: fields}, s.now())
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) (docstore.Document, error) {
	return applyOp(ctx, s.db, docstore.Op{Kind: docstore.OpUpdate, Path: path, Fields: fields}, s.now())
}

func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := applyOp(ctx, s.db, docstore.Op{Kind: docstore.OpDelete, Path: path}, s.now())
	return err
}

func (s *Store) List(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if !docstore.ValidCollection(collection) {
		return nil, docstore.ErrInvalidPath
	}
	return s.query(ctx, "parent", strings.Trim(collection, "/"), q)
}

func (s *Store) ListGroup(ctx context.Context, group string, q docstore.Query) ([]docstore.Document, error) {
	group = strings.TrimSpace(group)
	if group == "" || strings.Contains(group, "/") {
		return nil, docstore.ErrInvalidPath
	}
	return s.query(ctx, "collection_group", group, q)
}

func (s *Store) Commit(ctx context.Context, b *docstore.Batch) (err error) {
	if b.Len() == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := s.now()
	for _, op := range b.Ops() {
		if _, err = applyOp(ctx, tx, op, now); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, column, value string, q docstore.Query) ([]docstore.Document, error) {
	sqlq, args, _, err := selectSQL(column, value, q)
	if err != nil {
		return nil, err
	}

	var rows []row
	if err := sqlx.SelectContext(ctx, s.db, &rows, sqlq, args...); err != nil {
		return nil, fmt.Errorf("postgres: list %s: %w", value, err)
	}

	docs := make([]docstore.Document, 0, len(rows))
	for _, r := range rows {
		d, err := r.toDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docstore.Evaluate(docs, q), nil
}

func getDoc(ctx context.Context, q sqlx.QueryerContext, path string) (docstore.Document, error) {
	var r row
	err := sqlx.GetContext(ctx, q, &r, `SELECT path, fields, created_at, updated_at FROM documents WHERE path = $1`, path)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("postgres: get %s: %w", path, err)
	}
	return r.toDocument()
}

func applyOp(ctx context.Context, ext sqlx.ExtContext, op docstore.Op, now time.Time) (docstore.Document, error) {
	parent, _, err := docstore.Split(op.Path)
	if err != nil {
		return docstore.Document{}, err
	}

	var fields []byte
	if op.Kind != docstore.OpDelete {
		if fields, err = docstore.MarshalFields(op.Fields); err != nil {
			return docstore.Document{}, err
		}
	}

	switch op.Kind {
	case docstore.OpCreate:
		res, err := ext.ExecContext(ctx, `
			INSERT INTO documents (path, parent, collection_group, fields, created_at, updated_at)
			VALUES ($1, $2, $3, $4::jsonb, $5, $5)
			ON CONFLICT (path) DO NOTHING
		`, op.Path, parent, docstore.GroupOf(parent), string(fields), now)
		if err != nil {
			return docstore.Document{}, fmt.Errorf("postgres: create %s: %w", op.Path, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return docstore.Document{}, docstore.ErrAlreadyExists
		}

	case docstore.OpSet:
		if _, err := ext.ExecContext(ctx, `
			INSERT INTO documents (path, parent, collection_group, fields, created_at, updated_at)
			VALUES ($1, $2, $3, $4::jsonb, $5, $5)
			ON CONFLICT (path) DO UPDATE SET fields = EXCLUDED.fields, updated_at = EXCLUDED.updated_at
		`, op.Path, parent, docstore.GroupOf(parent), string(fields), now); err != nil {
			return docstore.Document{}, fmt.Errorf("postgres: set %s: %w", op.Path, err)
		}

	case docstore.OpUpdate:
		// || hace merge de claves de primer nivel, igual que docstore.Merge
		res, err := ext.ExecContext(ctx, `
			UPDATE documents SET fields = fields || $2::jsonb, updated_at = $3
			WHERE path = $1
		`, op.Path, string(fields), now)
		if err != nil {
			return docstore.Document{}, fmt.Errorf("postgres: update %s: %w", op.Path, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return docstore.Document{}, docstore.ErrNotFound
		}

	case docstore.OpDelete:
		if _, err := ext.ExecContext(ctx, `DELETE FROM documents WHERE path = $1`, op.Path); err != nil {
			return docstore.Document{}, fmt.Errorf("postgres: delete %s: %w", op.Path, err)
		}
		return docstore.Document{}, nil

	default:
		return docstore.Document{}, docstore.ErrInvalidPath
	}

	return getDoc(ctx, ext, op.Path)
}

func (r row) toDocument() (docstore.Document, error) {
	parent, id, err := docstore.Split(r.Path)
	if err != nil {
		return docstore.Document{}, err
	}
	fields, err := docstore.UnmarshalFields(r.Fields)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("postgres: decode %s: %w", r.Path, err)
	}
	return docstore.Document{
		ID:         id,
		Path:       r.Path,
		Parent:     parent,
		Fields:     fields,
		CreateTime: r.CreatedAt.UTC(),
		UpdateTime: r.UpdatedAt.UTC(),
	}, nil
}
