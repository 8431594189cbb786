package tasks

import (
	"context"
	"errors"

	"pet-diary/internal/ports/docstore"
)

type Repository interface {
	Create(ctx context.Context, t CustomTask) (CustomTask, error)
	Get(ctx context.Context, petID, id string) (CustomTask, error)
	Update(ctx context.Context, petID, id string, patch map[string]any) (CustomTask, error)
	Delete(ctx context.Context, petID, id string) error
	// List devuelve las tareas por order asc.
	List(ctx context.Context, petID string) ([]CustomTask, error)
	// Reorder escribe order = índice de cada id, todo en un batch.
	Reorder(ctx context.Context, petID string, ids []string) error
}

func Collection(petID string) string {
	return docstore.Join("pets", petID, "tasks")
}

func Path(petID, id string) string {
	return docstore.Join(Collection(petID), id)
}

type taskDoc struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
	Order int    `json:"order"`
}

type DocRepository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) *DocRepository {
	return &DocRepository{store: store}
}

var _ Repository = (*DocRepository)(nil)

func (r *DocRepository) Create(ctx context.Context, t CustomTask) (CustomTask, error) {
	fields, err := docstore.Encode(taskDoc{Name: t.Name, Emoji: t.Emoji, Order: t.Order})
	if err != nil {
		return CustomTask{}, err
	}
	d, err := r.store.Create(ctx, Path(t.PetID, t.ID), fields)
	if err != nil {
		return CustomTask{}, mapErr(err)
	}
	return fromDoc(t.PetID, d)
}

func (r *DocRepository) Get(ctx context.Context, petID, id string) (CustomTask, error) {
	d, err := r.store.Get(ctx, Path(petID, id))
	if err != nil {
		return CustomTask{}, mapErr(err)
	}
	return fromDoc(petID, d)
}

func (r *DocRepository) Update(ctx context.Context, petID, id string, patch map[string]any) (CustomTask, error) {
	d, err := r.store.Update(ctx, Path(petID, id), patch)
	if err != nil {
		return CustomTask{}, mapErr(err)
	}
	return fromDoc(petID, d)
}

func (r *DocRepository) Delete(ctx context.Context, petID, id string) error {
	return mapErr(r.store.Delete(ctx, Path(petID, id)))
}

func (r *DocRepository) List(ctx context.Context, petID string) ([]CustomTask, error) {
	docs, err := r.store.List(ctx, Collection(petID), docstore.Query{
		OrderBy: []docstore.Order{{Field: "order"}},
	})
	if err != nil {
		return nil, err
	}
	out := make([]CustomTask, 0, len(docs))
	for _, d := range docs {
		t, err := fromDoc(petID, d)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *DocRepository) Reorder(ctx context.Context, petID string, ids []string) error {
	b := docstore.NewBatch()
	for i, id := range ids {
		b.Update(Path(petID, id), map[string]any{"order": i})
	}
	return mapErr(r.store.Commit(ctx, b))
}

func fromDoc(petID string, d docstore.Document) (CustomTask, error) {
	var td taskDoc
	if err := docstore.Decode(d, &td); err != nil {
		return CustomTask{}, err
	}
	return CustomTask{
		ID:        d.ID,
		PetID:     petID,
		Name:      td.Name,
		Emoji:     td.Emoji,
		Order:     td.Order,
		CreatedAt: d.CreateTime,
		UpdatedAt: d.UpdateTime,
	}, nil
}

func mapErr(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
