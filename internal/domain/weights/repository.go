package weights

import (
	"context"
	"errors"

	"pet-diary/internal/ports/docstore"
)

type Repository interface {
	Create(ctx context.Context, w Weight) (Weight, error)
	Get(ctx context.Context, petID, id string) (Weight, error)
	Update(ctx context.Context, petID, id string, patch map[string]any) (Weight, error)
	Delete(ctx context.Context, petID, id string) error
	// List devuelve los registros ya ordenados con Sort.
	List(ctx context.Context, petID string) ([]Weight, error)
}

func Collection(petID string) string {
	return docstore.Join("pets", petID, "weights")
}

func Path(petID, id string) string {
	return docstore.Join(Collection(petID), id)
}

type weightDoc struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
	Date  string  `json:"date"`
}

type DocRepository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) *DocRepository {
	return &DocRepository{store: store}
}

var _ Repository = (*DocRepository)(nil)

func (r *DocRepository) Create(ctx context.Context, w Weight) (Weight, error) {
	fields, err := docstore.Encode(weightDoc{Value: w.Value, Unit: w.Unit, Date: w.Date})
	if err != nil {
		return Weight{}, err
	}
	d, err := r.store.Create(ctx, Path(w.PetID, w.ID), fields)
	if err != nil {
		return Weight{}, mapErr(err)
	}
	return fromDoc(w.PetID, d)
}

func (r *DocRepository) Get(ctx context.Context, petID, id string) (Weight, error) {
	d, err := r.store.Get(ctx, Path(petID, id))
	if err != nil {
		return Weight{}, mapErr(err)
	}
	return fromDoc(petID, d)
}

func (r *DocRepository) Update(ctx context.Context, petID, id string, patch map[string]any) (Weight, error) {
	d, err := r.store.Update(ctx, Path(petID, id), patch)
	if err != nil {
		return Weight{}, mapErr(err)
	}
	return fromDoc(petID, d)
}

func (r *DocRepository) Delete(ctx context.Context, petID, id string) error {
	return mapErr(r.store.Delete(ctx, Path(petID, id)))
}

// El store ordena por date desc; el desempate por createdAt lo hace Sort
// porque los docs importados pueden no tener createTime.
func (r *DocRepository) List(ctx context.Context, petID string) ([]Weight, error) {
	docs, err := r.store.List(ctx, Collection(petID), docstore.Query{
		OrderBy: []docstore.Order{{Field: "date", Desc: true}},
	})
	if err != nil {
		return nil, err
	}
	out := make([]Weight, 0, len(docs))
	for _, d := range docs {
		w, err := fromDoc(petID, d)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	Sort(out)
	return out, nil
}

func fromDoc(petID string, d docstore.Document) (Weight, error) {
	var wd weightDoc
	if err := docstore.Decode(d, &wd); err != nil {
		return Weight{}, err
	}
	return Weight{
		ID:        d.ID,
		PetID:     petID,
		Value:     wd.Value,
		Unit:      wd.Unit,
		Date:      wd.Date,
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
