package friends

import (
	"context"
	"errors"

	"pet-diary/internal/ports/docstore"
)

type Repository interface {
	Create(ctx context.Context, f Friend) (Friend, error)
	Get(ctx context.Context, petID, id string) (Friend, error)
	Update(ctx context.Context, petID, id string, patch map[string]any) (Friend, error)
	Delete(ctx context.Context, petID, id string) error
	List(ctx context.Context, petID string) ([]Friend, error)
}

func Collection(petID string) string {
	return docstore.Join("pets", petID, "friends")
}

func Path(petID, id string) string {
	return docstore.Join(Collection(petID), id)
}

type friendDoc struct {
	Name         string  `json:"name"`
	Species      string  `json:"species"`
	Breed        string  `json:"breed"`
	Gender       string  `json:"gender"`
	Color        string  `json:"color"`
	Birthday     string  `json:"birthday"`
	Weight       float64 `json:"weight"`
	MetAt        string  `json:"metAt"`
	Location     string  `json:"location"`
	OwnerName    string  `json:"ownerName"`
	OwnerPhone   string  `json:"ownerPhone"`
	OwnerContact string  `json:"ownerContact"`
	Features     string  `json:"features"`
	ImageURL     string  `json:"imageUrl"`
}

type DocRepository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) *DocRepository {
	return &DocRepository{store: store}
}

var _ Repository = (*DocRepository)(nil)

func (r *DocRepository) Create(ctx context.Context, f Friend) (Friend, error) {
	fields, err := docstore.Encode(friendDoc{
		Name:         f.Name,
		Species:      f.Species,
		Breed:        f.Breed,
		Gender:       f.Gender,
		Color:        f.Color,
		Birthday:     f.Birthday,
		Weight:       f.Weight,
		MetAt:        f.MetAt,
		Location:     f.Location,
		OwnerName:    f.OwnerName,
		OwnerPhone:   f.OwnerPhone,
		OwnerContact: f.OwnerContact,
		Features:     f.Features,
		ImageURL:     f.ImageURL,
	})
	if err != nil {
		return Friend{}, err
	}
	d, err := r.store.Create(ctx, Path(f.PetID, f.ID), fields)
	if err != nil {
		return Friend{}, mapErr(err)
	}
	return fromDoc(f.PetID, d)
}

func (r *DocRepository) Get(ctx context.Context, petID, id string) (Friend, error) {
	d, err := r.store.Get(ctx, Path(petID, id))
	if err != nil {
		return Friend{}, mapErr(err)
	}
	return fromDoc(petID, d)
}

func (r *DocRepository) Update(ctx context.Context, petID, id string, patch map[string]any) (Friend, error) {
	d, err := r.store.Update(ctx, Path(petID, id), patch)
	if err != nil {
		return Friend{}, mapErr(err)
	}
	return fromDoc(petID, d)
}

func (r *DocRepository) Delete(ctx context.Context, petID, id string) error {
	return mapErr(r.store.Delete(ctx, Path(petID, id)))
}

func (r *DocRepository) List(ctx context.Context, petID string) ([]Friend, error) {
	docs, err := r.store.List(ctx, Collection(petID), docstore.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]Friend, 0, len(docs))
	for _, d := range docs {
		f, err := fromDoc(petID, d)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func fromDoc(petID string, d docstore.Document) (Friend, error) {
	var fd friendDoc
	if err := docstore.Decode(d, &fd); err != nil {
		return Friend{}, err
	}
	return Friend{
		ID:           d.ID,
		PetID:        petID,
		Name:         fd.Name,
		Species:      fd.Species,
		Breed:        fd.Breed,
		Gender:       fd.Gender,
		Color:        fd.Color,
		Birthday:     fd.Birthday,
		Weight:       fd.Weight,
		MetAt:        fd.MetAt,
		Location:     fd.Location,
		OwnerName:    fd.OwnerName,
		OwnerPhone:   fd.OwnerPhone,
		OwnerContact: fd.OwnerContact,
		Features:     fd.Features,
		ImageURL:     fd.ImageURL,
		CreatedAt:    d.CreateTime,
		UpdatedAt:    d.UpdateTime,
	}, nil
}

func mapErr(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
