package pets

import (
	"context"
	"errors"

	"pet-diary/internal/domain/members"
	"pet-diary/internal/ports/docstore"
)

type Repository interface {
	// Create escribe la mascota y su owner en un único batch.
	Create(ctx context.Context, p Pet, owner members.Member) error
	Get(ctx context.Context, id string) (Pet, error)
	Update(ctx context.Context, id string, patch map[string]any) (Pet, error)
	// Delete borra la mascota y todas sus subcolecciones; devuelve las URLs de blobs que referenciaban.
	Delete(ctx context.Context, id string) ([]string, error)
}

const collection = "pets"

// SubCollections son las colecciones que cuelgan de pets/{id}.
var SubCollections = []string{"members", "entries", "tasks", "friends", "weights"}

func Path(id string) string {
	return docstore.Join(collection, id)
}

type petDoc struct {
	OwnerID      string  `json:"ownerId"`
	Name         string  `json:"name"`
	Species      Species `json:"species"`
	Breed        string  `json:"breed"`
	Gender       Gender  `json:"gender"`
	Birthday     string  `json:"birthday"`
	AdoptionDate string  `json:"adoptionDate"`
	MicrochipID  string  `json:"microchipId"`
	MedicalNotes string  `json:"medicalNotes"`
	Vets         []Vet   `json:"vets"`
	AvatarURL    string  `json:"avatarUrl"`
}

type DocRepository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) *DocRepository {
	return &DocRepository{store: store}
}

var _ Repository = (*DocRepository)(nil)

func (r *DocRepository) Create(ctx context.Context, p Pet, owner members.Member) error {
	fields, err := docstore.Encode(toDoc(p))
	if err != nil {
		return err
	}
	ownerFields, err := members.Fields(owner)
	if err != nil {
		return err
	}

	b := docstore.NewBatch().
		Create(Path(p.ID), fields).
		Create(members.Path(p.ID, owner.ID), ownerFields)
	return mapErr(r.store.Commit(ctx, b))
}

func (r *DocRepository) Get(ctx context.Context, id string) (Pet, error) {
	d, err := r.store.Get(ctx, Path(id))
	if err != nil {
		return Pet{}, mapErr(err)
	}
	return fromDoc(d)
}

func (r *DocRepository) Update(ctx context.Context, id string, patch map[string]any) (Pet, error) {
	d, err := r.store.Update(ctx, Path(id), patch)
	if err != nil {
		return Pet{}, mapErr(err)
	}
	return fromDoc(d)
}

func (r *DocRepository) Delete(ctx context.Context, id string) ([]string, error) {
	root, err := r.store.Get(ctx, Path(id))
	if err != nil {
		return nil, mapErr(err)
	}

	b := docstore.NewBatch()
	urls := blobURLs(root.Fields)
	for _, sub := range SubCollections {
		docs, err := r.store.List(ctx, docstore.Join(Path(id), sub), docstore.Query{})
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			b.Delete(d.Path)
			urls = append(urls, blobURLs(d.Fields)...)
		}
	}
	b.Delete(root.Path)

	if err := r.store.Commit(ctx, b); err != nil {
		return nil, mapErr(err)
	}
	return urls, nil
}

// blobURLs junta las URLs de imágenes conocidas de un documento.
func blobURLs(fields map[string]any) []string {
	var out []string
	for _, k := range []string{"avatarUrl", "imageUrl"} {
		if s, ok := fields[k].(string); ok && s != "" {
			out = append(out, s)
		}
	}
	if list, ok := fields["imageUrls"].([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func toDoc(p Pet) petDoc {
	vets := p.Vets
	if vets == nil {
		vets = []Vet{}
	}
	return petDoc{
		OwnerID:      p.OwnerID,
		Name:         p.Name,
		Species:      p.Species,
		Breed:        p.Breed,
		Gender:       p.Gender,
		Birthday:     p.Birthday,
		AdoptionDate: p.AdoptionDate,
		MicrochipID:  p.MicrochipID,
		MedicalNotes: p.MedicalNotes,
		Vets:         vets,
		AvatarURL:    p.AvatarURL,
	}
}

func fromDoc(d docstore.Document) (Pet, error) {
	var pd petDoc
	if err := docstore.Decode(d, &pd); err != nil {
		return Pet{}, err
	}
	return Pet{
		ID:           d.ID,
		OwnerID:      pd.OwnerID,
		Name:         pd.Name,
		Species:      pd.Species,
		Breed:        pd.Breed,
		Gender:       pd.Gender,
		Birthday:     pd.Birthday,
		AdoptionDate: pd.AdoptionDate,
		MicrochipID:  pd.MicrochipID,
		MedicalNotes: pd.MedicalNotes,
		Vets:         pd.Vets,
		AvatarURL:    pd.AvatarURL,
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
