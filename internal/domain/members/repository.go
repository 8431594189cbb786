package members

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pet-diary/internal/ports/docstore"
)

type Repository interface {
	Create(ctx context.Context, m Member) error
	Update(ctx context.Context, m Member) error
	Delete(ctx context.Context, petID, memberID string) error
	Get(ctx context.Context, petID, memberID string) (Member, error)

	ListByPet(ctx context.Context, petID string) ([]Member, error)
	ListByEmail(ctx context.Context, petID, email string) ([]Member, error)
	GetActiveByUser(ctx context.Context, petID, userID string) (Member, error)

	// Consultas sobre todas las mascotas (collection group "members").
	ListActiveByUser(ctx context.Context, userID string) ([]Member, error)
	ListPendingByEmail(ctx context.Context, email string) ([]Member, error)

	// Transfer promueve a "to" y degrada a "from" en un único batch.
	Transfer(ctx context.Context, to, from Member) error

	// PetOwnerID lee pets/{petID}.ownerId.
	PetOwnerID(ctx context.Context, petID string) (string, error)
	// UpdateWithOwner y DeleteWithOwner escriben la membresía y pets/{id}.ownerId
	// en un único batch.
	UpdateWithOwner(ctx context.Context, m Member, ownerID string) error
	DeleteWithOwner(ctx context.Context, petID, memberID, ownerID string) error
}

const collectionGroup = "members"

// Collection devuelve "pets/{petID}/members".
func Collection(petID string) string {
	return docstore.Join("pets", petID, collectionGroup)
}

func Path(petID, memberID string) string {
	return docstore.Join(Collection(petID), memberID)
}

type memberDoc struct {
	PetID      string     `json:"petId"`
	UserID     string     `json:"userId"`
	Email      string     `json:"email"`
	Role       Role       `json:"role"`
	Status     Status     `json:"status"`
	InvitedBy  string     `json:"invitedBy,omitempty"`
	AcceptedAt *time.Time `json:"acceptedAt"`
}

// Fields serializa m como documento; pets lo usa para crear el owner en el mismo batch.
func Fields(m Member) (map[string]any, error) {
	return docstore.Encode(memberDoc{
		PetID:      m.PetID,
		UserID:     m.UserID,
		Email:      m.Email,
		Role:       m.Role,
		Status:     m.Status,
		InvitedBy:  m.InvitedBy,
		AcceptedAt: m.AcceptedAt,
	})
}

func fromDoc(d docstore.Document) (Member, error) {
	var md memberDoc
	if err := docstore.Decode(d, &md); err != nil {
		return Member{}, err
	}
	return Member{
		ID:         d.ID,
		PetID:      md.PetID,
		UserID:     md.UserID,
		Email:      md.Email,
		Role:       md.Role,
		Status:     md.Status,
		InvitedBy:  md.InvitedBy,
		CreatedAt:  d.CreateTime,
		UpdatedAt:  d.UpdateTime,
		AcceptedAt: md.AcceptedAt,
	}, nil
}

// DocRepository implementa Repository sobre cualquier docstore.Store.
type DocRepository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) *DocRepository {
	return &DocRepository{store: store}
}

var _ Repository = (*DocRepository)(nil)

func (r *DocRepository) Create(ctx context.Context, m Member) error {
	fields, err := Fields(m)
	if err != nil {
		return err
	}
	_, err = r.store.Create(ctx, Path(m.PetID, m.ID), fields)
	return mapErr(err)
}

func (r *DocRepository) Update(ctx context.Context, m Member) error {
	fields, err := Fields(m)
	if err != nil {
		return err
	}
	_, err = r.store.Update(ctx, Path(m.PetID, m.ID), fields)
	return mapErr(err)
}

func (r *DocRepository) Delete(ctx context.Context, petID, memberID string) error {
	return mapErr(r.store.Delete(ctx, Path(petID, memberID)))
}

func (r *DocRepository) Get(ctx context.Context, petID, memberID string) (Member, error) {
	d, err := r.store.Get(ctx, Path(petID, memberID))
	if err != nil {
		return Member{}, mapErr(err)
	}
	return fromDoc(d)
}

func (r *DocRepository) ListByPet(ctx context.Context, petID string) ([]Member, error) {
	return r.list(ctx, Collection(petID), docstore.Query{
		OrderBy: []docstore.Order{{Field: docstore.FieldCreateTime}},
	})
}

func (r *DocRepository) ListByEmail(ctx context.Context, petID, email string) ([]Member, error) {
	return r.list(ctx, Collection(petID), docstore.Query{
		Where: []docstore.Filter{{Field: "email", Value: email}},
	})
}

func (r *DocRepository) GetActiveByUser(ctx context.Context, petID, userID string) (Member, error) {
	items, err := r.list(ctx, Collection(petID), docstore.Query{
		Where: []docstore.Filter{
			{Field: "userId", Value: userID},
			{Field: "status", Value: string(StatusActive)},
		},
		Limit: 1,
	})
	if err != nil {
		return Member{}, err
	}
	if len(items) == 0 {
		return Member{}, ErrNotFound
	}
	return items[0], nil
}

func (r *DocRepository) ListActiveByUser(ctx context.Context, userID string) ([]Member, error) {
	docs, err := r.store.ListGroup(ctx, collectionGroup, docstore.Query{
		Where: []docstore.Filter{
			{Field: "userId", Value: userID},
			{Field: "status", Value: string(StatusActive)},
		},
		OrderBy: []docstore.Order{{Field: docstore.FieldCreateTime}},
	})
	if err != nil {
		return nil, err
	}
	return fromDocs(docs)
}

func (r *DocRepository) ListPendingByEmail(ctx context.Context, email string) ([]Member, error) {
	docs, err := r.store.ListGroup(ctx, collectionGroup, docstore.Query{
		Where: []docstore.Filter{
			{Field: "email", Value: email},
			{Field: "status", Value: string(StatusPending)},
		},
		OrderBy: []docstore.Order{{Field: docstore.FieldCreateTime, Desc: true}},
	})
	if err != nil {
		return nil, err
	}
	return fromDocs(docs)
}

func (r *DocRepository) Transfer(ctx context.Context, to, from Member) error {
	b := docstore.NewBatch().
		Update(Path(to.PetID, to.ID), map[string]any{"role": string(to.Role)}).
		Update(Path(from.PetID, from.ID), map[string]any{"role": string(from.Role)}).
		Update(docstore.Join("pets", to.PetID), map[string]any{"ownerId": to.UserID})
	return mapErr(r.store.Commit(ctx, b))
}

func (r *DocRepository) PetOwnerID(ctx context.Context, petID string) (string, error) {
	d, err := r.store.Get(ctx, docstore.Join("pets", petID))
	if err != nil {
		return "", mapErr(err)
	}
	owner, _ := d.Fields["ownerId"].(string)
	return owner, nil
}

func (r *DocRepository) UpdateWithOwner(ctx context.Context, m Member, ownerID string) error {
	fields, err := Fields(m)
	if err != nil {
		return err
	}
	b := docstore.NewBatch().
		Update(Path(m.PetID, m.ID), fields).
		Update(docstore.Join("pets", m.PetID), map[string]any{"ownerId": ownerID})
	return mapErr(r.store.Commit(ctx, b))
}

func (r *DocRepository) DeleteWithOwner(ctx context.Context, petID, memberID, ownerID string) error {
	b := docstore.NewBatch().
		Delete(Path(petID, memberID)).
		Update(docstore.Join("pets", petID), map[string]any{"ownerId": ownerID})
	return mapErr(r.store.Commit(ctx, b))
}

func (r *DocRepository) list(ctx context.Context, collection string, q docstore.Query) ([]Member, error) {
	docs, err := r.store.List(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	return fromDocs(docs)
}

func fromDocs(docs []docstore.Document) ([]Member, error) {
	out := make([]Member, 0, len(docs))
	for _, d := range docs {
		m, err := fromDoc(d)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, docstore.ErrAlreadyExists):
		return fmt.Errorf("%w: %v", ErrBadState, err)
	}
	return err
}
