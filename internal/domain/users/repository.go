package users

import (
	"context"
	"errors"

	"pet-diary/internal/ports/docstore"
)

type Repository interface {
	Get(ctx context.Context, id string) (User, error)
	// Create devuelve ErrAlreadyExists si el documento ya existe.
	Create(ctx context.Context, u User) error
	Update(ctx context.Context, id string, patch map[string]any) (User, error)
}

func Path(userID string) string {
	return docstore.Join("users", userID)
}

type userDoc struct {
	Email       string   `json:"email"`
	DisplayName string   `json:"displayName"`
	Nickname    string   `json:"nickname"`
	AvatarURL   string   `json:"avatarUrl"`
	Settings    Settings `json:"settings"`
}

type DocRepository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) *DocRepository {
	return &DocRepository{store: store}
}

var _ Repository = (*DocRepository)(nil)

func (r *DocRepository) Get(ctx context.Context, id string) (User, error) {
	d, err := r.store.Get(ctx, Path(id))
	if err != nil {
		return User{}, mapErr(err)
	}
	return fromDoc(d)
}

func (r *DocRepository) Create(ctx context.Context, u User) error {
	fields, err := docstore.Encode(userDoc{
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Nickname:    u.Nickname,
		AvatarURL:   u.AvatarURL,
		Settings:    u.Settings,
	})
	if err != nil {
		return err
	}
	_, err = r.store.Create(ctx, Path(u.ID), fields)
	return mapErr(err)
}

func (r *DocRepository) Update(ctx context.Context, id string, patch map[string]any) (User, error) {
	d, err := r.store.Update(ctx, Path(id), patch)
	if err != nil {
		return User{}, mapErr(err)
	}
	return fromDoc(d)
}

func fromDoc(d docstore.Document) (User, error) {
	var ud userDoc
	if err := docstore.Decode(d, &ud); err != nil {
		return User{}, err
	}
	return User{
		ID:          d.ID,
		Email:       ud.Email,
		DisplayName: ud.DisplayName,
		Nickname:    ud.Nickname,
		AvatarURL:   ud.AvatarURL,
		Settings:    ud.Settings,
		CreatedAt:   d.CreateTime,
		UpdatedAt:   d.UpdateTime,
	}, nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, docstore.ErrAlreadyExists):
		return ErrAlreadyExists
	}
	return err
}
