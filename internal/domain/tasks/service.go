package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"pet-diary/internal/domain/members"
)

var (
	ErrNoPetSelected = errors.New("tasks: no pet selected")
	ErrInvalidInput  = errors.New("invalid input")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("task not found")
)

type Authorizer interface {
	Authorize(ctx context.Context, petID, userID string) (members.Access, error)
}

type Service struct {
	repo Repository
	auth Authorizer
}

func NewService(repo Repository, auth Authorizer) *Service {
	return &Service{repo: repo, auth: auth}
}

func (s *Service) access(ctx context.Context, petID, userID string, edit bool) error {
	if strings.TrimSpace(petID) == "" {
		return ErrNoPetSelected
	}
	a, err := s.auth.Authorize(ctx, petID, userID)
	switch {
	case errors.Is(err, members.ErrForbidden):
		return ErrForbidden
	case errors.Is(err, members.ErrInvalidInput):
		return ErrInvalidInput
	case err != nil:
		return err
	}
	if edit && !a.Capabilities.CanEdit {
		return ErrForbidden
	}
	return nil
}

func (s *Service) List(ctx context.Context, petID, userID string) ([]CustomTask, error) {
	if err := s.access(ctx, petID, userID, false); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, petID)
}

// Tags devuelve el vocabulario completo: fijas primero, después las propias por order.
func (s *Service) Tags(ctx context.Context, petID, userID string) ([]string, error) {
	custom, err := s.List(ctx, petID, userID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(BuiltinTags)+len(custom))
	seen := map[string]struct{}{}
	for _, t := range BuiltinTags {
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, t := range custom {
		if _, ok := seen[t.Name]; ok {
			continue
		}
		seen[t.Name] = struct{}{}
		out = append(out, t.Name)
	}
	return out, nil
}

// Create agrega la tarea al final (max(order)+1).
func (s *Service) Create(ctx context.Context, petID, userID, name, emoji string) (CustomTask, error) {
	if err := s.access(ctx, petID, userID, true); err != nil {
		return CustomTask{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return CustomTask{}, fmt.Errorf("%w: name required", ErrInvalidInput)
	}

	existing, err := s.repo.List(ctx, petID)
	if err != nil {
		return CustomTask{}, err
	}
	next := 0
	for _, t := range existing {
		if t.Order >= next {
			next = t.Order + 1
		}
	}

	return s.repo.Create(ctx, CustomTask{
		ID:    uuid.NewString(),
		PetID: petID,
		Name:  name,
		Emoji: strings.TrimSpace(emoji),
		Order: next,
	})
}

func (s *Service) Update(ctx context.Context, petID, id, userID string, name, emoji *string) (CustomTask, error) {
	if err := s.access(ctx, petID, userID, true); err != nil {
		return CustomTask{}, err
	}
	patch := map[string]any{}
	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" {
			return CustomTask{}, fmt.Errorf("%w: name required", ErrInvalidInput)
		}
		patch["name"] = n
	}
	if emoji != nil {
		patch["emoji"] = strings.TrimSpace(*emoji)
	}
	if len(patch) == 0 {
		return s.repo.Get(ctx, petID, id)
	}
	return s.repo.Update(ctx, petID, id, patch)
}

func (s *Service) Delete(ctx context.Context, petID, id, userID string) error {
	if err := s.access(ctx, petID, userID, true); err != nil {
		return err
	}
	return s.repo.Delete(ctx, petID, id)
}

// Reorder recibe todos los ids en el orden nuevo; no se aceptan faltantes ni repetidos.
func (s *Service) Reorder(ctx context.Context, petID, userID string, ids []string) ([]CustomTask, error) {
	if err := s.access(ctx, petID, userID, true); err != nil {
		return nil, err
	}
	existing, err := s.repo.List(ctx, petID)
	if err != nil {
		return nil, err
	}
	if len(ids) != len(existing) {
		return nil, fmt.Errorf("%w: expected %d ids", ErrInvalidInput, len(existing))
	}
	known := make(map[string]bool, len(existing))
	for _, t := range existing {
		known[t.ID] = false
	}
	for _, id := range ids {
		used, ok := known[id]
		if !ok || used {
			return nil, fmt.Errorf("%w: id %q", ErrInvalidInput, id)
		}
		known[id] = true
	}

	if err := s.repo.Reorder(ctx, petID, ids); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, petID)
}
