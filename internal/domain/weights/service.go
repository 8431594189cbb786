package weights

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pet-diary/internal/domain/members"
)

var (
	ErrNoPetSelected = errors.New("weights: no pet selected")
	ErrInvalidInput  = errors.New("invalid input")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("weight not found")
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

func validate(value float64, unit Unit, date string) error {
	if value <= 0 {
		return fmt.Errorf("%w: value must be > 0", ErrInvalidInput)
	}
	if !unit.Valid() {
		return fmt.Errorf("%w: unit", ErrInvalidInput)
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("%w: date", ErrInvalidInput)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, petID, userID string, value float64, unit Unit, date string) (Weight, error) {
	if err := s.access(ctx, petID, userID, true); err != nil {
		return Weight{}, err
	}
	if unit == "" {
		unit = UnitKg
	}
	date = strings.TrimSpace(date)
	if err := validate(value, unit, date); err != nil {
		return Weight{}, err
	}
	return s.repo.Create(ctx, Weight{ID: uuid.NewString(), PetID: petID, Value: value, Unit: unit, Date: date})
}

func (s *Service) List(ctx context.Context, petID, userID string) ([]Weight, error) {
	if err := s.access(ctx, petID, userID, false); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, petID)
}

func (s *Service) Update(ctx context.Context, petID, id, userID string, value *float64, unit *Unit, date *string) (Weight, error) {
	if err := s.access(ctx, petID, userID, true); err != nil {
		return Weight{}, err
	}
	cur, err := s.repo.Get(ctx, petID, id)
	if err != nil {
		return Weight{}, err
	}
	if value != nil {
		cur.Value = *value
	}
	if unit != nil {
		cur.Unit = *unit
	}
	if date != nil {
		cur.Date = strings.TrimSpace(*date)
	}
	if err := validate(cur.Value, cur.Unit, cur.Date); err != nil {
		return Weight{}, err
	}
	return s.repo.Update(ctx, petID, id, map[string]any{
		"value": cur.Value,
		"unit":  string(cur.Unit),
		"date":  cur.Date,
	})
}

func (s *Service) Delete(ctx context.Context, petID, id, userID string) error {
	if err := s.access(ctx, petID, userID, true); err != nil {
		return err
	}
	return s.repo.Delete(ctx, petID, id)
}
