package friends

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pet-diary/internal/domain/members"
	"pet-diary/internal/platform/logger"
	"pet-diary/internal/platform/metrics"
	"pet-diary/internal/ports/blobstore"
)

var (
	ErrNoPetSelected = errors.New("friends: no pet selected")
	ErrInvalidInput  = errors.New("invalid input")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("friend not found")
)

const dateLayout = "2006-01-02"

type Authorizer interface {
	Authorize(ctx context.Context, petID, userID string) (members.Access, error)
}

type Service struct {
	repo  Repository
	auth  Authorizer
	blobs blobstore.Store
	log   logger.Logger
	now   func() time.Time
}

func NewService(repo Repository, auth Authorizer, blobs blobstore.Store, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{repo: repo, auth: auth, blobs: blobs, log: log, now: time.Now}
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

// Input sirve para crear y para PATCH: nil = no tocar.
// AgeYears/AgeMonths, si vienen, pisan Birthday con la fecha calculada.
type Input struct {
	Name         *string
	Species      *string
	Breed        *string
	Gender       *string
	Color        *string
	Birthday     *string
	AgeYears     *int
	AgeMonths    *int
	Weight       *float64
	MetAt        *string
	Location     *string
	OwnerName    *string
	OwnerPhone   *string
	OwnerContact *string
	Features     *string
}

// fields arma el patch validado.
func (s *Service) fields(in Input) (map[string]any, error) {
	patch := map[string]any{}
	str := func(key string, v *string) {
		if v != nil {
			patch[key] = strings.TrimSpace(*v)
		}
	}

	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	str("name", in.Name)
	str("species", in.Species)
	str("breed", in.Breed)
	str("gender", in.Gender)
	str("color", in.Color)
	str("location", in.Location)
	str("ownerName", in.OwnerName)
	str("ownerPhone", in.OwnerPhone)
	str("ownerContact", in.OwnerContact)
	str("features", in.Features)

	for key, v := range map[string]*string{"birthday": in.Birthday, "metAt": in.MetAt} {
		if v == nil {
			continue
		}
		d := strings.TrimSpace(*v)
		if d != "" {
			if _, err := time.Parse(dateLayout, d); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrInvalidInput, key)
			}
		}
		patch[key] = d
	}

	if in.AgeYears != nil || in.AgeMonths != nil {
		years, months := deref(in.AgeYears), deref(in.AgeMonths)
		if years < 0 || months < 0 || months > 11 {
			return nil, fmt.Errorf("%w: age", ErrInvalidInput)
		}
		patch["birthday"] = BirthdayFromAge(s.now(), years, months)
	}

	if in.Weight != nil {
		if *in.Weight < 0 {
			return nil, fmt.Errorf("%w: weight", ErrInvalidInput)
		}
		patch["weight"] = *in.Weight
	}
	return patch, nil
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func (s *Service) Create(ctx context.Context, petID, userID string, in Input) (Friend, error) {
	if err := s.access(ctx, petID, userID, true); err != nil {
		return Friend{}, err
	}
	if in.Name == nil {
		return Friend{}, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	patch, err := s.fields(in)
	if err != nil {
		return Friend{}, err
	}

	f := Friend{ID: uuid.NewString(), PetID: petID}
	apply(&f, patch)
	return s.repo.Create(ctx, f)
}

// apply copia un patch ya validado sobre f.
func apply(f *Friend, patch map[string]any) {
	for k, v := range patch {
		if w, ok := v.(float64); ok {
			f.Weight = w
			continue
		}
		sv, _ := v.(string)
		switch k {
		case "name":
			f.Name = sv
		case "species":
			f.Species = sv
		case "breed":
			f.Breed = sv
		case "gender":
			f.Gender = sv
		case "color":
			f.Color = sv
		case "birthday":
			f.Birthday = sv
		case "metAt":
			f.MetAt = sv
		case "location":
			f.Location = sv
		case "ownerName":
			f.OwnerName = sv
		case "ownerPhone":
			f.OwnerPhone = sv
		case "ownerContact":
			f.OwnerContact = sv
		case "features":
			f.Features = sv
		}
	}
}

func (s *Service) Get(ctx context.Context, petID, id, userID string) (Friend, error) {
	if err := s.access(ctx, petID, userID, false); err != nil {
		return Friend{}, err
	}
	return s.repo.Get(ctx, petID, id)
}

// List ordena en memoria: el store no guarda orden para friends.
func (s *Service) List(ctx context.Context, petID, userID string, by SortBy) ([]Friend, error) {
	if err := s.access(ctx, petID, userID, false); err != nil {
		return nil, err
	}
	if by == "" {
		by = SortByCreatedAt
	}
	if !by.Valid() {
		return nil, fmt.Errorf("%w: sort", ErrInvalidInput)
	}
	items, err := s.repo.List(ctx, petID)
	if err != nil {
		return nil, err
	}
	Sort(items, by)
	return items, nil
}

func (s *Service) Update(ctx context.Context, petID, id, userID string, in Input) (Friend, error) {
	if err := s.access(ctx, petID, userID, true); err != nil {
		return Friend{}, err
	}
	patch, err := s.fields(in)
	if err != nil {
		return Friend{}, err
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
	cur, err := s.repo.Get(ctx, petID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.repo.Delete(ctx, petID, id); err != nil {
		return err
	}
	s.deleteBlob(ctx, cur.ImageURL)
	return nil
}

func (s *Service) UploadImage(ctx context.Context, petID, id, userID string, file blobstore.File) (Friend, error) {
	if err := s.access(ctx, petID, userID, true); err != nil {
		return Friend{}, err
	}
	if s.blobs == nil {
		return Friend{}, fmt.Errorf("friends: blob store not configured")
	}
	cur, err := s.repo.Get(ctx, petID, id)
	if err != nil {
		return Friend{}, err
	}

	key := blobstore.NewKey(Collection(petID), s.now(), file)
	obj, err := s.blobs.Put(ctx, key, file.Body, file.ContentType)
	metrics.ObserveBlobUpload(err)
	if err != nil {
		return Friend{}, err
	}

	updated, err := s.repo.Update(ctx, petID, id, map[string]any{"imageUrl": obj.URL})
	if err != nil {
		s.deleteBlob(ctx, obj.URL)
		return Friend{}, err
	}
	if cur.ImageURL != "" && cur.ImageURL != obj.URL {
		s.deleteBlob(ctx, cur.ImageURL)
	}
	return updated, nil
}

func (s *Service) deleteBlob(ctx context.Context, url string) {
	if s.blobs == nil || url == "" {
		return
	}
	key, ok := s.blobs.KeyFromURL(url)
	if !ok {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		s.log.Warn("friends: delete blob", map[string]any{"key": key, "error": err})
	}
}
