package pets

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
	"pet-diary/internal/ports/auth"
	"pet-diary/internal/ports/blobstore"
	"pet-diary/internal/ports/docstore"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// Memberships es lo que pets necesita del módulo de miembros.
type Memberships interface {
	Authorize(ctx context.Context, petID, userID string) (members.Access, error)
	ListActiveByUser(ctx context.Context, userID string) ([]members.Member, error)
}

type Service struct {
	repo    Repository
	members Memberships
	blobs   blobstore.Store
	log     logger.Logger
	now     func() time.Time
}

func NewService(repo Repository, m Memberships, blobs blobstore.Store, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:    repo,
		members: m,
		blobs:   blobs,
		log:     log,
		now:     time.Now,
	}
}

type CreateInput struct {
	Name         string
	Species      Species
	Breed        string
	Gender       Gender
	Birthday     string
	AdoptionDate string
	MicrochipID  string
	MedicalNotes string
	Vets         []Vet
}

func (s *Service) Create(ctx context.Context, owner auth.Claims, in CreateInput) (Pet, error) {
	ownerID := strings.TrimSpace(owner.UserID)
	if ownerID == "" {
		return Pet{}, ErrInvalidInput
	}
	if strings.TrimSpace(in.Name) == "" {
		return Pet{}, ErrInvalidInput
	}
	if strings.TrimSpace(string(in.Species)) == "" {
		return Pet{}, ErrInvalidInput
	}
	if in.Gender == "" {
		in.Gender = GenderUnknown
	}

	now := s.now()
	p := Pet{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Name:         strings.TrimSpace(in.Name),
		Species:      in.Species,
		Breed:        strings.TrimSpace(in.Breed),
		Gender:       in.Gender,
		Birthday:     strings.TrimSpace(in.Birthday),
		AdoptionDate: strings.TrimSpace(in.AdoptionDate),
		MicrochipID:  strings.TrimSpace(in.MicrochipID),
		MedicalNotes: strings.TrimSpace(in.MedicalNotes),
		Vets:         in.Vets,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, p, members.NewOwner(p.ID, ownerID, owner.Email, now)); err != nil {
		return Pet{}, err
	}
	return s.repo.Get(ctx, p.ID)
}

// authorize mapea los errores de members a los de pets.
func (s *Service) authorize(ctx context.Context, petID, userID string) (members.Access, error) {
	a, err := s.members.Authorize(ctx, petID, userID)
	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, members.ErrForbidden):
		return members.Access{}, ErrForbidden
	case errors.Is(err, members.ErrInvalidInput):
		return members.Access{}, ErrInvalidInput
	}
	return members.Access{}, err
}

func (s *Service) Get(ctx context.Context, petID, userID string) (MyPet, error) {
	a, err := s.authorize(ctx, petID, userID)
	if err != nil {
		return MyPet{}, err
	}
	p, err := s.repo.Get(ctx, petID)
	if err != nil {
		return MyPet{}, err
	}
	return MyPet{Pet: p, Role: a.Member.Role, Capabilities: a.Capabilities}, nil
}

// ListMine devuelve las mascotas donde userID es miembro active, con su rol.
func (s *Service) ListMine(ctx context.Context, userID string) ([]MyPet, error) {
	ms, err := s.members.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	out := make([]MyPet, 0, len(ms))
	for _, m := range ms {
		if _, ok := seen[m.PetID]; ok {
			continue
		}
		seen[m.PetID] = struct{}{}

		p, err := s.repo.Get(ctx, m.PetID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// membresía huérfana
				continue
			}
			return nil, err
		}
		out = append(out, MyPet{Pet: p, Role: m.Role, Capabilities: members.CapabilitiesFor(m.Role)})
	}
	return out, nil
}

// UpdateInput: nil = no tocar; "" limpia los campos opcionales.
type UpdateInput struct {
	Name         *string
	Species      *Species
	Breed        *string
	Gender       *Gender
	Birthday     *string
	AdoptionDate *string
	MicrochipID  *string
	MedicalNotes *string
	Vets         *[]Vet
}

func (s *Service) Update(ctx context.Context, petID, userID string, in UpdateInput) (Pet, error) {
	a, err := s.authorize(ctx, petID, userID)
	if err != nil {
		return Pet{}, err
	}
	if !a.Capabilities.CanEdit {
		return Pet{}, ErrForbidden
	}

	patch := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return Pet{}, ErrInvalidInput
		}
		patch["name"] = name
	}
	if in.Species != nil {
		if *in.Species == "" {
			return Pet{}, ErrInvalidInput
		}
		patch["species"] = string(*in.Species)
	}
	if in.Gender != nil {
		patch["gender"] = string(*in.Gender)
	}
	setString(patch, "breed", in.Breed)
	setString(patch, "birthday", in.Birthday)
	setString(patch, "adoptionDate", in.AdoptionDate)
	setString(patch, "microchipId", in.MicrochipID)
	setString(patch, "medicalNotes", in.MedicalNotes)
	if in.Vets != nil {
		vets := *in.Vets
		if vets == nil {
			vets = []Vet{}
		}
		enc, err := docstore.Encode(struct {
			Vets []Vet `json:"vets"`
		}{vets})
		if err != nil {
			return Pet{}, err
		}
		patch["vets"] = enc["vets"]
	}

	if len(patch) == 0 {
		return s.repo.Get(ctx, petID)
	}
	return s.repo.Update(ctx, petID, patch)
}

func setString(patch map[string]any, key string, v *string) {
	if v != nil {
		patch[key] = strings.TrimSpace(*v)
	}
}

// Delete solo lo puede hacer un owner; borra todo lo que cuelga de la mascota y después sus blobs.
func (s *Service) Delete(ctx context.Context, petID, userID string) error {
	a, err := s.authorize(ctx, petID, userID)
	if err != nil {
		return err
	}
	if !a.Capabilities.CanManageMembers {
		return ErrForbidden
	}

	urls, err := s.repo.Delete(ctx, petID)
	if err != nil {
		return err
	}
	s.deleteBlobs(ctx, urls)
	return nil
}

func (s *Service) UploadAvatar(ctx context.Context, petID, userID string, f blobstore.File) (Pet, error) {
	a, err := s.authorize(ctx, petID, userID)
	if err != nil {
		return Pet{}, err
	}
	if !a.Capabilities.CanEdit {
		return Pet{}, ErrForbidden
	}
	if s.blobs == nil {
		return Pet{}, fmt.Errorf("pets: blob store not configured")
	}

	current, err := s.repo.Get(ctx, petID)
	if err != nil {
		return Pet{}, err
	}

	key := blobstore.NewKey(docstore.Join(Path(petID), "avatar"), s.now(), f)
	obj, err := s.blobs.Put(ctx, key, f.Body, f.ContentType)
	metrics.ObserveBlobUpload(err)
	if err != nil {
		return Pet{}, err
	}

	updated, err := s.repo.Update(ctx, petID, map[string]any{"avatarUrl": obj.URL})
	if err != nil {
		return Pet{}, err
	}
	if current.AvatarURL != "" && current.AvatarURL != obj.URL {
		s.deleteBlobs(ctx, []string{current.AvatarURL})
	}
	return updated, nil
}

// deleteBlobs es best-effort: un blob huérfano no debe romper la operación.
func (s *Service) deleteBlobs(ctx context.Context, urls []string) {
	if s.blobs == nil {
		return
	}
	for _, u := range urls {
		key, ok := s.blobs.KeyFromURL(u)
		if !ok {
			continue
		}
		if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			s.log.Warn("pets: delete blob", map[string]any{"key": key, "error": err})
		}
	}
}
