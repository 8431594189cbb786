package users

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"pet-diary/internal/platform/logger"
	"pet-diary/internal/platform/metrics"
	"pet-diary/internal/ports/auth"
	"pet-diary/internal/ports/blobstore"
	"pet-diary/internal/ports/docstore"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type Service struct {
	repo  Repository
	blobs blobstore.Store
	log   logger.Logger
	now   func() time.Time
}

func NewService(repo Repository, blobs blobstore.Store, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:  repo,
		blobs: blobs,
		log:   log,
		now:   time.Now,
	}
}

// EnsureUser devuelve el usuario de claims y lo crea con settings por defecto si todavía no existe.
func (s *Service) EnsureUser(ctx context.Context, claims auth.Claims) (User, error) {
	uid := strings.TrimSpace(claims.UserID)
	if uid == "" {
		return User{}, ErrInvalidInput
	}

	u, err := s.repo.Get(ctx, uid)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	now := s.now()
	u = User{
		ID:          uid,
		Email:       strings.ToLower(strings.TrimSpace(claims.Email)),
		DisplayName: defaultDisplayName(claims),
		Settings:    DefaultSettings(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		// otra request lo creó primero
		if errors.Is(err, ErrAlreadyExists) {
			return s.repo.Get(ctx, uid)
		}
		return User{}, err
	}

	s.log.Info("user created", map[string]any{"user_id": uid})
	return s.repo.Get(ctx, uid)
}

func defaultDisplayName(c auth.Claims) string {
	if n := strings.TrimSpace(c.DisplayName); n != "" {
		return n
	}
	if at := strings.Index(c.Email, "@"); at > 0 {
		return c.Email[:at]
	}
	return ""
}

// ProfilePatch: nil = no tocar.
type ProfilePatch struct {
	DisplayName *string
	Nickname    *string
}

func (s *Service) UpdateProfile(ctx context.Context, claims auth.Claims, p ProfilePatch) (User, error) {
	if _, err := s.EnsureUser(ctx, claims); err != nil {
		return User{}, err
	}

	patch := map[string]any{}
	if p.DisplayName != nil {
		name := strings.TrimSpace(*p.DisplayName)
		if name == "" {
			return User{}, ErrInvalidInput
		}
		patch["displayName"] = name
	}
	if p.Nickname != nil {
		patch["nickname"] = strings.TrimSpace(*p.Nickname)
	}
	if len(patch) == 0 {
		return s.repo.Get(ctx, claims.UserID)
	}
	return s.repo.Update(ctx, claims.UserID, patch)
}

type SettingsPatch struct {
	ScheduleReminders *bool
	MemberInvites     *bool
	TimeFormat        *TimeFormat
	ToastPosition     *string
}

func (s *Service) UpdateSettings(ctx context.Context, claims auth.Claims, p SettingsPatch) (User, error) {
	u, err := s.EnsureUser(ctx, claims)
	if err != nil {
		return User{}, err
	}

	next := u.Settings
	if p.ScheduleReminders != nil {
		next.Notifications.ScheduleReminders = *p.ScheduleReminders
	}
	if p.MemberInvites != nil {
		next.Notifications.MemberInvites = *p.MemberInvites
	}
	if p.TimeFormat != nil {
		if *p.TimeFormat != TimeFormat12h && *p.TimeFormat != TimeFormat24h {
			return User{}, ErrInvalidInput
		}
		next.TimeFormat = *p.TimeFormat
	}
	if p.ToastPosition != nil {
		if !slices.Contains(ToastPositions, *p.ToastPosition) {
			return User{}, ErrInvalidInput
		}
		next.ToastPosition = *p.ToastPosition
	}

	// settings se reescribe entero: el update del store solo mergea primer nivel
	fields, err := docstore.Encode(next)
	if err != nil {
		return User{}, err
	}
	return s.repo.Update(ctx, u.ID, map[string]any{"settings": fields})
}

// UploadAvatar sube la imagen a users/{uid}/avatar/ y borra la anterior si era nuestra.
func (s *Service) UploadAvatar(ctx context.Context, claims auth.Claims, f blobstore.File) (User, error) {
	u, err := s.EnsureUser(ctx, claims)
	if err != nil {
		return User{}, err
	}
	if s.blobs == nil {
		return User{}, fmt.Errorf("users: blob store not configured")
	}

	key := blobstore.NewKey(docstore.Join("users", u.ID, "avatar"), s.now(), f)
	obj, err := s.blobs.Put(ctx, key, f.Body, f.ContentType)
	metrics.ObserveBlobUpload(err)
	if err != nil {
		return User{}, err
	}

	updated, err := s.repo.Update(ctx, u.ID, map[string]any{"avatarUrl": obj.URL})
	if err != nil {
		return User{}, err
	}

	if prev, ok := s.blobs.KeyFromURL(u.AvatarURL); ok && prev != key {
		if err := s.blobs.Delete(ctx, prev); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			s.log.Warn("users: delete previous avatar", map[string]any{"user_id": u.ID, "key": prev, "error": err})
		}
	}
	return updated, nil
}
