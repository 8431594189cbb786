package entries

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"pet-diary/internal/domain/members"
	"pet-diary/internal/platform/logger"
	"pet-diary/internal/platform/metrics"
	"pet-diary/internal/ports/blobstore"
	"pet-diary/internal/ports/docstore"
)

var (
	ErrNoPetSelected = errors.New("entries: no pet selected")
	ErrInvalidInput  = errors.New("invalid input")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("entry not found")
	ErrTooManyImages = errors.New("entries: too many images")
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

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

// access valida pet y membresía; edit exige canEdit.
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

type CreateInput struct {
	Type      Type
	TimeType  TimeType
	Title     string
	Body      string
	Tags      []string
	ImageURLs []string
	Date      string
	Time      string
	EndDate   string
	EndTime   string
	FriendIDs []string
	Completed bool
}

func (s *Service) Create(ctx context.Context, petID, userID string, in CreateInput) (Entry, error) {
	if err := s.access(ctx, petID, userID, true); err != nil {
		return Entry{}, err
	}

	e := Entry{
		ID:          uuid.NewString(),
		PetID:       petID,
		Type:        in.Type,
		TimeType:    in.TimeType,
		Title:       strings.TrimSpace(in.Title),
		Body:        in.Body,
		Tags:        in.Tags,
		ImageURLs:   in.ImageURLs,
		Date:        strings.TrimSpace(in.Date),
		Time:        strings.TrimSpace(in.Time),
		EndDate:     strings.TrimSpace(in.EndDate),
		EndTime:     strings.TrimSpace(in.EndTime),
		FriendIDs:   in.FriendIDs,
		IsCompleted: in.Completed,
		CreatedBy:   userID,
	}
	if err := normalize(&e); err != nil {
		return Entry{}, err
	}
	return s.repo.Create(ctx, e)
}

// normalize aplica defaults y valida la entrada completa.
func normalize(e *Entry) error {
	if e.TimeType == "" {
		e.TimeType = TimePoint
	}
	switch e.Type {
	case TypeDiary:
		e.IsCompleted = false
	case TypeSchedule:
	default:
		return fmt.Errorf("%w: type", ErrInvalidInput)
	}

	e.Tags = cleanSet(e.Tags)
	if len(e.Tags) == 0 {
		return fmt.Errorf("%w: tags required", ErrInvalidInput)
	}
	e.FriendIDs = cleanSet(e.FriendIDs)
	if len(e.ImageURLs) > MaxImages {
		return ErrTooManyImages
	}

	if _, err := time.Parse(dateLayout, e.Date); err != nil {
		return fmt.Errorf("%w: date", ErrInvalidInput)
	}
	if e.Time != "" {
		if _, err := time.Parse(timeLayout, e.Time); err != nil {
			return fmt.Errorf("%w: time", ErrInvalidInput)
		}
	}

	switch e.TimeType {
	case TimePoint:
		e.EndDate, e.EndTime = "", ""
	case TimeRange:
		if e.EndDate == "" {
			e.EndDate = e.Date
		}
		if _, err := time.Parse(dateLayout, e.EndDate); err != nil {
			return fmt.Errorf("%w: endDate", ErrInvalidInput)
		}
		if e.EndTime != "" {
			if _, err := time.Parse(timeLayout, e.EndTime); err != nil {
				return fmt.Errorf("%w: endTime", ErrInvalidInput)
			}
		}
		if e.EndDate < e.Date || (e.EndTime != "" && e.end() < e.start()) {
			return fmt.Errorf("%w: range ends before it starts", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: timeType", ErrInvalidInput)
	}
	return nil
}

// cleanSet recorta, descarta vacíos y deduplica manteniendo el orden.
func cleanSet(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func (s *Service) Get(ctx context.Context, petID, id, userID string) (Entry, error) {
	if err := s.access(ctx, petID, userID, false); err != nil {
		return Entry{}, err
	}
	return s.repo.Get(ctx, petID, id)
}

// PageResult es Page con el cursor ya serializado para el cliente.
type PageResult struct {
	Items   []Entry
	Next    string
	HasMore bool
}

// ListPage devuelve la página que sigue a cursor ("" = primera).
func (s *Service) ListPage(ctx context.Context, petID, userID, cursor string) (PageResult, error) {
	if err := s.access(ctx, petID, userID, false); err != nil {
		return PageResult{}, err
	}
	after, err := DecodeCursor(cursor)
	if err != nil {
		return PageResult{}, err
	}
	p, err := s.repo.Page(ctx, petID, PageSize, after)
	if err != nil {
		return PageResult{}, err
	}
	return toResult(p)
}

func toResult(p Page) (PageResult, error) {
	res := PageResult{Items: p.Items, HasMore: p.HasMore}
	if p.HasMore && p.Next != nil {
		next, err := EncodeCursor(p.Next)
		if err != nil {
			return PageResult{}, err
		}
		res.Next = next
	}
	return res, nil
}

func EncodeCursor(c *docstore.Cursor) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func DecodeCursor(s string) (*docstore.Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: cursor", ErrInvalidInput)
	}
	var c docstore.Cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.ID == "" || len(c.Values) != len(listOrder) {
		return nil, fmt.Errorf("%w: cursor", ErrInvalidInput)
	}
	return &c, nil
}

// UpdateInput: nil = no tocar. ImageURLs solo puede quitar imágenes, nunca agregar.
type UpdateInput struct {
	Type      *Type
	TimeType  *TimeType
	Title     *string
	Body      *string
	Tags      *[]string
	ImageURLs *[]string
	Date      *string
	Time      *string
	EndDate   *string
	EndTime   *string
	FriendIDs *[]string
	Completed *bool
}

func (s *Service) Update(ctx context.Context, petID, id, userID string, in UpdateInput) (Entry, error) {
	if err := s.access(ctx, petID, userID, true); err != nil {
		return Entry{}, err
	}
	cur, err := s.repo.Get(ctx, petID, id)
	if err != nil {
		return Entry{}, err
	}

	e := cur
	set(&e.Type, in.Type)
	set(&e.TimeType, in.TimeType)
	set(&e.Title, in.Title)
	set(&e.Body, in.Body)
	set(&e.Tags, in.Tags)
	set(&e.Date, in.Date)
	set(&e.Time, in.Time)
	set(&e.EndDate, in.EndDate)
	set(&e.EndTime, in.EndTime)
	set(&e.FriendIDs, in.FriendIDs)
	set(&e.IsCompleted, in.Completed)
	e.Title = strings.TrimSpace(e.Title)

	var removed []string
	if in.ImageURLs != nil {
		keep := *in.ImageURLs
		for _, u := range keep {
			if !slices.Contains(cur.ImageURLs, u) {
				return Entry{}, fmt.Errorf("%w: unknown image %q", ErrInvalidInput, u)
			}
		}
		for _, u := range cur.ImageURLs {
			if !slices.Contains(keep, u) {
				removed = append(removed, u)
			}
		}
		e.ImageURLs = keep
	}

	if err := normalize(&e); err != nil {
		return Entry{}, err
	}
	fields, err := Fields(e)
	if err != nil {
		return Entry{}, err
	}
	updated, err := s.repo.Update(ctx, petID, id, fields)
	if err != nil {
		return Entry{}, err
	}
	s.deleteBlobs(ctx, removed)
	return updated, nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// SetCompleted marca un evento agendado; en un diary no aplica.
func (s *Service) SetCompleted(ctx context.Context, petID, id, userID string, done bool) (Entry, error) {
	if err := s.access(ctx, petID, userID, true); err != nil {
		return Entry{}, err
	}
	cur, err := s.repo.Get(ctx, petID, id)
	if err != nil {
		return Entry{}, err
	}
	if cur.Type != TypeSchedule {
		return Entry{}, fmt.Errorf("%w: only schedule entries can be completed", ErrInvalidInput)
	}
	if cur.IsCompleted == done {
		return cur, nil
	}
	return s.repo.Update(ctx, petID, id, map[string]any{"isCompleted": done})
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
	s.deleteBlobs(ctx, cur.ImageURLs)
	return nil
}

// AttachImages sube cada archivo por separado. Los que no entran en el cupo
// de MaxImages o fallan al subir se cuentan en Failed.
func (s *Service) AttachImages(ctx context.Context, petID, id, userID string, files []blobstore.File) (AttachResult, error) {
	if err := s.access(ctx, petID, userID, true); err != nil {
		return AttachResult{}, err
	}
	if s.blobs == nil {
		return AttachResult{}, fmt.Errorf("entries: blob store not configured")
	}
	cur, err := s.repo.Get(ctx, petID, id)
	if err != nil {
		return AttachResult{}, err
	}

	free := MaxImages - len(cur.ImageURLs)
	if free <= 0 {
		return AttachResult{}, ErrTooManyImages
	}

	res := AttachResult{Entry: cur}
	if len(files) > free {
		res.Failed = len(files) - free
		files = files[:free]
	}

	prefix := Collection(petID)
	at := s.now()
	urls := make([]string, 0, len(files))
	for i, f := range files {
		key := blobstore.NewKey(prefix, at.Add(time.Duration(i)*time.Millisecond), f)
		obj, err := s.blobs.Put(ctx, key, f.Body, f.ContentType)
		metrics.ObserveBlobUpload(err)
		if err != nil {
			s.log.Warn("entries: upload image", map[string]any{"key": key, "error": err})
			res.Failed++
			continue
		}
		urls = append(urls, obj.URL)
	}
	res.Uploaded = len(urls)
	if len(urls) == 0 {
		return res, nil
	}

	updated, err := s.repo.Update(ctx, petID, id, map[string]any{
		"imageUrls": toAny(append(slices.Clone(cur.ImageURLs), urls...)),
	})
	if err != nil {
		// el doc no apunta a ellos: no dejar huérfanos
		s.deleteBlobs(ctx, urls)
		return AttachResult{}, err
	}
	res.Entry = updated
	return res, nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, v := range ss {
		out[i] = v
	}
	return out
}

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
			s.log.Warn("entries: delete blob", map[string]any{"key": key, "error": err})
		}
	}
}
