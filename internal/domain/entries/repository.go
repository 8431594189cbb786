package entries

import (
	"context"
	"errors"

	"pet-diary/internal/ports/docstore"
)

// Page es una página del listado; Next apunta al último item devuelto.
type Page struct {
	Items   []Entry
	Next    *docstore.Cursor
	HasMore bool
}

type Repository interface {
	Create(ctx context.Context, e Entry) (Entry, error)
	Get(ctx context.Context, petID, id string) (Entry, error)
	Update(ctx context.Context, petID, id string, patch map[string]any) (Entry, error)
	Delete(ctx context.Context, petID, id string) error
	// Page lista por fecha desc, hora desc; size+1 para saber si hay más.
	Page(ctx context.Context, petID string, size int, after *docstore.Cursor) (Page, error)
}

func Collection(petID string) string {
	return docstore.Join("pets", petID, "entries")
}

func Path(petID, id string) string {
	return docstore.Join(Collection(petID), id)
}

var listOrder = []docstore.Order{
	{Field: "date", Desc: true},
	{Field: "time", Desc: true},
}

type entryDoc struct {
	Type        Type     `json:"type"`
	TimeType    TimeType `json:"timeType"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Tags        []string `json:"tags"`
	ImageURLs   []string `json:"imageUrls"`
	Date        string   `json:"date"`
	Time        string   `json:"time"`
	EndDate     string   `json:"endDate"`
	EndTime     string   `json:"endTime"`
	FriendIDs   []string `json:"friendIds"`
	IsCompleted bool     `json:"isCompleted"`
	CreatedBy   string   `json:"createdBy"`
}

// Fields serializa e completo; Update lo usa para reescribir todos los campos.
func Fields(e Entry) (map[string]any, error) {
	return docstore.Encode(entryDoc{
		Type:        e.Type,
		TimeType:    e.TimeType,
		Title:       e.Title,
		Body:        e.Body,
		Tags:        nonNil(e.Tags),
		ImageURLs:   nonNil(e.ImageURLs),
		Date:        e.Date,
		Time:        e.Time,
		EndDate:     e.EndDate,
		EndTime:     e.EndTime,
		FriendIDs:   nonNil(e.FriendIDs),
		IsCompleted: e.IsCompleted,
		CreatedBy:   e.CreatedBy,
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type DocRepository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) *DocRepository {
	return &DocRepository{store: store}
}

var _ Repository = (*DocRepository)(nil)

func (r *DocRepository) Create(ctx context.Context, e Entry) (Entry, error) {
	fields, err := Fields(e)
	if err != nil {
		return Entry{}, err
	}
	d, err := r.store.Create(ctx, Path(e.PetID, e.ID), fields)
	if err != nil {
		return Entry{}, mapErr(err)
	}
	return fromDoc(e.PetID, d)
}

func (r *DocRepository) Get(ctx context.Context, petID, id string) (Entry, error) {
	d, err := r.store.Get(ctx, Path(petID, id))
	if err != nil {
		return Entry{}, mapErr(err)
	}
	return fromDoc(petID, d)
}

func (r *DocRepository) Update(ctx context.Context, petID, id string, patch map[string]any) (Entry, error) {
	d, err := r.store.Update(ctx, Path(petID, id), patch)
	if err != nil {
		return Entry{}, mapErr(err)
	}
	return fromDoc(petID, d)
}

func (r *DocRepository) Delete(ctx context.Context, petID, id string) error {
	return mapErr(r.store.Delete(ctx, Path(petID, id)))
}

func (r *DocRepository) Page(ctx context.Context, petID string, size int, after *docstore.Cursor) (Page, error) {
	if size <= 0 {
		size = PageSize
	}
	docs, err := r.store.List(ctx, Collection(petID), docstore.Query{
		OrderBy:    listOrder,
		Limit:      size + 1,
		StartAfter: after,
	})
	if err != nil {
		return Page{}, err
	}

	p := Page{Items: make([]Entry, 0, size)}
	if len(docs) > size {
		p.HasMore = true
		docs = docs[:size]
	}
	for _, d := range docs {
		e, err := fromDoc(petID, d)
		if err != nil {
			return Page{}, err
		}
		p.Items = append(p.Items, e)
	}
	if len(docs) > 0 {
		p.Next = docstore.CursorOf(docs[len(docs)-1], listOrder)
	}
	return p, nil
}

func fromDoc(petID string, d docstore.Document) (Entry, error) {
	var ed entryDoc
	if err := docstore.Decode(d, &ed); err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:          d.ID,
		PetID:       petID,
		Type:        ed.Type,
		TimeType:    ed.TimeType,
		Title:       ed.Title,
		Body:        ed.Body,
		Tags:        ed.Tags,
		ImageURLs:   ed.ImageURLs,
		Date:        ed.Date,
		Time:        ed.Time,
		EndDate:     ed.EndDate,
		EndTime:     ed.EndTime,
		FriendIDs:   ed.FriendIDs,
		IsCompleted: ed.IsCompleted,
		CreatedBy:   ed.CreatedBy,
		CreatedAt:   d.CreateTime,
		UpdatedAt:   d.UpdateTime,
	}, nil
}

func mapErr(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
