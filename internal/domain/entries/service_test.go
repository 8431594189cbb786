package entries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	blobmem "pet-diary/internal/adapters/blob/memory"
	"pet-diary/internal/adapters/storage/memory"
	"pet-diary/internal/domain/members"
	"pet-diary/internal/ports/blobstore"
	"pet-diary/internal/ports/docstore"
)

const petID = "p1"

type fixture struct {
	store   docstore.Store
	blobs   *blobmem.Store
	members *members.Service
	svc     *Service
}

func newFixture(t *testing.T, store docstore.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	if store == nil {
		store = memory.NewStore()
	}

	mrepo := members.NewRepository(store)
	msvc := members.NewService(mrepo)
	if _, err := store.Create(ctx, docstore.Join("pets", petID), map[string]any{"name": "Milo", "ownerId": "A"}); err != nil {
		t.Fatalf("seed pet: %v", err)
	}
	if err := mrepo.Create(ctx, members.NewOwner(petID, "A", "a@example.com", time.Now())); err != nil {
		t.Fatalf("seed owner: %v", err)
	}

	blobs := blobmem.NewStore("", 4)
	return &fixture{
		store:   store,
		blobs:   blobs,
		members: msvc,
		svc:     NewService(NewRepository(store), msvc, blobs, nil),
	}
}

func (f *fixture) addMember(t *testing.T, userID string, role members.Role) members.Member {
	t.Helper()
	ctx := context.Background()
	email := strings.ToLower(userID) + "@example.com"
	inv, err := f.members.Invite(ctx, members.InviteInput{PetID: petID, CallerID: "A", Email: email, Role: role})
	if err != nil {
		t.Fatalf("Invite %s: %v", userID, err)
	}
	m, err := f.members.Accept(ctx, petID, inv.ID, userID, email)
	if err != nil {
		t.Fatalf("Accept %s: %v", userID, err)
	}
	return m
}

func diary(date string) CreateInput {
	return CreateInput{Type: TypeDiary, Title: "paseo " + date, Tags: []string{"walk"}, Date: date}
}

func seed(t *testing.T, svc *Service, n int) {
	t.Helper()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		if _, err := svc.Create(context.Background(), petID, "A", diary(start.AddDate(0, 0, i).Format(dateLayout))); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
}

func TestService_Create_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateInput
		want error
	}{
		{"no tags", CreateInput{Type: TypeDiary, Date: "2025-01-01", Tags: []string{" "}}, ErrInvalidInput},
		{"bad type", CreateInput{Type: "memo", Date: "2025-01-01", Tags: []string{"t"}}, ErrInvalidInput},
		{"bad date", CreateInput{Type: TypeDiary, Date: "01/01/2025", Tags: []string{"t"}}, ErrInvalidInput},
		{"bad time", CreateInput{Type: TypeDiary, Date: "2025-01-01", Time: "25:00", Tags: []string{"t"}}, ErrInvalidInput},
		{"range backwards", CreateInput{Type: TypeSchedule, TimeType: TimeRange, Date: "2025-01-02", EndDate: "2025-01-01", Tags: []string{"t"}}, ErrInvalidInput},
		{"range same day earlier", CreateInput{Type: TypeSchedule, TimeType: TimeRange, Date: "2025-01-02", Time: "10:00", EndTime: "09:00", Tags: []string{"t"}}, ErrInvalidInput},
		{"too many images", CreateInput{Type: TypeDiary, Date: "2025-01-01", Tags: []string{"t"}, ImageURLs: make([]string, 6)}, ErrTooManyImages},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Create(ctx, petID, "A", tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}

	e, err := f.svc.Create(ctx, petID, "A", CreateInput{
		Type:      TypeDiary,
		Tags:      []string{"walk", " walk ", "vet"},
		Date:      "2025-01-01",
		Completed: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.TimeType != TimePoint || e.IsCompleted || len(e.Tags) != 2 || e.CreatedBy != "A" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestService_NoPetSelected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, "", "A", diary("2025-01-01")); !errors.Is(err, ErrNoPetSelected) {
		t.Fatalf("Create: got %v", err)
	}
	if err := f.svc.Delete(ctx, " ", "e1", "A"); !errors.Is(err, ErrNoPetSelected) {
		t.Fatalf("Delete: got %v", err)
	}
	if _, err := f.svc.AttachImages(ctx, "", "e1", "A", nil); !errors.Is(err, ErrNoPetSelected) {
		t.Fatalf("AttachImages: got %v", err)
	}
}

func TestService_Permissions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.addMember(t, "V", members.RoleViewer)
	f.addMember(t, "E", members.RoleEditor)

	if _, err := f.svc.Create(ctx, petID, "V", diary("2025-01-01")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("viewer create: got %v", err)
	}
	if _, err := f.svc.ListPage(ctx, petID, "Z", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger list: got %v", err)
	}

	e, err := f.svc.Create(ctx, petID, "E", diary("2025-01-01"))
	if err != nil {
		t.Fatalf("editor create: %v", err)
	}
	if _, err := f.svc.Get(ctx, petID, e.ID, "V"); err != nil {
		t.Fatalf("viewer get: %v", err)
	}
	if err := f.svc.Delete(ctx, petID, e.ID, "V"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("viewer delete: got %v", err)
	}
}

func TestService_ListPage_Pagination(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seed(t, f.svc, 45)

	seen := map[string]bool{}
	var sizes []int
	cursor := ""
	for page := 0; ; page++ {
		res, err := f.svc.ListPage(ctx, petID, "A", cursor)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		sizes = append(sizes, len(res.Items))
		for _, e := range res.Items {
			if seen[e.ID] {
				t.Fatalf("entry %s repeated on page %d", e.ID, page)
			}
			seen[e.ID] = true
		}
		if page == 0 && res.Items[0].Date != "2025-02-14" {
			t.Fatalf("first page must start with most recent, got %s", res.Items[0].Date)
		}
		if !res.HasMore {
			if res.Next != "" {
				t.Fatalf("last page must not carry a cursor")
			}
			break
		}
		cursor = res.Next
	}

	if fmt.Sprint(sizes) != "[20 20 5]" {
		t.Fatalf("page sizes = %v", sizes)
	}
	if len(seen) != 45 {
		t.Fatalf("saw %d entries", len(seen))
	}

	if _, err := f.svc.ListPage(ctx, petID, "A", "not-a-cursor"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad cursor: got %v", err)
	}
}

func TestService_ListPage_OrdersByTimeWithinDay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, tm := range []string{"08:00", "", "21:30"} {
		in := diary("2025-03-01")
		in.Time = tm
		if _, err := f.svc.Create(ctx, petID, "A", in); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	res, err := f.svc.ListPage(ctx, petID, "A", "")
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	var got []string
	for _, e := range res.Items {
		got = append(got, e.Time)
	}
	if strings.Join(got, ",") != "21:30,08:00," {
		t.Fatalf("order within day = %q", got)
	}
}

func TestService_AttachImages_PartialSuccess(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, petID, "A", diary("2025-01-01"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.svc.now = func() time.Time { return time.UnixMilli(1000) }

	files := []blobstore.File{
		{Filename: "a.jpg", Body: strings.NewReader("ok")},
		{Filename: "b.jpg", Body: strings.NewReader("too large")},
		{Filename: "c.png", Body: strings.NewReader("ok")},
	}
	res, err := f.svc.AttachImages(ctx, petID, e.ID, "A", files)
	if err != nil {
		t.Fatalf("AttachImages: %v", err)
	}
	if res.Uploaded != 2 || res.Failed != 1 || len(res.Entry.ImageURLs) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Entry.ImageURLs[1] != f.blobs.URL("pets/p1/entries/1002.png") {
		t.Fatalf("unexpected key for third file: %v", res.Entry.ImageURLs)
	}

	// quedan 3 lugares: 4 archivos => 3 suben, 1 falla por cupo
	more := make([]blobstore.File, 4)
	for i := range more {
		more[i] = blobstore.File{Filename: "x.jpg", Body: strings.NewReader("ok")}
	}
	f.svc.now = func() time.Time { return time.UnixMilli(5000) }
	res, err = f.svc.AttachImages(ctx, petID, e.ID, "A", more)
	if err != nil {
		t.Fatalf("AttachImages: %v", err)
	}
	if res.Uploaded != 3 || res.Failed != 1 || len(res.Entry.ImageURLs) != MaxImages {
		t.Fatalf("unexpected result: %+v", res)
	}

	if _, err := f.svc.AttachImages(ctx, petID, e.ID, "A", more[:1]); !errors.Is(err, ErrTooManyImages) {
		t.Fatalf("full entry: got %v", err)
	}
}

func TestService_UpdateAndDelete_CleanUpBlobs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, petID, "A", diary("2025-01-01"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	res, err := f.svc.AttachImages(ctx, petID, e.ID, "A", []blobstore.File{
		{Filename: "a.jpg", Body: strings.NewReader("a")},
		{Filename: "b.jpg", Body: strings.NewReader("b")},
	})
	if err != nil || res.Uploaded != 2 {
		t.Fatalf("AttachImages: %+v %v", res, err)
	}

	keep := res.Entry.ImageURLs[:1]
	title := "nuevo"
	up, err := f.svc.Update(ctx, petID, e.ID, "A", UpdateInput{Title: &title, ImageURLs: &keep})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if up.Title != "nuevo" || len(up.ImageURLs) != 1 || up.Tags[0] != "walk" {
		t.Fatalf("unexpected update: %+v", up)
	}
	if f.blobs.Len() != 1 {
		t.Fatalf("removed image must be deleted, have %d", f.blobs.Len())
	}

	foreign := []string{"https://elsewhere/x.jpg"}
	if _, err := f.svc.Update(ctx, petID, e.ID, "A", UpdateInput{ImageURLs: &foreign}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("foreign image: got %v", err)
	}

	if err := f.svc.Delete(ctx, petID, e.ID, "A"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if f.blobs.Len() != 0 {
		t.Fatalf("blobs left after delete: %d", f.blobs.Len())
	}
	if _, err := f.svc.Get(ctx, petID, e.ID, "A"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
}

func TestService_SetCompleted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	d, _ := f.svc.Create(ctx, petID, "A", diary("2025-01-01"))
	if _, err := f.svc.SetCompleted(ctx, petID, d.ID, "A", true); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("diary complete: got %v", err)
	}

	s, err := f.svc.Create(ctx, petID, "A", CreateInput{Type: TypeSchedule, Tags: []string{"vet"}, Date: "2025-02-01", Time: "10:00"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s, err = f.svc.SetCompleted(ctx, petID, s.ID, "A", true)
	if err != nil || !s.IsCompleted {
		t.Fatalf("SetCompleted: %+v %v", s, err)
	}
}
