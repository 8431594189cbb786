package users

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	blobmem "pet-diary/internal/adapters/blob/memory"
	"pet-diary/internal/adapters/storage/memory"
	"pet-diary/internal/ports/auth"
	"pet-diary/internal/ports/blobstore"
)

func newTestService(t *testing.T) (*Service, *blobmem.Store) {
	t.Helper()
	blobs := blobmem.NewStore("", 0)
	svc := NewService(NewRepository(memory.NewStore()), blobs, nil)
	return svc, blobs
}

func TestService_EnsureUser_CreatesLazily(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	claims := auth.Claims{UserID: "u1", Email: "Ana@Example.com"}

	u, err := svc.EnsureUser(ctx, claims)
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if u.ID != "u1" || u.Email != "ana@example.com" || u.DisplayName != "Ana" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.Settings != DefaultSettings() {
		t.Fatalf("expected default settings, got %+v", u.Settings)
	}

	nick := "Anita"
	if _, err := svc.UpdateProfile(ctx, claims, ProfilePatch{Nickname: &nick}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	// segunda llamada no pisa lo guardado
	again, err := svc.EnsureUser(ctx, claims)
	if err != nil || again.Nickname != "Anita" || !again.CreatedAt.Equal(u.CreatedAt) {
		t.Fatalf("EnsureUser must be idempotent: %+v %v", again, err)
	}

	if _, err := svc.EnsureUser(ctx, auth.Claims{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestService_UpdateSettings_Partial(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	claims := auth.Claims{UserID: "u1"}

	off := false
	tf := TimeFormat12h
	u, err := svc.UpdateSettings(ctx, claims, SettingsPatch{MemberInvites: &off, TimeFormat: &tf})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	want := DefaultSettings()
	want.Notifications.MemberInvites = false
	want.TimeFormat = TimeFormat12h
	if u.Settings != want {
		t.Fatalf("got %+v, want %+v", u.Settings, want)
	}

	bad := "middle"
	if _, err := svc.UpdateSettings(ctx, claims, SettingsPatch{ToastPosition: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestService_UploadAvatar_ReplacesPrevious(t *testing.T) {
	svc, blobs := newTestService(t)
	ctx := context.Background()
	claims := auth.Claims{UserID: "u1"}

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return now }

	u, err := svc.UploadAvatar(ctx, claims, blobstore.File{Filename: "me.png", Body: strings.NewReader("png")})
	if err != nil {
		t.Fatalf("UploadAvatar: %v", err)
	}
	wantKey := "users/u1/avatar/" + "1735787045000" + ".png"
	if u.AvatarURL != blobs.URL(wantKey) {
		t.Fatalf("unexpected avatar url %q", u.AvatarURL)
	}

	now = now.Add(time.Second)
	u, err = svc.UploadAvatar(ctx, claims, blobstore.File{ContentType: "image/jpeg", Body: strings.NewReader("jpg")})
	if err != nil {
		t.Fatalf("second UploadAvatar: %v", err)
	}
	if !strings.HasSuffix(u.AvatarURL, ".jpg") {
		t.Fatalf("unexpected avatar url %q", u.AvatarURL)
	}
	if blobs.Len() != 1 {
		t.Fatalf("previous avatar must be deleted, have %d blobs", blobs.Len())
	}
}
