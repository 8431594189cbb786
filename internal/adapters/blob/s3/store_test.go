package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeS3 acepta PUT/DELETE path-style y guarda lo recibido.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	ctypes  map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = string(b)
		f.ctypes[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestStore_PutDeleteAgainstEndpoint(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{}, ctypes: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	st, err := New(context.Background(), Options{
		Bucket:          "pet-diary",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		MaxUploadBytes:  1 << 20,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	obj, err := st.Put(context.Background(), "pets/p1/avatar/1700000000000.png", strings.NewReader("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if obj.URL != srv.URL+"/pet-diary/pets/p1/avatar/1700000000000.png" {
		t.Fatalf("unexpected url: %s", obj.URL)
	}

	const objPath = "/pet-diary/pets/p1/avatar/1700000000000.png"
	fake.mu.Lock()
	body, ctype := fake.objects[objPath], fake.ctypes[objPath]
	fake.mu.Unlock()
	if body != "png-bytes" || ctype != "image/png" {
		t.Fatalf("object not stored path-style: body=%q ctype=%q", body, ctype)
	}

	key, ok := st.KeyFromURL(obj.URL)
	if !ok || key != "pets/p1/avatar/1700000000000.png" {
		t.Fatalf("KeyFromURL = %q, %v", key, ok)
	}

	if err := st.Delete(context.Background(), key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	fake.mu.Lock()
	_, still := fake.objects[objPath]
	fake.mu.Unlock()
	if still {
		t.Fatalf("object not deleted")
	}
}

func TestStore_KeyFromURL_ForeignURL(t *testing.T) {
	st := newStore(nil, Options{Bucket: "b", PublicBaseURL: "https://cdn.test/b/"}, "us-east-1")

	if _, ok := st.KeyFromURL("https://other.test/b/x.png"); ok {
		t.Fatalf("foreign url must not map to a key")
	}
	if key, ok := st.KeyFromURL("https://cdn.test/b/users/u1/avatar/1.jpg?v=2"); !ok || key != "users/u1/avatar/1.jpg" {
		t.Fatalf("KeyFromURL = %q, %v", key, ok)
	}
}
