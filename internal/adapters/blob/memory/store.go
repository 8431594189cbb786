package memory

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"pet-diary/internal/ports/blobstore"
)

const defaultBaseURL = "http://localhost:8080/blobs"

// Store guarda blobs en memoria (dev y tests).
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string
	maxSize int64

	// FailKeys fuerza error en Put para keys con ese prefijo (tests de uploads parciales).
	FailKeys []string
}

type object struct {
	data        []byte
	contentType string
}

func NewStore(baseURL string, maxSize int64) *Store {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Store{
		objects: map[string]object{},
		baseURL: strings.TrimRight(baseURL, "/"),
		maxSize: maxSize,
	}
}

var _ blobstore.Store = (*Store)(nil)

func (s *Store) Put(ctx context.Context, key string, r io.Reader, contentType string) (blobstore.Object, error) {
	if !blobstore.ValidKey(key) {
		return blobstore.Object{}, blobstore.ErrInvalidKey
	}
	for _, p := range s.FailKeys {
		if strings.HasPrefix(key, p) {
			return blobstore.Object{}, io.ErrUnexpectedEOF
		}
	}

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return blobstore.Object{}, err
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return blobstore.Object{}, blobstore.ErrTooLarge
	}

	s.mu.Lock()
	s.objects[key] = object{data: data, contentType: contentType}
	s.mu.Unlock()

	return blobstore.Object{Key: key, URL: s.URL(key), ContentType: contentType, Size: int64(len(data))}, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; !ok {
		return blobstore.ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

func (s *Store) URL(key string) string {
	return s.baseURL + "/" + key
}

func (s *Store) KeyFromURL(url string) (string, bool) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

// Open devuelve el contenido de key; lo usa el handler de /blobs en modo dev.
func (s *Store) Open(key string) (io.Reader, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.objects[key]
	if !ok {
		return nil, "", false
	}
	return bytes.NewReader(o.data), o.contentType, true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
