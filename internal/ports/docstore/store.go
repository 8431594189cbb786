package docstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	ErrInvalidPath   = errors.New("invalid document path")
)

// Document es un documento direccionable por path: "pets/{petId}/entries/{entryId}".
// CreateTime/UpdateTime los asigna el store, nunca el cliente.
type Document struct {
	ID     string
	Path   string
	Parent string // path de la colección, ej. "pets/p1/entries"

	Fields map[string]any

	CreateTime time.Time
	UpdateTime time.Time
}

// Store modela el document store remoto.
// Todas las escrituras de un único documento son atómicas; Commit aplica un batch completo o nada.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Create(ctx context.Context, path string, fields map[string]any) (Document, error)
	Set(ctx context.Context, path string, fields map[string]any) (Document, error)
	Update(ctx context.Context, path string, fields map[string]any) (Document, error)
	Delete(ctx context.Context, path string) error

	List(ctx context.Context, collection string, q Query) ([]Document, error)
	// ListGroup consulta todas las colecciones cuyo último segmento es group (ej. "members").
	ListGroup(ctx context.Context, group string, q Query) ([]Document, error)

	Commit(ctx context.Context, b *Batch) error
}

// Join arma un path a partir de segmentos.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Split separa un path de documento en (colección, id).
func Split(path string) (parent, id string, err error) {
	path = strings.Trim(strings.TrimSpace(path), "/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return "", "", ErrInvalidPath
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return "", "", ErrInvalidPath
		}
	}
	return strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1], nil
}

// ValidCollection valida un path de colección (cantidad impar de segmentos).
func ValidCollection(path string) bool {
	path = strings.Trim(strings.TrimSpace(path), "/")
	parts := strings.Split(path, "/")
	if len(parts)%2 != 1 {
		return false
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return false
		}
	}
	return true
}

// GroupOf devuelve el nombre del collection group (último segmento).
func GroupOf(collection string) string {
	i := strings.LastIndex(collection, "/")
	if i < 0 {
		return collection
	}
	return collection[i+1:]
}

// Merge aplica un update parcial sobre fields (solo claves de primer nivel).
func Merge(dst, patch map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(patch))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Clone copia superficialmente fields para no compartir el mapa con el caller.
func Clone(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
