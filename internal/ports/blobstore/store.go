package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
	ErrTooLarge   = errors.New("blob too large")
)

// Object es un blob ya almacenado; URL es pública y estable.
type Object struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Object, error)
	Delete(ctx context.Context, key string) error
	// URL arma la URL pública de key.
	URL(key string) string
	// KeyFromURL hace la inversa de URL; ok=false si la URL no pertenece a este store.
	KeyFromURL(url string) (key string, ok bool)
}

// File es un archivo recibido del cliente, antes de subirlo.
type File struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// NewKey arma "{prefix}/{epoch-millis}.{ext}".
func NewKey(prefix string, at time.Time, f File) string {
	return fmt.Sprintf("%s/%d.%s", strings.Trim(prefix, "/"), at.UnixMilli(), Ext(f))
}

// Ext deduce la extensión por nombre de archivo o content type; "bin" si no hay pista.
func Ext(f File) string {
	if e := strings.TrimPrefix(strings.ToLower(path.Ext(f.Filename)), "."); e != "" {
		return e
	}
	switch strings.ToLower(strings.TrimSpace(f.ContentType)) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	}
	if exts, _ := mime.ExtensionsByType(f.ContentType); len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "bin"
}

func ValidKey(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return false
	}
	return true
}
