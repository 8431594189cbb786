// Package httpx junta los helpers JSON/multipart que antes se duplicaban en cada handler.
package httpx

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"pet-diary/internal/platform/validation"
	"pet-diary/internal/ports/blobstore"
)

const (
	defaultMaxBody        = 1 << 20
	DefaultMaxUploadBytes = 10 << 20
)

var (
	ErrInvalidJSON = errors.New("invalid json")
	ErrNoFiles     = errors.New("no files")
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error  string                  `json:"error"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

// DecodeJSON lee el body (desconoce campos extra) y valida los tags `validate`.
// Devuelve ErrInvalidJSON o *validation.RequestValidationError.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, defaultMaxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return ErrInvalidJSON
	}
	return validation.Struct(v)
}

// WriteDecodeError responde 400 para los errores de DecodeJSON.
func WriteDecodeError(w http.ResponseWriter, err error) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		WriteJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: verr.Fields})
		return
	}
	WriteJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
}

// FormFiles parsea un multipart y devuelve los archivos del campo field.
// cleanup libera los temporales del multipart; llamarlo siempre que err == nil.
func FormFiles(w http.ResponseWriter, r *http.Request, field string, maxBytes int64) (files []blobstore.File, cleanup func(), err error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, nil, err
	}

	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		_ = r.MultipartForm.RemoveAll()
		return nil, nil, ErrNoFiles
	}

	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
		_ = r.MultipartForm.RemoveAll()
	}

	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		opened = append(opened, f)
		files = append(files, blobstore.File{
			Filename:    h.Filename,
			ContentType: strings.TrimSpace(h.Header.Get("Content-Type")),
			Body:        f,
		})
	}
	return files, closeAll, nil
}
