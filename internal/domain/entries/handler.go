package entries

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pet-diary/internal/middleware"
	"pet-diary/internal/platform/httpx"
	"pet-diary/internal/ports/auth"
	"pet-diary/internal/ports/blobstore"
	"pet-diary/internal/realtime"
)

func RegisterRoutes(r chi.Router, svc *Service, streams *realtime.Streams, maxUploadBytes int64) {
	r.Route("/pets/{petID}/entries", func(er chi.Router) {
		er.Get("/", listEntriesHandler(svc))
		er.Post("/", createEntryHandler(svc))
		er.Get("/stream", streamEntriesHandler(svc, streams))

		er.Get("/{entryID}", getEntryHandler(svc))
		er.Patch("/{entryID}", updateEntryHandler(svc))
		er.Delete("/{entryID}", deleteEntryHandler(svc))
		er.Post("/{entryID}/complete", completeEntryHandler(svc))
		er.Post("/{entryID}/images", attachImagesHandler(svc, maxUploadBytes))
	})
}

type createEntryRequest struct {
	Type        Type     `json:"type" validate:"required,oneof=diary schedule"`
	TimeType    TimeType `json:"timeType" validate:"omitempty,oneof=point range"`
	Title       string   `json:"title" validate:"max=200"`
	Body        string   `json:"body" validate:"max=10000"`
	Tags        []string `json:"tags" validate:"required,min=1,max=20,dive,required,max=40"`
	Date        string   `json:"date" validate:"required,datetime=2006-01-02"`
	Time        string   `json:"time" validate:"omitempty,datetime=15:04"`
	EndDate     string   `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	EndTime     string   `json:"endTime" validate:"omitempty,datetime=15:04"`
	FriendIDs   []string `json:"friendIds" validate:"max=50"`
	IsCompleted bool     `json:"isCompleted"`
}

type updateEntryRequest struct {
	Type        *Type     `json:"type" validate:"omitempty,oneof=diary schedule"`
	TimeType    *TimeType `json:"timeType" validate:"omitempty,oneof=point range"`
	Title       *string   `json:"title" validate:"omitempty,max=200"`
	Body        *string   `json:"body" validate:"omitempty,max=10000"`
	Tags        *[]string `json:"tags" validate:"omitempty,min=1,max=20"`
	ImageURLs   *[]string `json:"imageUrls" validate:"omitempty,max=5"`
	Date        *string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time        *string   `json:"time"`
	EndDate     *string   `json:"endDate"`
	EndTime     *string   `json:"endTime"`
	FriendIDs   *[]string `json:"friendIds" validate:"omitempty,max=50"`
	IsCompleted *bool     `json:"isCompleted"`
}

type completeRequest struct {
	Completed *bool `json:"completed" validate:"required"`
}

type entryResponse struct {
	ID          string    `json:"id"`
	PetID       string    `json:"petId"`
	Type        Type      `json:"type"`
	TimeType    TimeType  `json:"timeType"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Tags        []string  `json:"tags"`
	ImageURLs   []string  `json:"imageUrls"`
	Date        string    `json:"date"`
	Time        string    `json:"time,omitempty"`
	EndDate     string    `json:"endDate,omitempty"`
	EndTime     string    `json:"endTime,omitempty"`
	FriendIDs   []string  `json:"friendIds"`
	IsCompleted bool      `json:"isCompleted"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type pageResponse struct {
	Items   []entryResponse `json:"items"`
	Next    string          `json:"next,omitempty"`
	HasMore bool            `json:"hasMore"`
}

type attachResponse struct {
	Uploaded int           `json:"uploaded"`
	Failed   int           `json:"failed"`
	Entry    entryResponse `json:"entry"`
}

func claimsOf(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return auth.Claims{}, false
	}
	return claims, true
}

// listEntriesHandler godoc
// @Summary Entradas de la mascota
// @Description Página de 20 entradas ordenadas por fecha y hora descendente. Pasar next como cursor para la siguiente.
// @Tags entries
// @Produce json
// @Param petID path string true "ID de la mascota"
// @Param cursor query string false "Cursor devuelto en next"
// @Success 200 {object} pageResponse
// @Failure 400 {string} string "invalid input"
// @Failure 403 {string} string "forbidden"
// @Router /pets/{petID}/entries [get]
func listEntriesHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsOf(w, r)
		if !ok {
			return
		}

		res, err := svc.ListPage(r.Context(), chi.URLParam(r, "petID"), claims.UserID, r.URL.Query().Get("cursor"))
		if err != nil {
			writeError(w, err)
			return
		}
		out := pageResponse{Items: toEntryResponses(res.Items), Next: res.Next, HasMore: res.HasMore}
		httpx.WriteJSON(w, http.StatusOK, out)
	}
}

// createEntryHandler godoc
// @Summary Crear entrada
// @Tags entries
// @Accept json
// @Produce json
// @Param petID path string true "ID de la mascota"
// @Param payload body createEntryRequest true "Entrada; tags no puede ir vacío"
// @Success 201 {object} entryResponse
// @Failure 400 {string} string "invalid input"
// @Failure 403 {string} string "forbidden"
// @Router /pets/{petID}/entries [post]
func createEntryHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsOf(w, r)
		if !ok {
			return
		}

		var req createEntryRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDecodeError(w, err)
			return
		}

		e, err := svc.Create(r.Context(), chi.URLParam(r, "petID"), claims.UserID, CreateInput{
			Type:      req.Type,
			TimeType:  req.TimeType,
			Title:     req.Title,
			Body:      req.Body,
			Tags:      req.Tags,
			Date:      req.Date,
			Time:      req.Time,
			EndDate:   req.EndDate,
			EndTime:   req.EndTime,
			FriendIDs: req.FriendIDs,
			Completed: req.IsCompleted,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, toEntryResponse(e))
	}
}

func getEntryHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsOf(w, r)
		if !ok {
			return
		}
		e, err := svc.Get(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "entryID"), claims.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toEntryResponse(e))
	}
}

func updateEntryHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsOf(w, r)
		if !ok {
			return
		}

		var req updateEntryRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDecodeError(w, err)
			return
		}

		e, err := svc.Update(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "entryID"), claims.UserID, UpdateInput{
			Type:      req.Type,
			TimeType:  req.TimeType,
			Title:     req.Title,
			Body:      req.Body,
			Tags:      req.Tags,
			ImageURLs: req.ImageURLs,
			Date:      req.Date,
			Time:      req.Time,
			EndDate:   req.EndDate,
			EndTime:   req.EndTime,
			FriendIDs: req.FriendIDs,
			Completed: req.IsCompleted,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toEntryResponse(e))
	}
}

func deleteEntryHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsOf(w, r)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "entryID"), claims.UserID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func completeEntryHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsOf(w, r)
		if !ok {
			return
		}

		var req completeRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDecodeError(w, err)
			return
		}

		e, err := svc.SetCompleted(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "entryID"), claims.UserID, *req.Completed)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toEntryResponse(e))
	}
}

// attachImagesHandler godoc
// @Summary Adjuntar imágenes
// @Description Sube cada archivo por separado; responde cuántos se subieron y cuántos fallaron. Máximo 5 imágenes por entrada.
// @Tags entries
// @Accept multipart/form-data
// @Produce json
// @Param petID path string true "ID de la mascota"
// @Param entryID path string true "ID de la entrada"
// @Param files formData file true "Imágenes (campo repetible)"
// @Success 200 {object} attachResponse
// @Failure 409 {string} string "too many images"
// @Router /pets/{petID}/entries/{entryID}/images [post]
func attachImagesHandler(svc *Service, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsOf(w, r)
		if !ok {
			return
		}

		files, cleanup, err := httpx.FormFiles(w, r, "files", maxUploadBytes)
		if err != nil {
			http.Error(w, "files required", http.StatusBadRequest)
			return
		}
		defer cleanup()

		res, err := svc.AttachImages(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "entryID"), claims.UserID, files)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, attachResponse{
			Uploaded: res.Uploaded,
			Failed:   res.Failed,
			Entry:    toEntryResponse(res.Entry),
		})
	}
}

// streamEntriesHandler abre el Feed por WebSocket; el cliente pide más páginas con {"type":"load_more"}.
func streamEntriesHandler(svc *Service, streams *realtime.Streams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsOf(w, r)
		if !ok {
			return
		}
		if !streams.Enabled() {
			http.Error(w, "streams disabled", http.StatusNotImplemented)
			return
		}

		feed, err := svc.Feed(r.Context(), streams.Hub, chi.URLParam(r, "petID"), claims.UserID, renderView)
		if err != nil {
			if errors.Is(err, realtime.ErrHubClosed) {
				http.Error(w, "shutting down", http.StatusServiceUnavailable)
				return
			}
			writeError(w, err)
			return
		}
		streams.ServeSource(w, r, feed)
	}
}

func renderView(v View) any {
	return pageResponse{Items: toEntryResponses(v.Items), HasMore: v.HasMore}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoPetSelected):
		http.Error(w, "no pet selected", http.StatusBadRequest)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, blobstore.ErrInvalidKey):
		http.Error(w, "invalid input", http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "entry not found", http.StatusNotFound)
	case errors.Is(err, ErrTooManyImages):
		http.Error(w, "too many images", http.StatusConflict)
	case errors.Is(err, blobstore.ErrTooLarge):
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toEntryResponses(items []Entry) []entryResponse {
	out := make([]entryResponse, 0, len(items))
	for _, e := range items {
		out = append(out, toEntryResponse(e))
	}
	return out
}

func toEntryResponse(e Entry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		PetID:       e.PetID,
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
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
