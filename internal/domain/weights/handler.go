package weights

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pet-diary/internal/middleware"
	"pet-diary/internal/platform/httpx"
	"pet-diary/internal/realtime"
)

func RegisterRoutes(r chi.Router, svc *Service, streams *realtime.Streams) {
	r.Route("/pets/{petID}/weights", func(wr chi.Router) {
		wr.Get("/", listWeightsHandler(svc))
		wr.Post("/", createWeightHandler(svc))
		wr.Get("/stream", streamWeightsHandler(svc, streams))
		wr.Patch("/{weightID}", updateWeightHandler(svc))
		wr.Delete("/{weightID}", deleteWeightHandler(svc))
	})
}

type createWeightRequest struct {
	Value float64 `json:"value" validate:"required,gt=0"`
	Unit  Unit    `json:"unit" validate:"omitempty,oneof=kg g"`
	Date  string  `json:"date" validate:"required,datetime=2006-01-02"`
}

type updateWeightRequest struct {
	Value *float64 `json:"value" validate:"omitempty,gt=0"`
	Unit  *Unit    `json:"unit" validate:"omitempty,oneof=kg g"`
	Date  *string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type weightResponse struct {
	ID        string    `json:"id"`
	Value     float64   `json:"value"`
	Unit      Unit      `json:"unit"`
	Kilograms float64   `json:"kg"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return claims.UserID, true
}

// listWeightsHandler godoc
// @Summary Historial de peso
// @Description Ordenado por fecha desc y, en el mismo día, por carga más reciente.
// @Tags weights
// @Produce json
// @Param petID path string true "ID de la mascota"
// @Success 200 {array} weightResponse
// @Router /pets/{petID}/weights [get]
func listWeightsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		items, err := svc.List(r.Context(), chi.URLParam(r, "petID"), uid)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toWeightResponses(items))
	}
}

func createWeightHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		var req createWeightRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDecodeError(w, err)
			return
		}
		wt, err := svc.Create(r.Context(), chi.URLParam(r, "petID"), uid, req.Value, req.Unit, req.Date)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, toWeightResponse(wt))
	}
}

func updateWeightHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		var req updateWeightRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDecodeError(w, err)
			return
		}
		wt, err := svc.Update(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "weightID"), uid, req.Value, req.Unit, req.Date)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toWeightResponse(wt))
	}
}

func deleteWeightHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "weightID"), uid); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func streamWeightsHandler(svc *Service, streams *realtime.Streams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		petID := chi.URLParam(r, "petID")
		if err := svc.access(r.Context(), petID, uid, false); err != nil {
			writeError(w, err)
			return
		}
		streams.Serve(w, r, Collection(petID), "list", func(ctx context.Context) (any, error) {
			items, err := svc.repo.List(ctx, petID)
			if err != nil {
				return nil, err
			}
			return toWeightResponses(items), nil
		})
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoPetSelected):
		http.Error(w, "no pet selected", http.StatusBadRequest)
	case errors.Is(err, ErrInvalidInput):
		http.Error(w, "invalid input", http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "weight not found", http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toWeightResponses(items []Weight) []weightResponse {
	out := make([]weightResponse, 0, len(items))
	for _, w := range items {
		out = append(out, toWeightResponse(w))
	}
	return out
}

func toWeightResponse(w Weight) weightResponse {
	return weightResponse{
		ID:        w.ID,
		Value:     w.Value,
		Unit:      w.Unit,
		Kilograms: w.Kilograms(),
		Date:      w.Date,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}
