package tasks

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
	r.Route("/pets/{petID}/tasks", func(tr chi.Router) {
		tr.Get("/", listTasksHandler(svc))
		tr.Post("/", createTaskHandler(svc))
		tr.Get("/tags", listTagsHandler(svc))
		tr.Put("/order", reorderTasksHandler(svc))
		tr.Get("/stream", streamTasksHandler(svc, streams))
		tr.Patch("/{taskID}", updateTaskHandler(svc))
		tr.Delete("/{taskID}", deleteTaskHandler(svc))
	})
}

type createTaskRequest struct {
	Name  string `json:"name" validate:"required,max=40"`
	Emoji string `json:"emoji" validate:"max=16"`
}

type updateTaskRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=40"`
	Emoji *string `json:"emoji" validate:"omitempty,max=16"`
}

type reorderRequest struct {
	IDs []string `json:"ids" validate:"required,dive,required"`
}

type taskResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Emoji     string    `json:"emoji"`
	Order     int       `json:"order"`
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

// listTasksHandler godoc
// @Summary Tareas propias
// @Tags tasks
// @Produce json
// @Param petID path string true "ID de la mascota"
// @Success 200 {array} taskResponse
// @Router /pets/{petID}/tasks [get]
func listTasksHandler(svc *Service) http.HandlerFunc {
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
		httpx.WriteJSON(w, http.StatusOK, toTaskResponses(items))
	}
}

// listTagsHandler godoc
// @Summary Vocabulario de etiquetas
// @Description Etiquetas fijas más las tareas propias de la mascota, en el orden en que se muestran.
// @Tags tasks
// @Produce json
// @Param petID path string true "ID de la mascota"
// @Success 200 {array} string
// @Router /pets/{petID}/tasks/tags [get]
func listTagsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		tags, err := svc.Tags(r.Context(), chi.URLParam(r, "petID"), uid)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, tags)
	}
}

// createTaskHandler godoc
// @Summary Crear tarea
// @Tags tasks
// @Accept json
// @Produce json
// @Param petID path string true "ID de la mascota"
// @Param payload body createTaskRequest true "Nombre y emoji"
// @Success 201 {object} taskResponse
// @Router /pets/{petID}/tasks [post]
func createTaskHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		var req createTaskRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDecodeError(w, err)
			return
		}
		t, err := svc.Create(r.Context(), chi.URLParam(r, "petID"), uid, req.Name, req.Emoji)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, toTaskResponse(t))
	}
}

func updateTaskHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		var req updateTaskRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDecodeError(w, err)
			return
		}
		t, err := svc.Update(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "taskID"), uid, req.Name, req.Emoji)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toTaskResponse(t))
	}
}

func deleteTaskHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "taskID"), uid); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// reorderTasksHandler godoc
// @Summary Reordenar tareas
// @Description Recibe todos los ids en el orden nuevo y los escribe en un solo batch.
// @Tags tasks
// @Accept json
// @Produce json
// @Param petID path string true "ID de la mascota"
// @Param payload body reorderRequest true "ids en orden"
// @Success 200 {array} taskResponse
// @Failure 400 {string} string "invalid input"
// @Router /pets/{petID}/tasks/order [put]
func reorderTasksHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		var req reorderRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDecodeError(w, err)
			return
		}
		items, err := svc.Reorder(r.Context(), chi.URLParam(r, "petID"), uid, req.IDs)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toTaskResponses(items))
	}
}

func streamTasksHandler(svc *Service, streams *realtime.Streams) http.HandlerFunc {
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
			return toTaskResponses(items), nil
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
		http.Error(w, "task not found", http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toTaskResponses(items []CustomTask) []taskResponse {
	out := make([]taskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, toTaskResponse(t))
	}
	return out
}

func toTaskResponse(t CustomTask) taskResponse {
	return taskResponse{
		ID:        t.ID,
		Name:      t.Name,
		Emoji:     t.Emoji,
		Order:     t.Order,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
