package friends

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pet-diary/internal/middleware"
	"pet-diary/internal/platform/httpx"
	"pet-diary/internal/ports/blobstore"
	"pet-diary/internal/realtime"
)

func RegisterRoutes(r chi.Router, svc *Service, streams *realtime.Streams, maxUploadBytes int64) {
	r.Route("/pets/{petID}/friends", func(fr chi.Router) {
		fr.Get("/", listFriendsHandler(svc))
		fr.Post("/", createFriendHandler(svc))
		fr.Get("/stream", streamFriendsHandler(svc, streams))
		fr.Get("/{friendID}", getFriendHandler(svc))
		fr.Patch("/{friendID}", updateFriendHandler(svc))
		fr.Delete("/{friendID}", deleteFriendHandler(svc))
		fr.Post("/{friendID}/image", uploadImageHandler(svc, maxUploadBytes))
	})
}

// friendRequest vale para POST y PATCH; en POST name es obligatorio (lo chequea el service).
type friendRequest struct {
	Name         *string  `json:"name" validate:"omitempty,min=1,max=80"`
	Species      *string  `json:"species" validate:"omitempty,max=40"`
	Breed        *string  `json:"breed" validate:"omitempty,max=80"`
	Gender       *string  `json:"gender" validate:"omitempty,oneof=male female unknown"`
	Color        *string  `json:"color" validate:"omitempty,max=40"`
	Birthday     *string  `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
	AgeYears     *int     `json:"ageYears" validate:"omitempty,min=0,max=40"`
	AgeMonths    *int     `json:"ageMonths" validate:"omitempty,min=0,max=11"`
	Weight       *float64 `json:"weight" validate:"omitempty,gte=0"`
	MetAt        *string  `json:"metAt" validate:"omitempty,datetime=2006-01-02"`
	Location     *string  `json:"location" validate:"omitempty,max=120"`
	OwnerName    *string  `json:"ownerName" validate:"omitempty,max=80"`
	OwnerPhone   *string  `json:"ownerPhone" validate:"omitempty,max=40"`
	OwnerContact *string  `json:"ownerContact" validate:"omitempty,max=120"`
	Features     *string  `json:"features" validate:"omitempty,max=2000"`
}

func (req friendRequest) input() Input {
	return Input{
		Name:         req.Name,
		Species:      req.Species,
		Breed:        req.Breed,
		Gender:       req.Gender,
		Color:        req.Color,
		Birthday:     req.Birthday,
		AgeYears:     req.AgeYears,
		AgeMonths:    req.AgeMonths,
		Weight:       req.Weight,
		MetAt:        req.MetAt,
		Location:     req.Location,
		OwnerName:    req.OwnerName,
		OwnerPhone:   req.OwnerPhone,
		OwnerContact: req.OwnerContact,
		Features:     req.Features,
	}
}

type friendResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Species      string    `json:"species,omitempty"`
	Breed        string    `json:"breed,omitempty"`
	Gender       string    `json:"gender,omitempty"`
	Color        string    `json:"color,omitempty"`
	Birthday     string    `json:"birthday,omitempty"`
	Weight       float64   `json:"weight,omitempty"`
	MetAt        string    `json:"metAt,omitempty"`
	Location     string    `json:"location,omitempty"`
	OwnerName    string    `json:"ownerName,omitempty"`
	OwnerPhone   string    `json:"ownerPhone,omitempty"`
	OwnerContact string    `json:"ownerContact,omitempty"`
	Features     string    `json:"features,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return claims.UserID, true
}

// listFriendsHandler godoc
// @Summary Amigos de la mascota
// @Tags friends
// @Produce json
// @Param petID path string true "ID de la mascota"
// @Param sort query string false "name, metAt o createdAt (default)"
// @Success 200 {array} friendResponse
// @Router /pets/{petID}/friends [get]
func listFriendsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		items, err := svc.List(r.Context(), chi.URLParam(r, "petID"), uid, SortBy(r.URL.Query().Get("sort")))
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toFriendResponses(items))
	}
}

func createFriendHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		var req friendRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDecodeError(w, err)
			return
		}
		f, err := svc.Create(r.Context(), chi.URLParam(r, "petID"), uid, req.input())
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, toFriendResponse(f))
	}
}

func getFriendHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		f, err := svc.Get(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "friendID"), uid)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toFriendResponse(f))
	}
}

func updateFriendHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		var req friendRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDecodeError(w, err)
			return
		}
		f, err := svc.Update(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "friendID"), uid, req.input())
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toFriendResponse(f))
	}
}

func deleteFriendHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "friendID"), uid); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func uploadImageHandler(svc *Service, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		files, cleanup, err := httpx.FormFiles(w, r, "file", maxUploadBytes)
		if err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer cleanup()

		f, err := svc.UploadImage(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "friendID"), uid, files[0])
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toFriendResponse(f))
	}
}

// El snapshot va sin ordenar; cada cliente elige su sort.
func streamFriendsHandler(svc *Service, streams *realtime.Streams) http.HandlerFunc {
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
			return toFriendResponses(items), nil
		})
	}
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
		http.Error(w, "friend not found", http.StatusNotFound)
	case errors.Is(err, blobstore.ErrTooLarge):
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toFriendResponses(items []Friend) []friendResponse {
	out := make([]friendResponse, 0, len(items))
	for _, f := range items {
		out = append(out, toFriendResponse(f))
	}
	return out
}

func toFriendResponse(f Friend) friendResponse {
	return friendResponse{
		ID:           f.ID,
		Name:         f.Name,
		Species:      f.Species,
		Breed:        f.Breed,
		Gender:       f.Gender,
		Color:        f.Color,
		Birthday:     f.Birthday,
		Weight:       f.Weight,
		MetAt:        f.MetAt,
		Location:     f.Location,
		OwnerName:    f.OwnerName,
		OwnerPhone:   f.OwnerPhone,
		OwnerContact: f.OwnerContact,
		Features:     f.Features,
		ImageURL:     f.ImageURL,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}
