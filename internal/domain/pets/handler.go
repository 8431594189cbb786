package pets

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pet-diary/internal/domain/members"
	"pet-diary/internal/middleware"
	"pet-diary/internal/platform/httpx"
	"pet-diary/internal/ports/blobstore"
)

// Las rutas van sueltas (sin r.Route("/pets")) para convivir con los subrouters /pets/{petID}/...
func RegisterRoutes(r chi.Router, svc *Service, maxUploadBytes int64) {
	r.Post("/pets", createPetHandler(svc))
	r.Get("/pets", listPetsHandler(svc))

	r.Get("/pets/{petID}", getPetHandler(svc))
	r.Patch("/pets/{petID}", updatePetHandler(svc))
	r.Delete("/pets/{petID}", deletePetHandler(svc))
	r.Post("/pets/{petID}/avatar", uploadAvatarHandler(svc, maxUploadBytes))
}

type createPetRequest struct {
	Name         string  `json:"name" validate:"required,max=80"`
	Species      Species `json:"species" validate:"required,oneof=dog cat other"`
	Breed        string  `json:"breed" validate:"max=80"`
	Gender       Gender  `json:"gender" validate:"omitempty,oneof=male female unknown"`
	Birthday     string  `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
	AdoptionDate string  `json:"adoptionDate" validate:"omitempty,datetime=2006-01-02"`
	MicrochipID  string  `json:"microchipId" validate:"max=40"`
	MedicalNotes string  `json:"medicalNotes" validate:"max=2000"`
	Vets         []Vet   `json:"vets" validate:"max=10,dive"`
}

type updatePetRequest struct {
	// Punteros para PATCH real: nil = no tocar.
	Name         *string  `json:"name" validate:"omitempty,min=1,max=80"`
	Species      *Species `json:"species" validate:"omitempty,oneof=dog cat other"`
	Breed        *string  `json:"breed" validate:"omitempty,max=80"`
	Gender       *Gender  `json:"gender" validate:"omitempty,oneof=male female unknown"`
	Birthday     *string  `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
	AdoptionDate *string  `json:"adoptionDate" validate:"omitempty,datetime=2006-01-02"`
	MicrochipID  *string  `json:"microchipId" validate:"omitempty,max=40"`
	MedicalNotes *string  `json:"medicalNotes" validate:"omitempty,max=2000"`
	Vets         *[]Vet   `json:"vets" validate:"omitempty,max=10"`
}

type petResponse struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Name         string    `json:"name"`
	Species      Species   `json:"species"`
	Breed        string    `json:"breed"`
	Gender       Gender    `json:"gender"`
	Birthday     string    `json:"birthday,omitempty"`
	AdoptionDate string    `json:"adoptionDate,omitempty"`
	MicrochipID  string    `json:"microchipId,omitempty"`
	MedicalNotes string    `json:"medicalNotes,omitempty"`
	Vets         []Vet     `json:"vets"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type myPetResponse struct {
	petResponse
	Role         members.Role         `json:"role"`
	Capabilities members.Capabilities `json:"capabilities"`
}

// createPetHandler godoc
// @Summary Crear mascota
// @Description Crea la mascota y deja al usuario autenticado como owner (en una sola escritura).
// @Tags pets
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param payload body createPetRequest true "Datos de la mascota; fechas en formato YYYY-MM-DD"
// @Success 201 {object} petResponse
// @Failure 400 {string} string "invalid input"
// @Failure 401 {string} string "unauthorized"
// @Router /pets [post]
func createPetHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req createPetRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDecodeError(w, err)
			return
		}

		p, err := svc.Create(r.Context(), claims, CreateInput{
			Name:         req.Name,
			Species:      req.Species,
			Breed:        req.Breed,
			Gender:       req.Gender,
			Birthday:     req.Birthday,
			AdoptionDate: req.AdoptionDate,
			MicrochipID:  req.MicrochipID,
			MedicalNotes: req.MedicalNotes,
			Vets:         req.Vets,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, toPetResponse(p))
	}
}

// listPetsHandler godoc
// @Summary Mis mascotas
// @Description Mascotas donde el usuario es miembro active, con su rol y permisos.
// @Tags pets
// @Produce json
// @Success 200 {array} myPetResponse
// @Failure 401 {string} string "unauthorized"
// @Router /pets [get]
func listPetsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		items, err := svc.ListMine(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, err)
			return
		}

		out := make([]myPetResponse, 0, len(items))
		for _, mp := range items {
			out = append(out, toMyPetResponse(mp))
		}
		httpx.WriteJSON(w, http.StatusOK, out)
	}
}

// getPetHandler godoc
// @Summary Ver mascota
// @Tags pets
// @Produce json
// @Param petID path string true "ID de la mascota"
// @Success 200 {object} myPetResponse
// @Failure 403 {string} string "forbidden"
// @Router /pets/{petID} [get]
func getPetHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		mp, err := svc.Get(r.Context(), chi.URLParam(r, "petID"), claims.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toMyPetResponse(mp))
	}
}

// updatePetHandler godoc
// @Summary Editar mascota
// @Tags pets
// @Accept json
// @Produce json
// @Param petID path string true "ID de la mascota"
// @Param payload body updatePetRequest true "Campos a cambiar"
// @Success 200 {object} petResponse
// @Failure 403 {string} string "forbidden"
// @Router /pets/{petID} [patch]
func updatePetHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req updatePetRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDecodeError(w, err)
			return
		}

		p, err := svc.Update(r.Context(), chi.URLParam(r, "petID"), claims.UserID, UpdateInput{
			Name:         req.Name,
			Species:      req.Species,
			Breed:        req.Breed,
			Gender:       req.Gender,
			Birthday:     req.Birthday,
			AdoptionDate: req.AdoptionDate,
			MicrochipID:  req.MicrochipID,
			MedicalNotes: req.MedicalNotes,
			Vets:         req.Vets,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toPetResponse(p))
	}
}

// deletePetHandler godoc
// @Summary Borrar mascota
// @Description Borra la mascota y todo su contenido (miembros, entradas, tareas, amigos, pesos). Solo owner.
// @Tags pets
// @Param petID path string true "ID de la mascota"
// @Success 204
// @Failure 403 {string} string "forbidden"
// @Router /pets/{petID} [delete]
func deletePetHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if err := svc.Delete(r.Context(), chi.URLParam(r, "petID"), claims.UserID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func uploadAvatarHandler(svc *Service, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		files, cleanup, err := httpx.FormFiles(w, r, "file", maxUploadBytes)
		if err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer cleanup()

		p, err := svc.UploadAvatar(r.Context(), chi.URLParam(r, "petID"), claims.UserID, files[0])
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toPetResponse(p))
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, blobstore.ErrInvalidKey):
		http.Error(w, "invalid input", http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "pet not found", http.StatusNotFound)
	case errors.Is(err, blobstore.ErrTooLarge):
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toPetResponse(p Pet) petResponse {
	vets := p.Vets
	if vets == nil {
		vets = []Vet{}
	}
	return petResponse{
		ID:           p.ID,
		OwnerID:      p.OwnerID,
		Name:         p.Name,
		Species:      p.Species,
		Breed:        p.Breed,
		Gender:       p.Gender,
		Birthday:     p.Birthday,
		AdoptionDate: p.AdoptionDate,
		MicrochipID:  p.MicrochipID,
		MedicalNotes: p.MedicalNotes,
		Vets:         vets,
		AvatarURL:    p.AvatarURL,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func toMyPetResponse(mp MyPet) myPetResponse {
	return myPetResponse{
		petResponse:  toPetResponse(mp.Pet),
		Role:         mp.Role,
		Capabilities: mp.Capabilities,
	}
}
