package users

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pet-diary/internal/middleware"
	"pet-diary/internal/platform/httpx"
	"pet-diary/internal/ports/blobstore"
)

func RegisterRoutes(r chi.Router, svc *Service, maxUploadBytes int64) {
	// Rutas sueltas: /me/invitations la registra members.
	r.Get("/me", getMeHandler(svc))
	r.Patch("/me", updateProfileHandler(svc))
	r.Patch("/me/settings", updateSettingsHandler(svc))
	r.Post("/me/avatar", uploadAvatarHandler(svc, maxUploadBytes))
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Nickname    string    `json:"nickname"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Settings    Settings  `json:"settings"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type updateProfileRequest struct {
	DisplayName *string `json:"displayName" validate:"omitempty,min=1,max=80"`
	Nickname    *string `json:"nickname" validate:"omitempty,max=80"`
}

type updateSettingsRequest struct {
	Notifications *struct {
		ScheduleReminders *bool `json:"scheduleReminders"`
		MemberInvites     *bool `json:"memberInvites"`
	} `json:"notifications"`
	TimeFormat    *TimeFormat `json:"timeFormat" validate:"omitempty,oneof=12h 24h"`
	ToastPosition *string     `json:"toastPosition" validate:"omitempty,oneof=top-left top-center top-right bottom-left bottom-center bottom-right"`
}

// getMeHandler godoc
// @Summary Perfil del usuario autenticado
// @Description Devuelve el perfil; si es la primera llamada lo crea con settings por defecto.
// @Tags users
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Success 200 {object} userResponse
// @Failure 401 {string} string "unauthorized"
// @Router /me [get]
func getMeHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		u, err := svc.EnsureUser(r.Context(), claims)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
	}
}

// updateProfileHandler godoc
// @Summary Actualizar perfil
// @Tags users
// @Accept json
// @Produce json
// @Param payload body updateProfileRequest true "displayName y/o nickname"
// @Success 200 {object} userResponse
// @Failure 400 {string} string "invalid input"
// @Router /me [patch]
func updateProfileHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req updateProfileRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDecodeError(w, err)
			return
		}

		u, err := svc.UpdateProfile(r.Context(), claims, ProfilePatch{
			DisplayName: req.DisplayName,
			Nickname:    req.Nickname,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
	}
}

// updateSettingsHandler godoc
// @Summary Actualizar settings
// @Description Patch parcial: solo se tocan los campos presentes.
// @Tags users
// @Accept json
// @Produce json
// @Param payload body updateSettingsRequest true "Settings a cambiar"
// @Success 200 {object} userResponse
// @Failure 400 {string} string "invalid input"
// @Router /me/settings [patch]
func updateSettingsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req updateSettingsRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDecodeError(w, err)
			return
		}

		patch := SettingsPatch{TimeFormat: req.TimeFormat, ToastPosition: req.ToastPosition}
		if req.Notifications != nil {
			patch.ScheduleReminders = req.Notifications.ScheduleReminders
			patch.MemberInvites = req.Notifications.MemberInvites
		}

		u, err := svc.UpdateSettings(r.Context(), claims, patch)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
	}
}

// uploadAvatarHandler godoc
// @Summary Subir avatar
// @Tags users
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Imagen"
// @Success 200 {object} userResponse
// @Failure 400 {string} string "file required"
// @Failure 413 {string} string "file too large"
// @Router /me/avatar [post]
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

		u, err := svc.UploadAvatar(r.Context(), claims, files[0])
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, blobstore.ErrInvalidKey):
		http.Error(w, "invalid input", http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, blobstore.ErrTooLarge):
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toUserResponse(u User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Nickname:    u.Nickname,
		AvatarURL:   u.AvatarURL,
		Settings:    u.Settings,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
