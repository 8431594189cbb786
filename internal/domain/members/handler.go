package members

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
	r.Route("/pets/{petID}/members", func(mr chi.Router) {
		mr.Get("/", listMembersHandler(svc))
		mr.Post("/", inviteMemberHandler(svc))
		mr.Get("/stream", streamMembersHandler(svc, streams))
		mr.Post("/leave", leaveHandler(svc))

		mr.Patch("/{memberID}", updateRoleHandler(svc))
		mr.Delete("/{memberID}", removeMemberHandler(svc))
		mr.Post("/{memberID}/transfer", transferHandler(svc))

		// acciones de la persona invitada
		mr.Post("/{memberID}/accept", acceptHandler(svc))
		mr.Post("/{memberID}/decline", declineHandler(svc))
	})

	r.Get("/me/invitations", listMyInvitationsHandler(svc))
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  Role   `json:"role" validate:"required,oneof=editor viewer"`
}

type updateRoleRequest struct {
	Role Role `json:"role" validate:"required,oneof=owner editor viewer"`
}

type memberResponse struct {
	ID         string     `json:"id"`
	PetID      string     `json:"petId"`
	UserID     string     `json:"userId"`
	Email      string     `json:"email"`
	Role       Role       `json:"role"`
	Status     Status     `json:"status"`
	InvitedBy  string     `json:"invitedBy,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
}

type snapshotResponse struct {
	Members      []memberResponse `json:"members"`
	Capabilities Capabilities     `json:"capabilities"`
}

// inviteMemberHandler godoc
// @Summary Invitar a una persona
// @Description Crea una invitación pending para el email indicado. Solo el owner puede invitar; el rol owner no se puede invitar, se obtiene por transferencia. Autenticación: `X-Debug-User-ID` (dev) o `Authorization: Bearer <token>` (prod).
// @Tags members
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param petID path string true "ID de la mascota"
// @Param payload body inviteRequest true "Email y rol (editor|viewer)"
// @Success 201 {object} memberResponse
// @Failure 400 {string} string "invalid input"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 409 {string} string "member already invited or active"
// @Router /pets/{petID}/members [post]
func inviteMemberHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req inviteRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDecodeError(w, err)
			return
		}

		m, err := svc.Invite(r.Context(), InviteInput{
			PetID:    chi.URLParam(r, "petID"),
			CallerID: claims.UserID,
			Email:    req.Email,
			Role:     req.Role,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, toMemberResponse(m))
	}
}

// listMembersHandler godoc
// @Summary Listar miembros de una mascota
// @Tags members
// @Produce json
// @Param petID path string true "ID de la mascota"
// @Success 200 {array} memberResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /pets/{petID}/members [get]
func listMembersHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		items, err := svc.ListByPet(r.Context(), chi.URLParam(r, "petID"), claims.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toMemberResponses(items))
	}
}

func updateRoleHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req updateRoleRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDecodeError(w, err)
			return
		}

		m, err := svc.UpdateRole(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "memberID"), claims.UserID, req.Role)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toMemberResponse(m))
	}
}

// removeMemberHandler godoc
// @Summary Quitar un miembro
// @Description Borra la membresía. Un owner no se puede quitar, primero hay que degradarlo.
// @Tags members
// @Param petID path string true "ID de la mascota"
// @Param memberID path string true "ID del miembro"
// @Success 204
// @Failure 403 {string} string "forbidden"
// @Failure 409 {string} string "owners cannot be removed, demote first"
// @Router /pets/{petID}/members/{memberID} [delete]
func removeMemberHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if err := svc.Remove(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "memberID"), claims.UserID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func leaveHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if err := svc.Leave(r.Context(), chi.URLParam(r, "petID"), claims.UserID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// transferHandler godoc
// @Summary Transferir la propiedad
// @Description Promueve al miembro indicado a owner y degrada al caller a editor, en una sola escritura atómica.
// @Tags members
// @Produce json
// @Param petID path string true "ID de la mascota"
// @Param memberID path string true "ID del nuevo owner"
// @Success 200 {object} memberResponse
// @Failure 403 {string} string "forbidden"
// @Failure 409 {string} string "invalid state"
// @Router /pets/{petID}/members/{memberID}/transfer [post]
func transferHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		m, err := svc.TransferOwnership(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "memberID"), claims.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toMemberResponse(m))
	}
}

func acceptHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		m, err := svc.Accept(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "memberID"), claims.UserID, claims.Email)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toMemberResponse(m))
	}
}

func declineHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		m, err := svc.Decline(r.Context(), chi.URLParam(r, "petID"), chi.URLParam(r, "memberID"), claims.Email)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toMemberResponse(m))
	}
}

// listMyInvitationsHandler godoc
// @Summary Mis invitaciones pendientes
// @Description Invitaciones pending dirigidas al email del usuario autenticado, en todas las mascotas.
// @Tags members
// @Produce json
// @Success 200 {array} memberResponse
// @Failure 401 {string} string "unauthorized"
// @Router /me/invitations [get]
func listMyInvitationsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		items, err := svc.ListMyInvitations(r.Context(), claims.Email)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toMemberResponses(items))
	}
}

// streamMembersHandler abre un WebSocket con la lista de miembros y los permisos del caller,
// recalculados en cada cambio de la colección.
func streamMembersHandler(svc *Service, streams *realtime.Streams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		petID := chi.URLParam(r, "petID")
		if _, err := svc.Authorize(r.Context(), petID, claims.UserID); err != nil {
			writeError(w, err)
			return
		}

		uid := claims.UserID
		streams.Serve(w, r, Collection(petID), "caps:"+uid, func(ctx context.Context) (any, error) {
			snap, err := svc.Snapshot(ctx, petID, uid)
			if err != nil {
				return nil, err
			}
			return snapshotResponse{
				Members:      toMemberResponses(snap.Members),
				Capabilities: snap.Capabilities,
			}, nil
		})
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrAlreadyInvited),
		errors.Is(err, ErrLastOwner),
		errors.Is(err, ErrOwnerProtected),
		errors.Is(err, ErrBadState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toMemberResponse(m Member) memberResponse {
	return memberResponse{
		ID:         m.ID,
		PetID:      m.PetID,
		UserID:     m.UserID,
		Email:      m.Email,
		Role:       m.Role,
		Status:     m.Status,
		InvitedBy:  m.InvitedBy,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
		AcceptedAt: m.AcceptedAt,
	}
}

func toMemberResponses(items []Member) []memberResponse {
	out := make([]memberResponse, 0, len(items))
	for _, m := range items {
		out = append(out, toMemberResponse(m))
	}
	return out
}
