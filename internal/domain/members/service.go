package members

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"pet-diary/internal/platform/metrics"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrBadState     = errors.New("invalid state")

	ErrAlreadyInvited = errors.New("member already invited or active")
	ErrLastOwner      = errors.New("pet would be left without an owner")
	ErrOwnerProtected = errors.New("owners cannot be removed, demote first")
)

type Service struct {
	repo  Repository
	now   func() time.Time
	locks petLocks
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// Classify traduce un error del servicio a un label corto (métricas y logs).
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyInvited):
		return "already_invited"
	case errors.Is(err, ErrLastOwner):
		return "last_owner"
	case errors.Is(err, ErrOwnerProtected):
		return "owner_protected"
	case errors.Is(err, ErrBadState):
		return "bad_state"
	}
	return "error"
}

// Authorize devuelve la membresía active de userID y sus permisos.
// Sin membresía active => ErrForbidden.
func (s *Service) Authorize(ctx context.Context, petID, userID string) (Access, error) {
	petID = strings.TrimSpace(petID)
	userID = strings.TrimSpace(userID)
	if petID == "" || userID == "" {
		return Access{}, ErrInvalidInput
	}

	m, err := s.repo.GetActiveByUser(ctx, petID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Access{}, ErrForbidden
		}
		return Access{}, err
	}
	return Access{Member: m, Capabilities: CapabilitiesFor(m.Role)}, nil
}

func (s *Service) requireOwner(ctx context.Context, petID, userID string) (Member, error) {
	a, err := s.Authorize(ctx, petID, userID)
	if err != nil {
		return Member{}, err
	}
	if !a.Capabilities.CanManageMembers {
		return Member{}, ErrForbidden
	}
	return a.Member, nil
}

// NewOwner arma el Member owner de una mascota recién creada.
func NewOwner(petID, userID, email string, now time.Time) Member {
	return Member{
		ID:         uuid.NewString(),
		PetID:      petID,
		UserID:     userID,
		Email:      normalizeEmail(email),
		Role:       RoleOwner,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
		AcceptedAt: &now,
	}
}

type InviteInput struct {
	PetID    string
	CallerID string
	Email    string
	Role     Role
}

func (s *Service) Invite(ctx context.Context, in InviteInput) (m Member, err error) {
	defer func() { metrics.ObserveMembership("invite", err, Classify) }()

	petID := strings.TrimSpace(in.PetID)
	email := normalizeEmail(in.Email)
	if petID == "" || email == "" || !strings.Contains(email, "@") {
		return Member{}, ErrInvalidInput
	}
	// owner solo se obtiene por transferencia
	if in.Role != RoleEditor && in.Role != RoleViewer {
		return Member{}, ErrInvalidInput
	}
	defer s.locks.lock(petID)()

	caller, err := s.requireOwner(ctx, petID, in.CallerID)
	if err != nil {
		return Member{}, err
	}

	existing, err := s.repo.ListByEmail(ctx, petID, email)
	if err != nil {
		return Member{}, err
	}

	now := s.now()
	for _, e := range existing {
		if e.Status == StatusPending || e.Status == StatusActive {
			return Member{}, ErrAlreadyInvited
		}
	}

	// Re-invitar a quien declinó reutiliza el documento.
	if len(existing) > 0 {
		m = existing[0]
		m.Role = in.Role
		m.Status = StatusPending
		m.UserID = ""
		m.InvitedBy = caller.UserID
		m.AcceptedAt = nil
		m.UpdatedAt = now
		if err := s.repo.Update(ctx, m); err != nil {
			return Member{}, err
		}
		return m, nil
	}

	m = Member{
		ID:        uuid.NewString(),
		PetID:     petID,
		Email:     email,
		Role:      in.Role,
		Status:    StatusPending,
		InvitedBy: caller.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return Member{}, err
	}
	return m, nil
}

// Accept vincula la invitación con userID. Idempotente para el mismo usuario.
func (s *Service) Accept(ctx context.Context, petID, memberID, userID, email string) (m Member, err error) {
	defer func() { metrics.ObserveMembership("accept", err, Classify) }()

	petID, memberID, userID = strings.TrimSpace(petID), strings.TrimSpace(memberID), strings.TrimSpace(userID)
	if petID == "" || memberID == "" || userID == "" {
		return Member{}, ErrInvalidInput
	}

	m, err = s.repo.Get(ctx, petID, memberID)
	if err != nil {
		return Member{}, err
	}

	switch m.Status {
	case StatusActive:
		if m.UserID == userID {
			return m, nil
		}
		return Member{}, ErrBadState
	case StatusDeclined:
		return Member{}, ErrBadState
	case StatusPending:
	default:
		return Member{}, ErrBadState
	}

	if m.Email != normalizeEmail(email) {
		return Member{}, ErrForbidden
	}

	// una persona no puede tener dos membresías active en la misma mascota
	if _, err := s.repo.GetActiveByUser(ctx, petID, userID); err == nil {
		return Member{}, ErrBadState
	} else if !errors.Is(err, ErrNotFound) {
		return Member{}, err
	}

	now := s.now()
	m.UserID = userID
	m.Status = StatusActive
	m.AcceptedAt = &now
	m.UpdatedAt = now

	if err := s.repo.Update(ctx, m); err != nil {
		return Member{}, err
	}
	return m, nil
}

// Decline es terminal; repetirlo no cambia nada.
func (s *Service) Decline(ctx context.Context, petID, memberID, email string) (m Member, err error) {
	defer func() { metrics.ObserveMembership("decline", err, Classify) }()

	petID, memberID = strings.TrimSpace(petID), strings.TrimSpace(memberID)
	if petID == "" || memberID == "" {
		return Member{}, ErrInvalidInput
	}

	m, err = s.repo.Get(ctx, petID, memberID)
	if err != nil {
		return Member{}, err
	}
	if m.Email != normalizeEmail(email) {
		return Member{}, ErrForbidden
	}

	switch m.Status {
	case StatusDeclined:
		return m, nil
	case StatusPending:
	default:
		return Member{}, ErrBadState
	}

	m.Status = StatusDeclined
	m.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, m); err != nil {
		return Member{}, err
	}
	return m, nil
}

func (s *Service) UpdateRole(ctx context.Context, petID, memberID, callerID string, role Role) (m Member, err error) {
	defer func() { metrics.ObserveMembership("update_role", err, Classify) }()

	if !role.Valid() {
		return Member{}, ErrInvalidInput
	}
	defer s.locks.lock(petID)()

	if _, err := s.requireOwner(ctx, petID, callerID); err != nil {
		return Member{}, err
	}

	m, err = s.repo.Get(ctx, petID, memberID)
	if err != nil {
		return Member{}, err
	}
	if m.Role == role {
		return m, nil
	}
	if role == RoleOwner && m.Status != StatusActive {
		return Member{}, ErrBadState
	}

	var owner string
	if m.Role == RoleOwner && m.Status == StatusActive {
		all, err := s.repo.ListByPet(ctx, petID)
		if err != nil {
			return Member{}, err
		}
		if activeOwners(all) <= 1 {
			return Member{}, ErrLastOwner
		}
		if owner, err = s.successor(ctx, petID, m, all); err != nil {
			return Member{}, err
		}
	}

	m.Role = role
	m.UpdatedAt = s.now()
	if owner != "" {
		err = s.repo.UpdateWithOwner(ctx, m, owner)
	} else {
		err = s.repo.Update(ctx, m)
	}
	if err != nil {
		return Member{}, err
	}
	return m, nil
}

// successor elige el userId que pasa a pets/{id}.ownerId cuando leaving deja de
// ser owner: el owner active más antiguo que queda. Vacío si el campo apunta a
// otra persona y no hay que tocarlo.
func (s *Service) successor(ctx context.Context, petID string, leaving Member, all []Member) (string, error) {
	current, err := s.repo.PetOwnerID(ctx, petID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if current != "" && current != leaving.UserID {
		return "", nil
	}
	for _, m := range all {
		if m.ID != leaving.ID && m.Role == RoleOwner && m.Status == StatusActive && m.UserID != "" {
			return m.UserID, nil
		}
	}
	return "", nil
}

func (s *Service) Remove(ctx context.Context, petID, memberID, callerID string) (err error) {
	defer func() { metrics.ObserveMembership("remove", err, Classify) }()
	defer s.locks.lock(petID)()

	if _, err := s.requireOwner(ctx, petID, callerID); err != nil {
		return err
	}

	m, err := s.repo.Get(ctx, petID, memberID)
	if err != nil {
		return err
	}
	if m.Role == RoleOwner {
		return ErrOwnerProtected
	}
	return s.repo.Delete(ctx, petID, m.ID)
}

// Leave borra la membresía propia. El único owner primero tiene que transferir.
func (s *Service) Leave(ctx context.Context, petID, callerID string) (err error) {
	defer func() { metrics.ObserveMembership("leave", err, Classify) }()
	defer s.locks.lock(petID)()

	a, err := s.Authorize(ctx, petID, callerID)
	if err != nil {
		return err
	}

	if a.Member.Role == RoleOwner {
		all, err := s.repo.ListByPet(ctx, petID)
		if err != nil {
			return err
		}
		if activeOwners(all) <= 1 {
			return ErrLastOwner
		}
		owner, err := s.successor(ctx, petID, a.Member, all)
		if err != nil {
			return err
		}
		if owner != "" {
			return s.repo.DeleteWithOwner(ctx, petID, a.Member.ID, owner)
		}
	}
	return s.repo.Delete(ctx, petID, a.Member.ID)
}

// TransferOwnership promueve a memberID y degrada al caller a editor en un único batch.
func (s *Service) TransferOwnership(ctx context.Context, petID, memberID, callerID string) (to Member, err error) {
	defer func() { metrics.ObserveMembership("transfer", err, Classify) }()
	defer s.locks.lock(petID)()

	caller, err := s.requireOwner(ctx, petID, callerID)
	if err != nil {
		return Member{}, err
	}

	to, err = s.repo.Get(ctx, petID, memberID)
	if err != nil {
		return Member{}, err
	}
	if to.ID == caller.ID {
		return Member{}, ErrInvalidInput
	}
	if to.Status != StatusActive || to.UserID == "" {
		return Member{}, ErrBadState
	}

	now := s.now()
	to.Role = RoleOwner
	to.UpdatedAt = now
	caller.Role = RoleEditor
	caller.UpdatedAt = now

	if err := s.repo.Transfer(ctx, to, caller); err != nil {
		return Member{}, err
	}
	return to, nil
}

// ListByPet requiere ser miembro active (cualquier rol).
func (s *Service) ListByPet(ctx context.Context, petID, callerID string) ([]Member, error) {
	if _, err := s.Authorize(ctx, petID, callerID); err != nil {
		return nil, err
	}
	return s.repo.ListByPet(ctx, petID)
}

// Snapshot arma la vista de un stream: si userID dejó de ser miembro recibe permisos vacíos y ninguna fila.
func (s *Service) Snapshot(ctx context.Context, petID, userID string) (Snapshot, error) {
	all, err := s.repo.ListByPet(ctx, petID)
	if err != nil {
		return Snapshot{}, err
	}
	caps := CapabilitiesFromSnapshot(all, userID)
	if !caps.CanView {
		return Snapshot{Members: []Member{}, Capabilities: caps}, nil
	}
	return Snapshot{Members: all, Capabilities: caps}, nil
}

func (s *Service) ListMyInvitations(ctx context.Context, email string) ([]Member, error) {
	email = normalizeEmail(email)
	if email == "" {
		return []Member{}, nil
	}
	return s.repo.ListPendingByEmail(ctx, email)
}

// ListActiveByUser devuelve las membresías active de userID en todas las mascotas.
func (s *Service) ListActiveByUser(ctx context.Context, userID string) ([]Member, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListActiveByUser(ctx, userID)
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
