package members

import "time"

// Role define los permisos de una persona sobre una mascota.
// @Enum owner, editor, viewer
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Status es el ciclo de vida de la invitación.
// La baja (remove/leave) es borrado físico, no hay status "removed".
// @Enum pending, active, declined
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusDeclined Status = "declined"
)

// Member vincula una persona con una mascota.
// UserID queda vacío mientras la invitación está pending y se fija una sola vez al aceptar.
type Member struct {
	ID    string
	PetID string

	UserID string
	Email  string // email invitado, en minúsculas

	Role   Role
	Status Status

	InvitedBy string

	CreatedAt  time.Time
	UpdatedAt  time.Time
	AcceptedAt *time.Time
}

// Capabilities son los permisos derivados del rol.
type Capabilities struct {
	CanView          bool `json:"canView"`
	CanEdit          bool `json:"canEdit"`
	CanManageMembers bool `json:"canManageMembers"`
}

// CapabilitiesFor es puro: el rol vacío o desconocido no habilita nada.
func CapabilitiesFor(role Role) Capabilities {
	if !role.Valid() {
		return Capabilities{}
	}
	return Capabilities{
		CanView:          true,
		CanEdit:          role == RoleOwner || role == RoleEditor,
		CanManageMembers: role == RoleOwner,
	}
}

// CapabilitiesFromSnapshot recalcula los permisos de userID sobre la lista actual de miembros.
// Solo cuenta una membresía active.
func CapabilitiesFromSnapshot(members []Member, userID string) Capabilities {
	if userID == "" {
		return Capabilities{}
	}
	for _, m := range members {
		if m.UserID == userID && m.Status == StatusActive {
			return CapabilitiesFor(m.Role)
		}
	}
	return Capabilities{}
}

// Access es el resultado de autorizar a un usuario sobre una mascota.
type Access struct {
	Member       Member
	Capabilities Capabilities
}

// Snapshot es lo que recibe un stream de miembros: la lista y los permisos del que escucha.
type Snapshot struct {
	Members      []Member
	Capabilities Capabilities
}

func activeOwners(members []Member) int {
	n := 0
	for _, m := range members {
		if m.Role == RoleOwner && m.Status == StatusActive {
			n++
		}
	}
	return n
}
