package pets

import (
	"time"

	"pet-diary/internal/domain/members"
)

// Species define las especies soportadas.
// @Enum dog, cat, other
type Species string

const (
	SpeciesDog   Species = "dog"
	SpeciesCat   Species = "cat"
	SpeciesOther Species = "other"
)

// Gender define el sexo de la mascota.
// @Enum male, female, unknown
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// Vet es un veterinario de referencia de la mascota.
type Vet struct {
	Name    string `json:"name"`
	Clinic  string `json:"clinic,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Pet es el agregado raíz: todo lo demás cuelga de pets/{id}/...
type Pet struct {
	ID      string
	OwnerID string

	Name    string
	Species Species
	Breed   string
	Gender  Gender

	Birthday     string // YYYY-MM-DD
	AdoptionDate string // YYYY-MM-DD
	MicrochipID  string
	MedicalNotes string
	Vets         []Vet

	AvatarURL string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MyPet es una mascota vista por uno de sus miembros.
type MyPet struct {
	Pet          Pet
	Role         members.Role
	Capabilities members.Capabilities
}
