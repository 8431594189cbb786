package friends

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Friend es un conocido de la mascota (otro animal del parque, de la guardería...).
type Friend struct {
	ID      string
	PetID   string
	Name    string
	Species string
	Breed   string
	Gender  string
	Color   string

	Birthday string  // YYYY-MM-DD
	Weight   float64 // kg, 0 = sin dato

	MetAt    string // YYYY-MM-DD
	Location string

	OwnerName    string
	OwnerPhone   string
	OwnerContact string

	Features string
	ImageURL string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SortBy es el orden que elige el cliente; en el store no hay orden.
type SortBy string

const (
	SortByName      SortBy = "name"
	SortByMetAt     SortBy = "metAt"
	SortByCreatedAt SortBy = "createdAt"
)

func (s SortBy) Valid() bool {
	switch s {
	case SortByName, SortByMetAt, SortByCreatedAt:
		return true
	}
	return false
}

// BirthdayFromAge calcula la fecha de nacimiento a partir de una edad aproximada.
func BirthdayFromAge(now time.Time, years, months int) string {
	return now.AddDate(-years, -months, 0).Format(dateLayout)
}

// Sort ordena in place: name asc sin distinguir mayúsculas, metAt y createdAt
// desc con los vacíos al final. Empates por id.
func Sort(items []Friend, by SortBy) {
	slices.SortStableFunc(items, func(a, b Friend) int {
		var c int
		switch by {
		case SortByName:
			c = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case SortByMetAt:
			c = descEmptyLast(a.MetAt == "", b.MetAt == "", strings.Compare(a.MetAt, b.MetAt))
		default:
			c = descEmptyLast(a.CreatedAt.IsZero(), b.CreatedAt.IsZero(), a.CreatedAt.Compare(b.CreatedAt))
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func descEmptyLast(aEmpty, bEmpty bool, asc int) int {
	switch {
	case aEmpty && bEmpty:
		return 0
	case aEmpty:
		return 1
	case bEmpty:
		return -1
	}
	return -asc
}
