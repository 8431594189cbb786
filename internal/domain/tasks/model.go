package tasks

import "time"

// CustomTask es una etiqueta propia de la mascota, usable en entries junto a las fijas.
type CustomTask struct {
	ID        string
	PetID     string
	Name      string
	Emoji     string
	Order     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BuiltinTags son las etiquetas que toda mascota tiene sin crear nada.
var BuiltinTags = []string{"walk", "meal", "snack", "water", "medicine", "vet", "grooming", "bath", "play", "training"}
