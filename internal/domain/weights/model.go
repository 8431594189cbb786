package weights

import (
	"cmp"
	"slices"
	"time"
)

// @Enum kg, g
type Unit string

const (
	UnitKg Unit = "kg"
	UnitG  Unit = "g"
)

func (u Unit) Valid() bool { return u == UnitKg || u == UnitG }

type Weight struct {
	ID        string
	PetID     string
	Value     float64
	Unit      Unit
	Date      string // YYYY-MM-DD
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Kilograms normaliza el valor para comparar registros con unidades distintas.
func (w Weight) Kilograms() float64 {
	if w.Unit == UnitG {
		return w.Value / 1000
	}
	return w.Value
}

// Sort ordena por fecha desc y, dentro del mismo día, por creación desc.
// Un CreatedAt vacío cuenta como epoch 0.
func Sort(items []Weight) {
	slices.SortStableFunc(items, func(a, b Weight) int {
		if c := cmp.Compare(b.Date, a.Date); c != 0 {
			return c
		}
		if c := cmp.Compare(unixNano(b.CreatedAt), unixNano(a.CreatedAt)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
