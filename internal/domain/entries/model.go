package entries

import "time"

// Type distingue un registro de diario de un evento agendado.
// @Enum diary, schedule
type Type string

const (
	TypeDiary    Type = "diary"
	TypeSchedule Type = "schedule"
)

// TimeType: un instante o un rango con fin.
// @Enum point, range
type TimeType string

const (
	TimePoint TimeType = "point"
	TimeRange TimeType = "range"
)

const (
	PageSize  = 20
	MaxImages = 5
)

// Entry es un registro del diario de una mascota: pets/{petId}/entries/{id}.
type Entry struct {
	ID    string
	PetID string

	Type     Type
	TimeType TimeType

	Title string
	Body  string
	Tags  []string

	ImageURLs []string

	Date    string // YYYY-MM-DD
	Time    string // HH:MM, opcional
	EndDate string // solo range
	EndTime string

	FriendIDs []string

	// IsCompleted solo tiene sentido en schedule.
	IsCompleted bool

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// start y end devuelven "YYYY-MM-DD HH:MM" comparables como string.
func (e Entry) start() string { return e.Date + " " + e.Time }
func (e Entry) end() string   { return e.EndDate + " " + e.EndTime }

// AttachResult reporta un upload parcial: nunca es todo o nada.
type AttachResult struct {
	Entry    Entry
	Uploaded int
	Failed   int
}
