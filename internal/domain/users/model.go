package users

import "time"

// TimeFormat define cómo se muestran las horas.
// @Enum 12h, 24h
type TimeFormat string

const (
	TimeFormat12h TimeFormat = "12h"
	TimeFormat24h TimeFormat = "24h"
)

// ToastPositions son las posiciones válidas de las notificaciones en pantalla.
var ToastPositions = []string{"top-left", "top-center", "top-right", "bottom-left", "bottom-center", "bottom-right"}

type Notifications struct {
	ScheduleReminders bool `json:"scheduleReminders"`
	MemberInvites     bool `json:"memberInvites"`
}

type Settings struct {
	Notifications Notifications `json:"notifications"`
	TimeFormat    TimeFormat    `json:"timeFormat"`
	ToastPosition string        `json:"toastPosition"`
}

// DefaultSettings se aplican al crear el usuario.
func DefaultSettings() Settings {
	return Settings{
		Notifications: Notifications{ScheduleReminders: true, MemberInvites: true},
		TimeFormat:    TimeFormat24h,
		ToastPosition: "bottom-right",
	}
}

// User es el perfil de una identidad autenticada; se crea la primera vez que llama a la API.
type User struct {
	ID    string
	Email string

	DisplayName string
	Nickname    string
	AvatarURL   string

	Settings Settings

	CreatedAt time.Time
	UpdatedAt time.Time
}
