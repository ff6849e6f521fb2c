package models

import "time"

const (
	GenderFemale = "f"
	GenderMale   = "m"
)

// User is the install identity. The id never changes once created.
type User struct {
	ID                   string    `gorm:"primaryKey;size:128" json:"id"`
	Gender               string    `gorm:"size:8;not null;default:f" json:"gender"`
	NotificationsEnabled bool      `gorm:"not null;default:false" json:"notifications_enabled"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func ValidGender(g string) bool {
	return g == GenderFemale || g == GenderMale
}
