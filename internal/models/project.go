package models

import "time"

type Category string

const (
	CategoryPreset  Category = "preset"
	CategoryArtwork Category = "artwork"
)

// PlaceholderImage is stored as the image of a project until its job resolves.
const PlaceholderImage = "avatar-placeholder"

// DateLayout renders the creation-date string shown on project cards.
const DateLayout = "1/2/06, 3:04 PM"

// Project is one generated artifact kept on the device. Its ID is the job id that
// produced it.
type Project struct {
	ID            string         `gorm:"primaryKey;size:128" json:"id"`
	UserID        string         `gorm:"size:128;not null;index" json:"-"`
	Category      Category       `gorm:"size:16;not null" json:"category"`
	Mode          GenerationMode `gorm:"size:16" json:"mode,omitempty"`
	ImageURL      string         `gorm:"not null" json:"image"`
	Date          string         `gorm:"size:64" json:"date"`
	IsSelected    bool           `gorm:"not null;default:false" json:"is_selected"`
	IsLoading     bool           `gorm:"not null;default:false" json:"is_loading"`
	IsFailed      bool           `gorm:"not null;default:false" json:"is_failed"`
	FailureReason string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewPlaceholder builds the optimistic record inserted right after submission.
func NewPlaceholder(jobID, userID string, mode GenerationMode, now time.Time) Project {
	return Project{
		ID:        jobID,
		UserID:    userID,
		Category:  mode.Category(),
		Mode:      mode,
		ImageURL:  PlaceholderImage,
		Date:      now.Format(DateLayout),
		IsLoading: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ProjectLists is the store split into its two static buckets.
type ProjectLists struct {
	Presets  []Project `json:"presets"`
	Artworks []Project `json:"artworks"`
}
