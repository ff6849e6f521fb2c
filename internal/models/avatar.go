package models

// MaxAvatars is the number of avatars a user may hold.
const MaxAvatars = 2

type Avatar struct {
	ID       int     `json:"id"`
	Title    *string `json:"title,omitempty"`
	Preview  *string `json:"preview,omitempty"`
	Gender   string  `json:"gender"`
	IsActive bool    `json:"is_active"`
}

// Ready reports whether the avatar-creation job has produced a preview.
func (a Avatar) Ready() bool {
	return a.Preview != nil && *a.Preview != ""
}

// AvatarGeneration is the server-side job that turns uploaded photos into an
// Avatar. Avatar stays nil until the job resolves.
type AvatarGeneration struct {
	ID        int     `json:"id"`
	Status    string  `json:"status"`
	JobID     string  `json:"job_id"`
	Avatar    *Avatar `json:"avatar,omitempty"`
	CreatedAt string  `json:"created_at"`
}
