package models

import (
	"strings"
	"time"
)

type GenerationMode string

const (
	ModeTemplate    GenerationMode = "template"
	ModeGodMode     GenerationMode = "god_mode"
	ModeTextToImage GenerationMode = "txt2img"
)

func (m GenerationMode) Valid() bool {
	switch m {
	case ModeTemplate, ModeGodMode, ModeTextToImage:
		return true
	}
	return false
}

// Category is the project bucket a mode's results land in.
func (m GenerationMode) Category() Category {
	if m == ModeTemplate {
		return CategoryPreset
	}
	return CategoryArtwork
}

// GenerationRequest carries the mode-specific parameters of a submission.
type GenerationRequest struct {
	Mode       GenerationMode `json:"mode"`
	TemplateID int            `json:"template_id,omitempty"`
	AvatarID   int            `json:"avatar_id,omitempty"`
	Prompt     string         `json:"prompt,omitempty"`
}

// Validate checks that the fields required by the mode are present.
func (r GenerationRequest) Validate() error {
	switch r.Mode {
	case ModeTemplate:
		if r.TemplateID <= 0 || r.AvatarID <= 0 {
			return errString("template mode requires template_id and avatar_id")
		}
	case ModeGodMode:
		if r.AvatarID <= 0 || strings.TrimSpace(r.Prompt) == "" {
			return errString("god mode requires avatar_id and prompt")
		}
	case ModeTextToImage:
		if strings.TrimSpace(r.Prompt) == "" {
			return errString("txt2img mode requires prompt")
		}
	default:
		return errString("unknown generation mode " + string(r.Mode))
	}
	return nil
}

// Server status markers. Anything else is still pending.
const (
	StatusQueued     = "IN_QUEUE"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
)

// IsCompletedStatus reports whether the server status is the terminal success marker.
func IsCompletedStatus(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), StatusCompleted)
}

// IsFailedStatus reports whether the server explicitly gave up on the job.
func IsFailedStatus(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FAILED", "ERROR", "CANCELED", "CANCELLED":
		return true
	}
	return false
}

// GenerationJob is the normalized response of any of the three submit endpoints.
type GenerationJob struct {
	ID           int            `json:"id"`
	GenerationID int            `json:"generation_id"`
	JobID        string         `json:"job_id"`
	Mode         GenerationMode `json:"mode"`
	TemplateID   *int           `json:"template_id,omitempty"`
	Preview      *string        `json:"preview,omitempty"`
	ResultURL    *string        `json:"result_url,omitempty"`
	Status       string         `json:"status"`
	StartedAt    string         `json:"started_at"`
	FinishedAt   *string        `json:"finished_at,omitempty"`
}

// JobStatus is one answer of the status endpoint.
type JobStatus struct {
	Status    string  `json:"status"`
	Preview   *string `json:"preview,omitempty"`
	ResultURL *string `json:"result_url,omitempty"`
}

// Result picks the URL that replaces the placeholder: the full result when
// present, the preview otherwise.
func (s JobStatus) Result() string {
	if s.ResultURL != nil && *s.ResultURL != "" {
		return *s.ResultURL
	}
	if s.Preview != nil {
		return *s.Preview
	}
	return ""
}

// JobState is the local lifecycle of a submitted job.
type JobState string

const (
	JobSubmitting JobState = "submitting"
	JobPolling    JobState = "polling"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
	JobCancelled  JobState = "cancelled"
)

func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobView is a point-in-time copy of an in-flight or finished job.
type JobView struct {
	JobID           string         `json:"job_id"`
	UserID          string         `json:"-"`
	GenerationID    int            `json:"generation_id"`
	Mode            GenerationMode `json:"mode"`
	Category        Category       `json:"category"`
	State           JobState       `json:"state"`
	ServerStatus    string         `json:"server_status"`
	ResultURL       string         `json:"result_url,omitempty"`
	Error           string         `json:"error,omitempty"`
	PollFailures    int            `json:"poll_failures"`
	NotifyAvailable bool           `json:"notify_available"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
}

type errString string

func (e errString) Error() string { return string(e) }
