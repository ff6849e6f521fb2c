package avatarapi

import (
	"bytes"
	"encoding/json"

	"github.com/BroadApps-official/App-056/internal/models"
)

// Photo is one image attached to an avatar upload.
type Photo struct {
	Filename string
	Data     []byte
}

type styleTemplateOut struct {
	ID        int     `json:"id"`
	Title     *string `json:"title"`
	Preview   string  `json:"preview"`
	Gender    string  `json:"gender"`
	IsEnabled bool    `json:"isEnabled"`
}

type styleCategoryOut struct {
	ID        int                `json:"id"`
	Title     string             `json:"title"`
	Preview   *string            `json:"preview"`
	IsNew     bool               `json:"isNew"`
	Templates []styleTemplateOut `json:"templates"`
}

func (c styleCategoryOut) model() models.StyleCategory {
	out := models.StyleCategory{
		ID:        c.ID,
		Title:     c.Title,
		Preview:   c.Preview,
		IsNew:     c.IsNew,
		Templates: make([]models.StyleTemplate, 0, len(c.Templates)),
	}
	for _, t := range c.Templates {
		out.Templates = append(out.Templates, models.StyleTemplate{
			ID:        t.ID,
			Title:     t.Title,
			Preview:   t.Preview,
			Gender:    t.Gender,
			IsEnabled: t.IsEnabled,
		})
	}
	return out
}

type avatarOut struct {
	ID       int     `json:"id"`
	Title    *string `json:"title"`
	Preview  *string `json:"preview"`
	Gender   string  `json:"gender"`
	IsActive bool    `json:"isActive"`
}

func (a avatarOut) model() models.Avatar {
	return models.Avatar{
		ID:       a.ID,
		Title:    a.Title,
		Preview:  a.Preview,
		Gender:   a.Gender,
		IsActive: a.IsActive,
	}
}

// avatarGenerationOut is shared by upload, avatar status and addAvatar. The
// upload endpoint sends avatar as a string (or null) while the job runs, so the
// field is only decoded when it holds an object.
type avatarGenerationOut struct {
	ID        int             `json:"id"`
	Status    string          `json:"status"`
	JobID     string          `json:"jobId"`
	Avatar    json.RawMessage `json:"avatar"`
	CreatedAt string          `json:"createdAt"`
}

func (g avatarGenerationOut) model() (models.AvatarGeneration, error) {
	out := models.AvatarGeneration{
		ID:        g.ID,
		Status:    g.Status,
		JobID:     g.JobID,
		CreatedAt: g.CreatedAt,
	}
	raw := bytes.TrimSpace(g.Avatar)
	if len(raw) > 0 && raw[0] == '{' {
		var a avatarOut
		if err := json.Unmarshal(raw, &a); err != nil {
			return out, err
		}
		m := a.model()
		out.Avatar = &m
	}
	return out, nil
}

type generationOut struct {
	ID           int     `json:"id"`
	GenerationID int     `json:"generationId"`
	JobID        string  `json:"jobId"`
	TemplateID   *int    `json:"templateId"`
	Preview      *string `json:"preview"`
	ResultURL    *string `json:"resultUrl"`
	Status       string  `json:"status"`
	StartedAt    string  `json:"startedAt"`
	FinishedAt   *string `json:"finishedAt"`
	IsCouple     *bool   `json:"isCouple"`
	IsTxt2Img    *bool   `json:"isTxt2Img"`
}

// model normalizes the three submit responses into one job. The mode the
// caller asked for wins; the server flags are only consulted when it is unset.
func (g generationOut) model(requested models.GenerationMode) models.GenerationJob {
	mode := requested
	if mode == "" {
		switch {
		case g.IsCouple != nil && *g.IsCouple:
			mode = models.ModeGodMode
		case g.IsTxt2Img != nil && *g.IsTxt2Img:
			mode = models.ModeTextToImage
		default:
			mode = models.ModeTemplate
		}
	}
	return models.GenerationJob{
		ID:           g.ID,
		GenerationID: g.GenerationID,
		JobID:        g.JobID,
		Mode:         mode,
		TemplateID:   g.TemplateID,
		Preview:      g.Preview,
		ResultURL:    g.ResultURL,
		Status:       g.Status,
		StartedAt:    g.StartedAt,
		FinishedAt:   g.FinishedAt,
	}
}

type jobStatusOut struct {
	ID           int     `json:"id"`
	GenerationID int     `json:"generationId"`
	JobID        string  `json:"jobId"`
	Status       string  `json:"status"`
	Preview      *string `json:"preview"`
	ResultURL    *string `json:"resultUrl"`
}

type loginIn struct {
	UserID string `json:"userId"`
	Gender string `json:"gender"`
	Source string `json:"source"`
}
