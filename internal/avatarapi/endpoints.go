package avatarapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/tidwall/gjson"
)

// Login registers the install identity with the backend. The response body
// carries nothing the app needs; only an explicit error envelope fails it.
func (c *Client) Login(ctx context.Context, userID, gender string) error {
	const op = "login"
	body, err := c.doJSON(ctx, op, http.MethodPost, "/user/login", nil, loginIn{
		UserID: userID,
		Gender: gender,
		Source: c.source,
	})
	if err != nil {
		return err
	}
	if gjson.ValidBytes(body) && gjson.GetBytes(body, "error").Bool() {
		return applicationErr(op, gjson.GetBytes(body, "message").String())
	}
	return nil
}

func (c *Client) ListStyles(ctx context.Context, userID, gender string) ([]models.StyleCategory, error) {
	const op = "list styles"
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("lang", c.lang)
	query.Set("gender", gender)
	query.Set("tag", c.tag)

	body, err := c.do(ctx, op, http.MethodGet, "/photo/styles", query, nil, "")
	if err != nil {
		return nil, err
	}

	var out []styleCategoryOut
	if err := decodeData(op, body, &out); err != nil {
		return nil, err
	}
	categories := make([]models.StyleCategory, 0, len(out))
	for _, cat := range out {
		categories = append(categories, cat.model())
	}
	return categories, nil
}

// UploadAvatarPhotos sends the training photos as multipart/form-data. The
// returned generation usually has no avatar yet; see AvatarStatus.
func (c *Client) UploadAvatarPhotos(ctx context.Context, userID, gender string, photos []Photo, preview *Photo) (models.AvatarGeneration, error) {
	const op = "upload avatar"
	if len(photos) == 0 {
		return models.AvatarGeneration{}, transportErr(op, errors.New("no photos to upload"))
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("userId", userID); err != nil {
		return models.AvatarGeneration{}, transportErr(op, err)
	}
	if err := w.WriteField("gender", gender); err != nil {
		return models.AvatarGeneration{}, transportErr(op, err)
	}
	for i, p := range photos {
		name := p.Filename
		if name == "" {
			name = fmt.Sprintf("photo%d.jpg", i)
		}
		if err := writeJPEG(w, "photo[]", name, p.Data); err != nil {
			return models.AvatarGeneration{}, transportErr(op, err)
		}
	}
	if preview != nil {
		if err := writeJPEG(w, "preview", "preview.jpg", preview.Data); err != nil {
			return models.AvatarGeneration{}, transportErr(op, err)
		}
	}
	if err := w.Close(); err != nil {
		return models.AvatarGeneration{}, transportErr(op, err)
	}

	body, err := c.do(ctx, op, http.MethodPost, "/avatar/add", nil, &buf, w.FormDataContentType())
	if err != nil {
		return models.AvatarGeneration{}, err
	}
	return decodeAvatarGeneration(op, body)
}

// quoteEscaper matches mime/multipart's; line breaks are dropped so a client
// filename cannot end the part header.
var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"", "\r", "", "\n", "")

func writeJPEG(w *multipart.Writer, field, filename string, data []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

func (c *Client) AvatarStatus(ctx context.Context, userID string, generationID int) (models.AvatarGeneration, error) {
	const op = "avatar status"
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("generationId", strconv.Itoa(generationID))

	body, err := c.do(ctx, op, http.MethodGet, "/avatar/status", query, nil, "")
	if err != nil {
		return models.AvatarGeneration{}, err
	}
	return decodeAvatarGeneration(op, body)
}

// AddAvatarGeneration buys one more avatar slot for the user.
func (c *Client) AddAvatarGeneration(ctx context.Context, userID string, productID int) (models.AvatarGeneration, error) {
	const op = "add avatar generation"
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("productId", strconv.Itoa(productID))
	query.Set("source", c.source)

	body, err := c.do(ctx, op, http.MethodPost, "/user/addAvatar", query, nil, "")
	if err != nil {
		return models.AvatarGeneration{}, err
	}

	// data may be null when the backend only returns the avatars list.
	if gjson.GetBytes(body, "data").Type == gjson.Null && !gjson.GetBytes(body, "error").Bool() {
		avatars := gjson.GetBytes(body, "avatars").Array()
		if len(avatars) == 0 {
			return models.AvatarGeneration{}, decodeErr(op, errors.New("response has no data"))
		}
		var g avatarGenerationOut
		if err := json.Unmarshal([]byte(avatars[len(avatars)-1].Raw), &g); err != nil {
			return models.AvatarGeneration{}, decodeErr(op, err)
		}
		m, err := g.model()
		if err != nil {
			return models.AvatarGeneration{}, decodeErr(op, err)
		}
		return m, nil
	}
	return decodeAvatarGeneration(op, body)
}

func decodeAvatarGeneration(op string, body []byte) (models.AvatarGeneration, error) {
	var out avatarGenerationOut
	if err := decodeData(op, body, &out); err != nil {
		return models.AvatarGeneration{}, err
	}
	m, err := out.model()
	if err != nil {
		return models.AvatarGeneration{}, decodeErr(op, err)
	}
	return m, nil
}

func (c *Client) ListAvatars(ctx context.Context, userID string) ([]models.Avatar, error) {
	const op = "list avatars"
	query := url.Values{}
	query.Set("userId", userID)

	body, err := c.do(ctx, op, http.MethodGet, "/avatar/list", query, nil, "")
	if err != nil {
		return nil, err
	}

	var out []avatarOut
	if err := decodeData(op, body, &out); err != nil {
		return nil, err
	}
	avatars := make([]models.Avatar, 0, len(out))
	for _, a := range out {
		avatars = append(avatars, a.model())
	}
	return avatars, nil
}

// SubmitGeneration picks the endpoint for the request's mode and normalizes the
// response. The request is validated before anything goes on the wire.
func (c *Client) SubmitGeneration(ctx context.Context, userID string, req models.GenerationRequest) (models.GenerationJob, error) {
	const op = "submit generation"
	if err := req.Validate(); err != nil {
		return models.GenerationJob{}, err
	}

	query := url.Values{}
	query.Set("userId", userID)

	var path string
	switch req.Mode {
	case models.ModeTemplate:
		path = "/photo/generate"
		query.Set("templateId", strconv.Itoa(req.TemplateID))
		query.Set("avatarId", strconv.Itoa(req.AvatarID))
	case models.ModeGodMode:
		path = "/photo/generate/godMode"
		query.Set("avatarId", strconv.Itoa(req.AvatarID))
		query.Set("prompt", req.Prompt)
	case models.ModeTextToImage:
		path = "/photo/generate/txt2img"
		query.Set("prompt", req.Prompt)
	}

	body, err := c.do(ctx, op, http.MethodPost, path, query, nil, "")
	if err != nil {
		return models.GenerationJob{}, err
	}

	var out generationOut
	if err := decodeData(op, body, &out); err != nil {
		return models.GenerationJob{}, err
	}
	if out.JobID == "" {
		return models.GenerationJob{}, decodeErr(op, errors.New("response has no jobId"))
	}
	return out.model(req.Mode), nil
}

// JobStatus reads the current state of a generation job. Safe to repeat.
func (c *Client) JobStatus(ctx context.Context, userID, jobID string) (models.JobStatus, error) {
	const op = "job status"
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("jobId", jobID)

	body, err := c.do(ctx, op, http.MethodGet, "/services/status", query, nil, "")
	if err != nil {
		return models.JobStatus{}, err
	}

	var out jobStatusOut
	if err := decodeData(op, body, &out); err != nil {
		return models.JobStatus{}, err
	}
	return models.JobStatus{
		Status:    out.Status,
		Preview:   out.Preview,
		ResultURL: out.ResultURL,
	}, nil
}

// SetPaidPlan tells the backend a purchase happened and hands back whatever JSON
// object it answered with.
func (c *Client) SetPaidPlan(ctx context.Context, userID string, productID int) (map[string]any, error) {
	const op = "set paid plan"
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("productId", strconv.Itoa(productID))
	query.Set("source", c.source)

	body, err := c.do(ctx, op, http.MethodPost, "/user/setPaid", query, nil, "")
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	if !gjson.ValidBytes(body) || !parsed.IsObject() {
		return nil, decodeErr(op, fmt.Errorf("expected a JSON object, body: %s", truncate(string(body), 256)))
	}
	if parsed.Get("error").Bool() {
		return nil, applicationErr(op, parsed.Get("message").String())
	}
	out, ok := parsed.Value().(map[string]interface{})
	if !ok {
		return nil, decodeErr(op, errors.New("expected a JSON object"))
	}
	return out, nil
}
