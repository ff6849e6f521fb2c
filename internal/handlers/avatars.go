package handlers

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/BroadApps-official/App-056/internal/avatarapi"
	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/BroadApps-official/App-056/internal/store"
	"github.com/gin-gonic/gin"
)

const maxPhotoSize = 15 << 20

type AvatarService interface {
	List(ctx context.Context, userID string) ([]models.Avatar, error)
	Create(ctx context.Context, userID, gender string, photos []avatarapi.Photo, preview *avatarapi.Photo) (models.AvatarGeneration, error)
	BuySlot(ctx context.Context, userID string) (models.AvatarGeneration, error)
	Pending(userID string) int
	CanAdd(userID string, listed int) bool
}

type AvatarsHandler struct {
	avatars AvatarService
	users   *store.Users
}

func NewAvatarsHandler(avatars AvatarService, users *store.Users) *AvatarsHandler {
	return &AvatarsHandler{avatars: avatars, users: users}
}

// ListAvatars godoc
// @Summary     List avatars
// @Description Returns the user's avatars, the number still being created and whether another fits under the limit
// @Tags        avatars
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.AvatarsResponse
// @Failure     502 {object} models.ErrorResponse
// @Router      /avatars [get]
func (h *AvatarsHandler) ListAvatars(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	list, err := h.avatars.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to list avatars")
		return
	}
	if list == nil {
		list = []models.Avatar{}
	}

	c.JSON(http.StatusOK, models.AvatarsResponse{
		Avatars:    list,
		Pending:    h.avatars.Pending(userID),
		MaxAvatars: models.MaxAvatars,
		CanAdd:     h.avatars.CanAdd(userID, len(list)),
	})
}

// CreateAvatar godoc
// @Summary     Create an avatar
// @Description Uploads training photos. The avatar is ready once an avatar_ready event arrives.
// @Tags        avatars
// @Accept      multipart/form-data
// @Produce     json
// @Security    Bearer
// @Param       photos  formData file true  "Training photos"
// @Param       preview formData file false "Preview photo"
// @Param       gender  formData string false "f or m"
// @Success     202 {object} models.AvatarGeneration
// @Failure     400 {object} models.ErrorResponse
// @Failure     402 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /avatars [post]
func (h *AvatarsHandler) CreateAvatar(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid multipart form", Message: err.Error()})
		return
	}

	photos := make([]avatarapi.Photo, 0, len(form.File["photos"]))
	for _, fh := range form.File["photos"] {
		photo, err := readPhoto(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid photo", Message: err.Error()})
			return
		}
		photos = append(photos, photo)
	}

	var preview *avatarapi.Photo
	if files := form.File["preview"]; len(files) > 0 {
		p, err := readPhoto(files[0])
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid preview", Message: err.Error()})
			return
		}
		preview = &p
	}

	gender := c.PostForm("gender")
	if gender == "" {
		gender = models.GenderFemale
		if user, err := h.users.Get(c.Request.Context(), userID); err == nil {
			gender = user.Gender
		}
	}
	if !models.ValidGender(gender) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid gender", Message: "gender must be f or m"})
		return
	}

	gen, err := h.avatars.Create(c.Request.Context(), userID, gender, photos, preview)
	if err != nil {
		respondError(c, err, "failed to create avatar")
		return
	}
	c.JSON(http.StatusAccepted, gen)
}

// BuySlot godoc
// @Summary     Buy an avatar slot
// @Tags        avatars
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.AvatarGeneration
// @Failure     402 {object} models.ErrorResponse
// @Failure     502 {object} models.ErrorResponse
// @Router      /avatars/slots [post]
func (h *AvatarsHandler) BuySlot(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	gen, err := h.avatars.BuySlot(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to add avatar slot")
		return
	}
	c.JSON(http.StatusOK, gen)
}

func readPhoto(fh *multipart.FileHeader) (avatarapi.Photo, error) {
	if fh.Size > maxPhotoSize {
		return avatarapi.Photo{}, fmt.Errorf("%s exceeds %d bytes", fh.Filename, maxPhotoSize)
	}
	f, err := fh.Open()
	if err != nil {
		return avatarapi.Photo{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxPhotoSize+1))
	if err != nil {
		return avatarapi.Photo{}, err
	}
	if len(data) == 0 {
		return avatarapi.Photo{}, fmt.Errorf("%s is empty", fh.Filename)
	}
	return avatarapi.Photo{Filename: fh.Filename, Data: data}, nil
}
