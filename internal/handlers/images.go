package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/BroadApps-official/App-056/internal/imagecache"
	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/gin-gonic/gin"
)

type ImageCache interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

type ImagesHandler struct {
	cache ImageCache
}

func NewImagesHandler(cache ImageCache) *ImagesHandler {
	return &ImagesHandler{cache: cache}
}

// GetImage godoc
// @Summary     Cached image
// @Description Serves a remote image through the on-disk cache. Only allowlisted hosts are fetched and only image bodies are returned.
// @Tags        images
// @Produce     image/jpeg,image/png
// @Security    Bearer
// @Param       url query string true "Absolute http(s) image URL"
// @Success     200 {file} binary
// @Failure     400 {object} models.ErrorResponse
// @Failure     403 {object} models.ErrorResponse
// @Failure     502 {object} models.ErrorResponse
// @Router      /images [get]
func (h *ImagesHandler) GetImage(c *gin.Context) {
	raw := c.Query("url")
	u, err := url.Parse(raw)
	if raw == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid url", Message: "url must be an absolute http(s) URL"})
		return
	}

	data, err := h.cache.Get(c.Request.Context(), raw)
	if errors.Is(err, imagecache.ErrHostNotAllowed) {
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "host not allowed", Message: u.Hostname()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "failed to fetch image", Message: err.Error()})
		return
	}

	// Cached entries are keyed by URL and never change.
	c.Header("Cache-Control", "private, max-age=31536000, immutable")
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}
