package handlers

import (
	"net/http"

	"github.com/BroadApps-official/App-056/internal/catalog"
	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/BroadApps-official/App-056/internal/store"
	"github.com/gin-gonic/gin"
)

type StylesHandler struct {
	catalog *catalog.Service
	users   *store.Users
}

func NewStylesHandler(catalog *catalog.Service, users *store.Users) *StylesHandler {
	return &StylesHandler{catalog: catalog, users: users}
}

// GetStyles godoc
// @Summary     Style catalog
// @Description Returns the template catalog for a gender. Falls back to the last stored catalog when the backend is unreachable.
// @Tags        styles
// @Produce     json
// @Security    Bearer
// @Param       gender query string false "f or m; defaults to the user's gender"
// @Success     200 {object} models.StylesResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     502 {object} models.ErrorResponse
// @Router      /styles [get]
func (h *StylesHandler) GetStyles(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	gender := c.Query("gender")
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

	cat, err := h.catalog.Styles(c.Request.Context(), userID, gender)
	if err != nil {
		respondError(c, err, "failed to load styles")
		return
	}

	c.JSON(http.StatusOK, models.StylesResponse{
		Categories: cat.Categories,
		Stale:      cat.Stale,
		FetchedAt:  cat.FetchedAt,
	})
}
