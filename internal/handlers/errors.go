package handlers

import (
	"errors"
	"net/http"

	"github.com/BroadApps-official/App-056/internal/avatarapi"
	"github.com/BroadApps-official/App-056/internal/avatars"
	"github.com/BroadApps-official/App-056/internal/generation"
	"github.com/BroadApps-official/App-056/internal/middleware"
	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/BroadApps-official/App-056/internal/store"
	"github.com/BroadApps-official/App-056/internal/subscription"
	"github.com/gin-gonic/gin"
)

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generation.ErrInvalidRequest),
		errors.Is(err, store.ErrInvalidGender),
		errors.Is(err, avatars.ErrNoPhotos),
		errors.Is(err, subscription.ErrUnknownPlan):
		return http.StatusBadRequest
	case errors.Is(err, subscription.ErrNotEntitled):
		return http.StatusPaymentRequired
	case errors.Is(err, store.ErrForeignUser):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, generation.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, avatars.ErrAvatarLimit):
		return http.StatusConflict
	case errors.Is(err, generation.ErrClosed),
		errors.Is(err, avatars.ErrClosed):
		return http.StatusServiceUnavailable
	case avatarapi.KindOf(err) != 0:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error, msg string) {
	c.JSON(statusFor(err), models.ErrorResponse{Error: msg, Message: err.Error()})
}

// requireUser reads the authenticated user id or answers 401.
func requireUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return "", false
	}
	return userID, true
}
