package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/BroadApps-official/App-056/internal/middleware"
	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/BroadApps-official/App-056/internal/store"
	"github.com/gin-gonic/gin"
)

// LoginClient registers the user with the generation backend.
type LoginClient interface {
	Login(ctx context.Context, userID, gender string) error
}

type SessionHandler struct {
	users    *store.Users
	login    LoginClient
	secret   string
	tokenTTL time.Duration
	log      *logger.Logger
}

func NewSessionHandler(users *store.Users, login LoginClient, secret string, tokenTTL time.Duration, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		users:    users,
		login:    login,
		secret:   secret,
		tokenTTL: tokenTTL,
		log:      log.With("service", "SessionHandler"),
	}
}

// CreateSession godoc
// @Summary     Start a session
// @Description Creates the install user on first launch, registers it with the backend and returns a bearer token. Only the install user can get a token.
// @Tags        session
// @Accept      json
// @Produce     json
// @Param       request body models.SessionRequest false "Known user id and gender"
// @Success     200 {object} models.SessionResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     403 {object} models.ErrorResponse
// @Router      /session [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req models.SessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
			return
		}
	}

	user, created, err := h.users.Claim(c.Request.Context(), req.UserID, req.Gender)
	if err != nil {
		if errors.Is(err, store.ErrForeignUser) {
			h.log.Warn("Session refused for foreign user id")
		}
		respondError(c, err, "failed to start session")
		return
	}

	// Login failures do not block the session; the next launch retries.
	loggedIn := true
	if h.login != nil {
		if err := h.login.Login(c.Request.Context(), user.ID, user.Gender); err != nil {
			loggedIn = false
			h.log.Warn("Backend login failed", "user_id", user.ID, "error", err)
		}
	}

	token, _, err := middleware.IssueToken(h.secret, user.ID, h.tokenTTL)
	if err != nil {
		respondError(c, err, "failed to issue token")
		return
	}

	if created {
		h.log.Info("New install session", "user_id", user.ID)
	}
	c.JSON(http.StatusOK, models.SessionResponse{Token: token, User: user, LoggedIn: loggedIn})
}

// GetMe godoc
// @Summary     Current user
// @Tags        session
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.User
// @Failure     404 {object} models.ErrorResponse
// @Router      /me [get]
func (h *SessionHandler) GetMe(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "user not found")
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateMe godoc
// @Summary     Update the current user
// @Description Changes the gender and the notification opt-in
// @Tags        session
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.UpdateMeRequest true "Fields to change"
// @Success     200 {object} models.User
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /me [patch]
func (h *SessionHandler) UpdateMe(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req models.UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}
	if req.Gender == nil && req.NotificationsEnabled == nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: "nothing to update"})
		return
	}

	ctx := c.Request.Context()
	var (
		user models.User
		err  error
	)
	if req.Gender != nil {
		if user, err = h.users.SetGender(ctx, userID, *req.Gender); err != nil {
			respondError(c, err, "failed to update user")
			return
		}
	}
	if req.NotificationsEnabled != nil {
		if user, err = h.users.SetNotifications(ctx, userID, *req.NotificationsEnabled); err != nil {
			respondError(c, err, "failed to update user")
			return
		}
	}
	c.JSON(http.StatusOK, user)
}
