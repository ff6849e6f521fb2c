package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BroadApps-official/App-056/internal/handlers"
	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/BroadApps-official/App-056/internal/store"
	"github.com/BroadApps-official/App-056/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogin struct {
	calls []string
	err   error
}

func (f *fakeLogin) Login(ctx context.Context, userID, gender string) error {
	f.calls = append(f.calls, userID+":"+gender)
	return f.err
}

func sessionRouter(t *testing.T, login *fakeLogin) (*gin.Engine, *store.Users) {
	t.Helper()
	users := store.NewUsers(testutil.DB(t), testutil.Logger(t))
	h := handlers.NewSessionHandler(users, login, testSecret, time.Hour, testutil.Logger(t))
	router := newEngine(func(api *gin.RouterGroup) {
		api.GET("/me", h.GetMe)
		api.PATCH("/me", h.UpdateMe)
	})
	router.POST("/api/v1/session", h.CreateSession)
	return router, users
}

func TestCreateSession_NewUser(t *testing.T) {
	login := &fakeLogin{}
	router, _ := sessionRouter(t, login)

	w := serve(t, router, http.MethodPost, "/api/v1/session", "", jsonBody(t, models.SessionRequest{Gender: "m"}), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.SessionResponse
	decode(t, w, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.NotEmpty(t, resp.User.ID)
	assert.Equal(t, "m", resp.User.Gender)
	assert.True(t, resp.LoggedIn)
	assert.Equal(t, []string{resp.User.ID + ":m"}, login.calls)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	me := httptest.NewRecorder()
	router.ServeHTTP(me, req)
	assert.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), resp.User.ID)
}

func TestCreateSession_LoginFailureIsNotFatal(t *testing.T) {
	router, _ := sessionRouter(t, &fakeLogin{err: errors.New("offline")})

	w := serve(t, router, http.MethodPost, "/api/v1/session", "", jsonBody(t, models.SessionRequest{UserID: "known"}), "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.SessionResponse
	decode(t, w, &resp)
	assert.Equal(t, "known", resp.User.ID)
	assert.False(t, resp.LoggedIn)
}

func TestCreateSession_OnlyTheInstallUserGetsAToken(t *testing.T) {
	router, _ := sessionRouter(t, &fakeLogin{})

	w := serve(t, router, http.MethodPost, "/api/v1/session", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var install models.SessionResponse
	decode(t, w, &install)

	w = serve(t, router, http.MethodPost, "/api/v1/session", "", jsonBody(t, models.SessionRequest{UserID: "other-install"}), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotContains(t, w.Body.String(), "token")

	w = serve(t, router, http.MethodPost, "/api/v1/session", "", jsonBody(t, models.SessionRequest{UserID: install.User.ID}), "")
	require.Equal(t, http.StatusOK, w.Code)
	var again models.SessionResponse
	decode(t, w, &again)
	assert.Equal(t, install.User.ID, again.User.ID)
}

func TestCreateSession_InvalidGender(t *testing.T) {
	router, _ := sessionRouter(t, &fakeLogin{})
	w := serve(t, router, http.MethodPost, "/api/v1/session", "", jsonBody(t, models.SessionRequest{Gender: "x"}), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateMe(t *testing.T) {
	router, users := sessionRouter(t, &fakeLogin{})
	_, _, err := users.Ensure(context.Background(), "u1", "f")
	require.NoError(t, err)

	enabled := true
	w := serve(t, router, http.MethodPatch, "/api/v1/me", "u1", jsonBody(t, models.UpdateMeRequest{NotificationsEnabled: &enabled}), "")
	require.Equal(t, http.StatusOK, w.Code)
	var user models.User
	decode(t, w, &user)
	assert.True(t, user.NotificationsEnabled)

	bad := "z"
	w = serve(t, router, http.MethodPatch, "/api/v1/me", "u1", jsonBody(t, models.UpdateMeRequest{Gender: &bad}), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, router, http.MethodPatch, "/api/v1/me", "u1", jsonBody(t, map[string]string{}), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, router, http.MethodGet, "/api/v1/me", "ghost", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
