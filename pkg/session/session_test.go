package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWithCookies(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestSessionManagerLifecycle(t *testing.T) {
	sm := NewSessionsManager(time.Hour)

	rec := httptest.NewRecorder()
	sess, err := sm.CreateSession(rec, "alice", "u1")
	require.NoError(t, err)
	assert.Len(t, sess.ID, 32)

	got, err := sm.CheckSession(requestWithCookies(rec))
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	req := requestWithCookies(rec)
	require.NoError(t, sm.DestroySession(httptest.NewRecorder(), req))
	_, err = sm.CheckSession(req)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManagerWithoutCookie(t *testing.T) {
	sm := NewSessionsManager(time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, err := sm.CheckSession(req)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, sm.DestroySession(httptest.NewRecorder(), req), ErrSessionNotFound)
}

func TestSessionManagerExpires(t *testing.T) {
	sm := NewSessionsManager(-time.Minute)
	rec := httptest.NewRecorder()
	_, err := sm.CreateSession(rec, "alice", "u1")
	require.NoError(t, err)

	_, err = sm.CheckSession(requestWithCookies(rec))
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, sm.data)
}

func TestSessionContext(t *testing.T) {
	_, err := GetSessionFromContext(context.Background())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	sess := &Session{UserName: "bob", UserID: "u2"}
	got, err := GetSessionFromContext(CreateContextWithSession(context.Background(), sess))
	require.NoError(t, err)
	assert.Same(t, sess, got)
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	raw, err := tm.Issue("alice", "u1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	sess, err := tm.FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.UserName)
	assert.Equal(t, "u1", sess.UserID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.Expires, 2*time.Second)
}

func TestTokenRejected(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)

	other, err := NewTokenManager("other", time.Hour).Issue("alice", "u1")
	require.NoError(t, err)
	_, err = tm.Parse(other)
	assert.ErrorIs(t, err, ErrBadToken, "wrong secret")

	expired, err := NewTokenManager("secret", -time.Hour).Issue("alice", "u1")
	require.NoError(t, err)
	_, err = tm.Parse(expired)
	assert.ErrorIs(t, err, ErrBadToken, "expired")

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString(tm.Secret)
	require.NoError(t, err)
	_, err = tm.Parse(noUser)
	assert.ErrorIs(t, err, ErrBadToken, "no user claim")

	_, err = tm.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrBadToken)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	_, err = tm.FromRequest(req)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTokenRevoked(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	first, err := tm.Issue("alice", "u1")
	require.NoError(t, err)
	second, err := tm.Issue("alice", "u1")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.Header.Set("Authorization", "Bearer "+first)
	require.NoError(t, tm.RevokeRequest(req))

	_, err = tm.FromRequest(req)
	assert.ErrorIs(t, err, ErrBadToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	sess, err := tm.Parse(second)
	require.NoError(t, err, "other logins stay valid")
	assert.NotEmpty(t, sess.ID)

	assert.ErrorIs(t, tm.RevokeRequest(httptest.NewRequest(http.MethodPost, "/", nil)), ErrSessionNotFound)
	assert.ErrorIs(t, tm.Revoke(first), ErrBadToken, "already revoked")
}
