package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hashed, err := HashPassword("s3cret")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret", hashed)

	require.NoError(t, CheckPassword(hashed, "s3cret"))
	require.ErrorIs(t, CheckPassword(hashed, "wrong"), ErrInvalidCredentials)
}

func TestSessionTokenRoundTrip(t *testing.T) {
	s := NewSessions("test-secret")

	token, err := s.Issue(Identity{UserID: 42, Name: "alice"})
	require.NoError(t, err)

	id, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.UserID)
	assert.Equal(t, "alice", id.Name)
}

func TestSessionTokenRejectsTampering(t *testing.T) {
	s := NewSessions("test-secret")
	other := NewSessions("other-secret")

	token, err := s.Issue(Identity{UserID: 1, Name: "alice"})
	require.NoError(t, err)

	_, err = other.Verify(token)
	require.ErrorIs(t, err, ErrNoSession)

	_, err = s.Verify(token + "x")
	require.ErrorIs(t, err, ErrNoSession)

	_, err = s.Verify("")
	require.ErrorIs(t, err, ErrNoSession)
}

func TestCookieRoundTrip(t *testing.T) {
	s := NewSessions("test-secret")
	token, err := s.Issue(Identity{UserID: 7, Name: "bob"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.SetCookie(rec, token)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	id, err := s.FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "bob", id.Name)
}

func TestRequireAuthMiddleware(t *testing.T) {
	s := NewSessions("test-secret")

	var seen Identity
	handler := s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		require.True(t, ok)
		seen = id
		w.WriteHeader(http.StatusNoContent)
	}))

	// No cookie: rejected before the handler runs.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid session: identity lands in the context.
	token, err := s.Issue(Identity{UserID: 9, Name: "carol"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(9), seen.UserID)
	assert.Equal(t, "carol", seen.Name)
}
