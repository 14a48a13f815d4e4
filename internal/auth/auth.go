// internal/auth/auth.go
// Password hashing and cookie sessions. Sessions are signed JWTs carried in
// an HttpOnly cookie; the hub and the REST layer both resolve identity from
// them, never from client payloads.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	CookieName = "commentboard_session"
	sessionTTL = 24 * time.Hour
	bcryptCost = 10
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrNoSession          = errors.New("auth: no valid session")
)

// Identity is the authenticated user attached to a request.
type Identity struct {
	UserID int64
	Name   string
}

type sessionClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies session tokens.
type Sessions struct {
	secret []byte
}

func NewSessions(secret string) *Sessions {
	return &Sessions{secret: []byte(secret)}
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// CheckPassword compares a plaintext password against a stored hash.
func CheckPassword(hashed, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Issue signs a session token for the given user.
func (s *Sessions) Issue(id Identity) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Name: id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", id.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Verify parses a session token back into an identity.
func (s *Sessions) Verify(tokenString string) (Identity, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrNoSession
	}
	var userID int64
	if _, err := fmt.Sscanf(claims.Subject, "%d", &userID); err != nil {
		return Identity{}, ErrNoSession
	}
	return Identity{UserID: userID, Name: claims.Name}, nil
}

// SetCookie attaches a session cookie to the response.
func (s *Sessions) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}

// ClearCookie expires the session cookie.
func (s *Sessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// FromRequest resolves the identity carried by a request's session cookie.
func (s *Sessions) FromRequest(r *http.Request) (Identity, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return Identity{}, ErrNoSession
	}
	return s.Verify(c.Value)
}
