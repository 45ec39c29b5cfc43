package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

var (
	ErrBadToken     = errors.New("bad token")
	ErrTokenRevoked = errors.New("token revoked")
)

// TokenManager issues and verifies the HS256 tokens returned by login and
// register. Tokens revoked on logout are remembered until they expire.
type TokenManager struct {
	Secret []byte
	TTL    time.Duration

	mu      sync.RWMutex
	revoked map[string]time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		Secret:  []byte(secret),
		TTL:     ttl,
		revoked: make(map[string]time.Time),
	}
}

func (tm *TokenManager) Issue(name, userID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user": map[string]string{"username": name, "id": userID},
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  now.Add(tm.TTL).Unix(),
	})
	return token.SignedString(tm.Secret)
}

func (tm *TokenManager) Parse(raw string) (*Session, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return tm.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadToken, err)
	}

	tm.mu.RLock()
	_, revoked := tm.revoked[raw]
	tm.mu.RUnlock()
	if revoked {
		return nil, fmt.Errorf("%w: %w", ErrBadToken, ErrTokenRevoked)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrBadToken
	}
	user, ok := claims["user"].(map[string]interface{})
	if !ok {
		return nil, ErrBadToken
	}
	name, _ := user["username"].(string)
	id, _ := user["id"].(string)
	if name == "" || id == "" {
		return nil, ErrBadToken
	}

	jti, _ := claims["jti"].(string)
	sess := &Session{ID: jti, UserName: name, UserID: id}
	if exp, ok := claims["exp"].(float64); ok {
		sess.Expires = time.Unix(int64(exp), 0)
	}
	return sess, nil
}

// Revoke makes raw unusable. Expired entries are dropped on the way.
func (tm *TokenManager) Revoke(raw string) error {
	sess, err := tm.Parse(raw)
	if err != nil {
		return err
	}
	now := time.Now()
	until := sess.Expires
	if until.IsZero() {
		until = now.Add(tm.TTL)
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.revoked == nil {
		tm.revoked = make(map[string]time.Time)
	}
	for tok, exp := range tm.revoked {
		if !exp.After(now) {
			delete(tm.revoked, tok)
		}
	}
	tm.revoked[raw] = until
	return nil
}

func bearer(r *http.Request) (string, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return raw, ok && raw != ""
}

// FromRequest reads a "Bearer <token>" Authorization header.
func (tm *TokenManager) FromRequest(r *http.Request) (*Session, error) {
	raw, ok := bearer(r)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return tm.Parse(raw)
}

// RevokeRequest revokes the request's Bearer token.
func (tm *TokenManager) RevokeRequest(r *http.Request) error {
	raw, ok := bearer(r)
	if !ok {
		return ErrSessionNotFound
	}
	return tm.Revoke(raw)
}
