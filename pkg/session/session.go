package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

type Session struct {
	ID       string
	UserName string
	UserID   string
	Expires  time.Time
}

type ctxKey struct{}

var sessionKey ctxKey

func GenerateHexID() (string, error) {
	bytes := make([]byte, 16)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func NewSession(name, userID string, ttl time.Duration) (*Session, error) {
	id, err := GenerateHexID()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:       id,
		UserName: name,
		UserID:   userID,
		Expires:  time.Now().Add(ttl),
	}, nil
}

func (s *Session) Expired(now time.Time) bool {
	return !s.Expires.IsZero() && now.After(s.Expires)
}

func CreateContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

func GetSessionFromContext(ctx context.Context) (*Session, error) {
	sess, ok := ctx.Value(sessionKey).(*Session)
	if !ok || sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}
