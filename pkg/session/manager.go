package session

import (
	"errors"
	"net/http"
	"sync"
	"time"
)

const CookieName = "session_id"

type SessionManager struct {
	data map[string]*Session
	mu   sync.RWMutex
	TTL  time.Duration
}

var ErrSessionNotFound = errors.New("session not found")

func NewSessionsManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		data: make(map[string]*Session),
		TTL:  ttl,
	}
}

func (manager *SessionManager) CreateSession(w http.ResponseWriter, name, userID string) (*Session, error) {
	sess, err := NewSession(name, userID, manager.TTL)
	if err != nil {
		return nil, err
	}

	manager.mu.Lock()
	manager.data[sess.ID] = sess
	manager.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Expires:  sess.Expires,
		Path:     "/",
		HttpOnly: true,
	})
	return sess, nil
}

func (manager *SessionManager) CheckSession(r *http.Request) (*Session, error) {
	sessID, err := r.Cookie(CookieName)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	manager.mu.RLock()
	sess, ok := manager.data[sessID.Value]
	manager.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	if sess.Expired(time.Now()) {
		manager.mu.Lock()
		delete(manager.data, sess.ID)
		manager.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (manager *SessionManager) DestroySession(w http.ResponseWriter, r *http.Request) error {
	sessID, err := r.Cookie(CookieName)
	if err != nil {
		return ErrSessionNotFound
	}
	manager.mu.Lock()
	delete(manager.data, sessID.Value)
	manager.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:    CookieName,
		Value:   "",
		Path:    "/",
		Expires: time.Now().Add(-1 * time.Hour),
	})

	return nil
}
