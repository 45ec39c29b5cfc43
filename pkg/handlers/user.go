package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"forum/pkg/session"
	"forum/pkg/user"
)

type UserHandler struct {
	Repo     user.UserRepo
	Sessions *session.SessionManager
	Tokens   *session.TokenManager
	Logger   *zap.SugaredLogger
}

type LoginForm struct {
	Name     string `json:"username"`
	Password string `json:"password"`
}

// startSession drops any previous cookie session, opens a new one and
// answers with a fresh token.
func (handler *UserHandler) startSession(w http.ResponseWriter, r *http.Request, u *user.User, status int) {
	if _, err := handler.Sessions.CheckSession(r); err == nil {
		if err := handler.Sessions.DestroySession(w, r); err != nil {
			sendError(w, handler.Logger, err)
			return
		}
	}

	token, err := handler.Tokens.Issue(u.Name, u.ID)
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}
	if _, err := handler.Sessions.CreateSession(w, u.Name, u.ID); err != nil {
		sendError(w, handler.Logger, err)
		return
	}
	sendJSON(w, handler.Logger, status, map[string]string{"token": token})
}

func (handler *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	handler.Logger.Info("/register")

	lf := &LoginForm{}
	if err := decodeBody(r, lf); err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	currentUser, err := user.NewUser(lf.Name, lf.Password)
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	err = handler.Repo.AddUser(r.Context(), currentUser)
	if errors.Is(err, user.ErrUserAlready) {
		sendValidationError(w, handler.Logger, "username", lf.Name, user.ErrUserAlready.Error())
		handler.Logger.Error(err)
		return
	}
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	handler.startSession(w, r, currentUser, http.StatusCreated)
	handler.Logger.Infow("user registered",
		"ID", currentUser.ID,
		"Name", currentUser.Name)
}

func (handler *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	handler.Logger.Info("/login")

	lf := &LoginForm{}
	if err := decodeBody(r, lf); err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	currentUser, err := handler.Repo.CheckUser(r.Context(), lf.Name, lf.Password)
	if errors.Is(err, user.ErrInvalidPassword) || errors.Is(err, user.ErrUserNotExist) {
		sendJSON(w, handler.Logger, http.StatusUnauthorized, map[string]string{"message": err.Error()})
		handler.Logger.Error(err)
		return
	}
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	handler.startSession(w, r, currentUser, http.StatusOK)
	handler.Logger.Infow("user login success",
		"ID", currentUser.ID,
		"Name", currentUser.Name)
}

// Logout ends the cookie session and revokes the Bearer token, whichever
// the request carries.
func (handler *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	destroyed := handler.Sessions.DestroySession(w, r) == nil
	if err := handler.Tokens.RevokeRequest(r); err != nil && !destroyed {
		sendError(w, handler.Logger, err)
		return
	}
	sendJSON(w, handler.Logger, http.StatusOK, map[string]string{"message": "success"})
}
