package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	post "forum/pkg/posts"
	"forum/pkg/session"
	"forum/pkg/user"
	"forum/pkg/voting"
)

var ErrJSONMarshal = errors.New("json marshal error")
var ErrJSONUnmarshal = errors.New("json unmarshal error")
var ErrReadReqBody = errors.New("read request body error")
var ErrBadVote = errors.New("vote is required")

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, voting.ErrInvalidVoteType),
		errors.Is(err, post.ErrWrongCategory),
		errors.Is(err, post.ErrWrongType),
		errors.Is(err, user.ErrBadCredentials),
		errors.Is(err, ErrJSONUnmarshal),
		errors.Is(err, ErrBadVote):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrBadToken):
		return http.StatusUnauthorized
	case errors.Is(err, post.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, voting.ErrItemNotFound),
		errors.Is(err, voting.ErrUnknownKind),
		errors.Is(err, post.ErrPostNotFound),
		errors.Is(err, post.ErrCommentNotFound),
		errors.Is(err, user.ErrUserNotExist):
		return http.StatusNotFound
	case errors.Is(err, voting.ErrStoreUnavailable),
		errors.Is(err, user.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func sendError(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	http.Error(w, msg, status)
	logger.Error(err)
}

func sendJSON(w http.ResponseWriter, logger *zap.SugaredLogger, status int, v interface{}) {
	resp, err := json.Marshal(v)
	if err != nil {
		http.Error(w, ErrJSONMarshal.Error(), http.StatusInternalServerError)
		logger.Error(err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_, errWrite := w.Write(resp)
	if errWrite != nil {
		logger.Error(errWrite)
	}
}

type FieldError struct {
	Location string `json:"location"`
	Param    string `json:"param"`
	Value    string `json:"value,omitempty"`
	Msg      string `json:"msg"`
}

type ValidationErrorResponse struct {
	Errors []FieldError `json:"errors"`
}

// sendValidationError answers 422 with the body the frontend expects for
// form errors.
func sendValidationError(w http.ResponseWriter, logger *zap.SugaredLogger, param, value, msg string) {
	sendJSON(w, logger, http.StatusUnprocessableEntity, ValidationErrorResponse{
		Errors: []FieldError{{Location: "body", Param: param, Value: value, Msg: msg}},
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrJSONUnmarshal, err)
	}
	return nil
}
