package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"forum/pkg/session"
	"forum/pkg/user"
	"forum/pkg/voting"
)

type VoteHandler struct {
	Engine *voting.Engine
	Users  user.UserRepo
	Logger *zap.SugaredLogger
}

type VoteRequest struct {
	Vote *int `json:"vote"`
}

type VoteResponse struct {
	Votes int `json:"votes"`
}

type KarmaResponse struct {
	Karma int `json:"karma"`
}

// Vote handles POST /api/{kind}/{id}/vote with a body of {"vote": -1|0|1}.
func (handler *VoteHandler) Vote(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	sess, err := session.GetSessionFromContext(r.Context())
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	kind, err := voting.ParseKind(vars["kind"])
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	vr := &VoteRequest{}
	if err := decodeBody(r, vr); err != nil {
		sendError(w, handler.Logger, err)
		return
	}
	if vr.Vote == nil {
		sendError(w, handler.Logger, ErrBadVote)
		return
	}

	ref := voting.ItemRef{ID: vars["id"], Kind: kind}
	score, err := handler.Engine.ApplyVote(r.Context(), sess.UserID, ref, *vr.Vote)
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	sendJSON(w, handler.Logger, http.StatusOK, VoteResponse{Votes: score})
	handler.Logger.Infow("vote applied",
		"item", ref.String(),
		"user", sess.UserID,
		"votes", score)
}

func (handler *VoteHandler) Karma(w http.ResponseWriter, r *http.Request) {
	u, err := handler.Users.GetUser(r.Context(), mux.Vars(r)["login"])
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	karma, err := handler.Engine.Karma(r.Context(), u.ID)
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}
	sendJSON(w, handler.Logger, http.StatusOK, KarmaResponse{Karma: karma})
}

func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write([]byte(`{"status":"ok"}`))
}
