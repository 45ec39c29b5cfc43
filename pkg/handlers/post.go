package handlers

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	post "forum/pkg/posts"
	"forum/pkg/session"
	"forum/pkg/voting"
)

type PostHandler struct {
	Repo      post.PostRepo
	Engine    *voting.Engine
	Logger    *zap.SugaredLogger
	Sanitizer *bluemonday.Policy
}

func NewPostHandler(repo post.PostRepo, engine *voting.Engine, logger *zap.SugaredLogger) *PostHandler {
	return &PostHandler{
		Repo:      repo,
		Engine:    engine,
		Logger:    logger,
		Sanitizer: bluemonday.StrictPolicy(),
	}
}

type RequestForm struct {
	Category string `json:"category"`
	Text     string `json:"text"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	URL      string `json:"url"`
}

type CommentRequest struct {
	Comment string `json:"comment"`
}

type DeletePostResponse struct {
	Message string `json:"message"`
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (handler *PostHandler) clean(s string) string {
	return strings.TrimSpace(handler.Sanitizer.Sanitize(s))
}

// sendPost reloads the post so the response carries its current comments,
// votes and score.
func (handler *PostHandler) sendPost(w http.ResponseWriter, r *http.Request, postID string, status int) {
	currentPost, err := post.Load(r.Context(), handler.Repo, postID)
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}
	sendJSON(w, handler.Logger, status, currentPost)
}

func (handler *PostHandler) AddPost(w http.ResponseWriter, r *http.Request) {
	handler.Logger.Info("adding post")
	sess, err := session.GetSessionFromContext(r.Context())
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	rf := &RequestForm{}
	if err := decodeBody(r, rf); err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	currentPost := &post.Post{
		ID:       uuid.NewString(),
		Type:     rf.Type,
		Title:    handler.clean(rf.Title),
		Category: rf.Category,
		Author:   post.Author{Username: sess.UserName, ID: sess.UserID},
		Created:  now(),
	}
	switch rf.Type {
	case post.TypeText:
		currentPost.Text = handler.clean(rf.Text)
	case post.TypeLink:
		currentPost.URL = strings.TrimSpace(rf.URL)
		if currentPost.URL == "" {
			sendValidationError(w, handler.Logger, "url", rf.URL, "is required")
			return
		}
	default:
		sendError(w, handler.Logger, post.ErrWrongType)
		return
	}
	if currentPost.Title == "" {
		sendValidationError(w, handler.Logger, "title", rf.Title, "is required")
		return
	}

	_, err = handler.Engine.Create(r.Context(), sess.UserID, currentPost.Ref(), func(ctx context.Context) error {
		return handler.Repo.AddPost(ctx, currentPost)
	})
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	handler.sendPost(w, r, currentPost.ID, http.StatusCreated)
	handler.Logger.Infow("post added",
		"postID", currentPost.ID)
}

func (handler *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["id"]

	if err := handler.Repo.AddViews(r.Context(), postID); err != nil {
		sendError(w, handler.Logger, err)
		return
	}
	handler.sendPost(w, r, postID, http.StatusOK)
}

// sendPosts decorates and orders a listing. ?sort=score puts the highest
// score first; the default is newest first as the repository returns it.
func (handler *PostHandler) sendPosts(w http.ResponseWriter, r *http.Request, posts []*post.Post) {
	for _, p := range posts {
		if err := post.Decorate(r.Context(), handler.Repo, p); err != nil {
			sendError(w, handler.Logger, err)
			return
		}
	}

	if r.URL.Query().Get("sort") == "score" {
		sort.SliceStable(posts, func(i, j int) bool {
			return posts[i].Score > posts[j].Score
		})
	}
	sendJSON(w, handler.Logger, http.StatusOK, posts)
}

func (handler *PostHandler) GetAllPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := handler.Repo.GetAllPosts(r.Context())
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}
	handler.sendPosts(w, r, posts)
}

func (handler *PostHandler) GetPostsWithCategory(w http.ResponseWriter, r *http.Request) {
	posts, err := handler.Repo.GetPostsWithCategory(r.Context(), mux.Vars(r)["category"])
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}
	handler.sendPosts(w, r, posts)
}

func (handler *PostHandler) GetUserPosts(w http.ResponseWriter, r *http.Request) {
	handler.Logger.Info("get userPosts")
	posts, err := handler.Repo.GetUserPosts(r.Context(), mux.Vars(r)["login"])
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}
	handler.sendPosts(w, r, posts)
}

func (handler *PostHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	handler.Logger.Info("add comment")
	postID := mux.Vars(r)["id"]

	sess, err := session.GetSessionFromContext(r.Context())
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	if _, err := handler.Repo.GetPost(r.Context(), postID); err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	cq := &CommentRequest{}
	if err := decodeBody(r, cq); err != nil {
		sendError(w, handler.Logger, err)
		return
	}
	body := handler.clean(cq.Comment)
	if body == "" {
		sendValidationError(w, handler.Logger, "comment", cq.Comment, "is required")
		return
	}

	currentComment := &post.Comment{
		ID:      uuid.NewString(),
		Body:    body,
		Author:  post.Author{Username: sess.UserName, ID: sess.UserID},
		PostID:  postID,
		Created: now(),
	}
	_, err = handler.Engine.Create(r.Context(), sess.UserID, currentComment.Ref(), func(ctx context.Context) error {
		return handler.Repo.AddComment(ctx, currentComment)
	})
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	handler.sendPost(w, r, postID, http.StatusCreated)
	handler.Logger.Infow("comment added",
		"commentID", currentComment.ID,
		"postID", postID)
}

func (handler *PostHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	handler.Logger.Info("delete comment")
	vars := mux.Vars(r)

	sess, err := session.GetSessionFromContext(r.Context())
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	currentComment, err := handler.Repo.GetComment(r.Context(), vars["commentID"])
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}
	if currentComment.PostID != vars["id"] {
		sendError(w, handler.Logger, post.ErrCommentNotFound)
		return
	}
	if currentComment.Author.ID != sess.UserID {
		sendError(w, handler.Logger, post.ErrAccessDenied)
		return
	}

	if err := handler.Engine.DeleteItem(r.Context(), currentComment.Ref()); err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	handler.sendPost(w, r, vars["id"], http.StatusOK)
	handler.Logger.Infow("success",
		"commentID", currentComment.ID)
}

func (handler *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	handler.Logger.Info("delete post")
	postID := mux.Vars(r)["id"]

	sess, err := session.GetSessionFromContext(r.Context())
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	currentPost, err := handler.Repo.GetPost(r.Context(), postID)
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}
	if currentPost.Author.ID != sess.UserID {
		sendError(w, handler.Logger, post.ErrAccessDenied)
		return
	}

	if err := handler.Engine.DeleteItem(r.Context(), currentPost.Ref()); err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	sendJSON(w, handler.Logger, http.StatusOK, DeletePostResponse{Message: "success"})
	handler.Logger.Infow("success",
		"postID", postID)
}

// votePost backs the upvote, downvote and unvote routes, which answer with
// the whole post instead of just the score.
func (handler *PostHandler) votePost(w http.ResponseWriter, r *http.Request, value voting.VoteState) {
	postID := mux.Vars(r)["id"]

	sess, err := session.GetSessionFromContext(r.Context())
	if err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	ref := voting.ItemRef{ID: postID, Kind: voting.KindPost}
	if _, err := handler.Engine.ApplyVote(r.Context(), sess.UserID, ref, int(value)); err != nil {
		sendError(w, handler.Logger, err)
		return
	}

	handler.sendPost(w, r, postID, http.StatusOK)
	handler.Logger.Infow("success",
		"postID", postID,
		"vote", value.String())
}

func (handler *PostHandler) Upvote(w http.ResponseWriter, r *http.Request) {
	handler.Logger.Info("upvote")
	handler.votePost(w, r, voting.Up)
}

func (handler *PostHandler) Downvote(w http.ResponseWriter, r *http.Request) {
	handler.Logger.Info("downvote")
	handler.votePost(w, r, voting.Down)
}

func (handler *PostHandler) Unvote(w http.ResponseWriter, r *http.Request) {
	handler.Logger.Info("unvote")
	handler.votePost(w, r, voting.None)
}
