package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"forum/middleware"
	"forum/pkg/handlers"
	post "forum/pkg/posts"
	"forum/pkg/session"
	"forum/pkg/user"
	"forum/pkg/voting"
)

type api struct {
	t       *testing.T
	handler http.Handler
	repo    *post.PostsMemoryRepository
}

func newAPI(t *testing.T) *api {
	t.Helper()
	logger := zap.NewNop().Sugar()
	repo := post.NewPostMemoryRepository()
	users := user.NewUserMemRep()
	engine := voting.NewEngine(repo, voting.NewKeyedMutex(), logger)
	sm := session.NewSessionsManager(time.Hour)
	tokens := session.NewTokenManager("test-secret", time.Hour)

	r := mux.NewRouter()
	handlers.AddHandleFuncs(r,
		&handlers.UserHandler{Repo: users, Sessions: sm, Tokens: tokens, Logger: logger},
		handlers.NewPostHandler(repo, engine, logger),
		&handlers.VoteHandler{Engine: engine, Users: users, Logger: logger},
	)
	return &api{t: t, handler: middleware.Auth(sm, tokens, logger, r), repo: repo}
}

func (a *api) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		js, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(js)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *api) register(name string) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/register", "", handlers.LoginForm{Name: name, Password: "password"})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[map[string]string](a.t, rec)["token"]
}

func (a *api) createPost(token string) post.Post {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/posts", token, handlers.RequestForm{
		Category: "programming", Type: "text", Title: "hello", Text: "world",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[post.Post](a.t, rec)
}

func TestRegisterAndLogin(t *testing.T) {
	a := newAPI(t)
	a.register("alice")

	rec := a.do(http.MethodPost, "/api/register", "", handlers.LoginForm{Name: "alice", Password: "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[handlers.ValidationErrorResponse](t, rec)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "username", resp.Errors[0].Param)

	rec = a.do(http.MethodPost, "/api/login", "", handlers.LoginForm{Name: "alice", Password: "password"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[map[string]string](t, rec)["token"])
	assert.NotEmpty(t, rec.Result().Cookies())

	rec = a.do(http.MethodPost, "/api/login", "", handlers.LoginForm{Name: "alice", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, user.ErrInvalidPassword.Error(), decode[map[string]string](t, rec)["message"])

	rec = a.do(http.MethodPost, "/api/login", "", handlers.LoginForm{Name: "bob", Password: "password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodPost, "/api/register", "", handlers.LoginForm{Name: "", Password: "password"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutDropsCookieSession(t *testing.T) {
	a := newAPI(t)
	a.register("alice")

	rec := a.do(http.MethodPost, "/api/login", "", handlers.LoginForm{Name: "alice", Password: "password"})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	withCookie := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var rd io.Reader
		if body != nil {
			js, err := json.Marshal(body)
			require.NoError(t, err)
			rd = bytes.NewReader(js)
		}
		req := httptest.NewRequest(method, path, rd)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)
		return rec
	}
	form := handlers.RequestForm{Category: "music", Type: "text", Title: "t", Text: "x"}

	assert.Equal(t, http.StatusCreated, withCookie(http.MethodPost, "/api/posts", form).Code)
	assert.Equal(t, http.StatusOK, withCookie(http.MethodPost, "/api/logout", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, withCookie(http.MethodPost, "/api/posts", form).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/api/logout", "", nil).Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	a := newAPI(t)
	token := a.register("alice")
	form := handlers.RequestForm{Category: "music", Type: "text", Title: "t", Text: "x"}

	assert.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/posts", token, form).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/logout", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/api/posts", token, form).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/api/logout", token, nil).Code)
}

func TestCreatePostSeedsSelfVote(t *testing.T) {
	a := newAPI(t)
	token := a.register("alice")

	p := a.createPost(token)
	assert.Equal(t, 1, p.Score)
	assert.Equal(t, 100, p.UpvotePercentage)
	require.Len(t, p.Votes, 1)
	assert.Equal(t, voting.Up, p.Votes[0].Value)
	assert.Equal(t, "alice", p.Author.Username)

	rec := a.do(http.MethodGet, "/api/post/"+p.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[post.Post](t, rec).Views)
}

func TestCreatePostValidation(t *testing.T) {
	a := newAPI(t)
	token := a.register("alice")

	rec := a.do(http.MethodPost, "/api/posts", "", handlers.RequestForm{Category: "news", Type: "text", Title: "t"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodPost, "/api/posts", token, handlers.RequestForm{Category: "cats", Type: "text", Title: "t"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/api/posts", token, handlers.RequestForm{Category: "news", Type: "video", Title: "t"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/api/posts", token, handlers.RequestForm{Category: "news", Type: "link", Title: "t"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.do(http.MethodPost, "/api/posts", token, handlers.RequestForm{Category: "news", Type: "text", Title: "<script>x</script>"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "title is empty once markup is stripped")

	rec = a.do(http.MethodPost, "/api/posts", token, handlers.RequestForm{Category: "news", Type: "text", Title: "<b>bold</b>"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "bold", decode[post.Post](t, rec).Title)

	all, err := a.repo.GetAllPosts(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1, "rejected posts are not stored")
}

func TestVoteEndpoint(t *testing.T) {
	a := newAPI(t)
	author := a.register("author")
	u1 := a.register("u1")
	u2 := a.register("u2")
	p := a.createPost(author)

	vote := func(token, kind, id string, v interface{}) *httptest.ResponseRecorder {
		return a.do(http.MethodPost, "/api/"+kind+"/"+id+"/vote", token, v)
	}
	votes := func(rec *httptest.ResponseRecorder) int {
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[handlers.VoteResponse](t, rec).Votes
	}

	assert.Equal(t, 0, votes(vote(author, "post", p.ID, map[string]int{"vote": 0})))
	assert.Equal(t, 1, votes(vote(u1, "post", p.ID, map[string]int{"vote": 1})))
	assert.Equal(t, 0, votes(vote(u2, "post", p.ID, map[string]int{"vote": -1})))
	assert.Equal(t, -2, votes(vote(u1, "post", p.ID, map[string]int{"vote": -1})))
	assert.Equal(t, -1, votes(vote(u1, "post", p.ID, map[string]int{"vote": 0})))

	assert.Equal(t, http.StatusBadRequest, vote(u1, "post", p.ID, map[string]int{"vote": 2}).Code)
	assert.Equal(t, http.StatusBadRequest, vote(u1, "post", p.ID, map[string]string{}).Code)
	assert.Equal(t, http.StatusUnauthorized, vote("", "post", p.ID, map[string]int{"vote": 1}).Code)
	assert.Equal(t, http.StatusNotFound, vote(u1, "post", "missing", map[string]int{"vote": 1}).Code)
	assert.Equal(t, http.StatusNotFound, vote(u1, "user", p.ID, map[string]int{"vote": 1}).Code)
}

func TestLegacyVoteRoutes(t *testing.T) {
	a := newAPI(t)
	author := a.register("author")
	voter := a.register("voter")
	p := a.createPost(author)

	rec := a.do(http.MethodGet, "/api/post/"+p.ID+"/downvote", voter, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[post.Post](t, rec)
	assert.Equal(t, 0, got.Score)
	assert.Equal(t, 50, got.UpvotePercentage)

	rec = a.do(http.MethodGet, "/api/post/"+p.ID+"/upvote", voter, nil)
	assert.Equal(t, 2, decode[post.Post](t, rec).Score)

	rec = a.do(http.MethodGet, "/api/post/"+p.ID+"/unvote", voter, nil)
	got = decode[post.Post](t, rec)
	assert.Equal(t, 1, got.Score)
	assert.Len(t, got.Votes, 1)

	rec = a.do(http.MethodGet, "/api/post/missing/upvote", voter, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommentsAndKarma(t *testing.T) {
	a := newAPI(t)
	alice := a.register("alice")
	bob := a.register("bob")
	p := a.createPost(alice)

	rec := a.do(http.MethodPost, "/api/post/"+p.ID, bob, map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[handlers.ValidationErrorResponse](t, rec)
	assert.Equal(t, "comment", resp.Errors[0].Param)
	assert.Equal(t, "is required", resp.Errors[0].Msg)

	rec = a.do(http.MethodPost, "/api/post/missing", bob, map[string]string{"comment": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodPost, "/api/post/"+p.ID, bob, map[string]string{"comment": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code)
	withComment := decode[post.Post](t, rec)
	require.Len(t, withComment.Comments, 1)
	c := withComment.Comments[0]
	assert.Equal(t, 1, c.Score)

	rec = a.do(http.MethodPost, "/api/comment/"+c.ID+"/vote", alice, map[string]int{"vote": 1})
	assert.Equal(t, 2, decode[handlers.VoteResponse](t, rec).Votes)

	karma := func(login string) int {
		rec := a.do(http.MethodGet, "/api/user/"+login+"/karma", "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[handlers.KarmaResponse](t, rec).Karma
	}
	assert.Equal(t, 2, karma("bob"))
	assert.Equal(t, 1, karma("alice"))
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/user/nobody/karma", "", nil).Code)

	rec = a.do(http.MethodDelete, "/api/post/"+p.ID+"/"+c.ID, alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(http.MethodDelete, "/api/post/other/"+c.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodDelete, "/api/post/"+p.ID+"/"+c.ID, bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[post.Post](t, rec).Comments)
	assert.Equal(t, 0, karma("bob"))
}

func TestDeletePostCascades(t *testing.T) {
	a := newAPI(t)
	alice := a.register("alice")
	bob := a.register("bob")
	p := a.createPost(alice)

	rec := a.do(http.MethodPost, "/api/post/"+p.ID, bob, map[string]string{"comment": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code)
	c := decode[post.Post](t, rec).Comments[0]

	rec = a.do(http.MethodDelete, "/api/post/"+p.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodDelete, "/api/post/"+p.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decode[handlers.DeletePostResponse](t, rec).Message)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/post/"+p.ID, "", nil).Code)
	_, err := a.repo.GetComment(context.Background(), c.ID)
	assert.ErrorIs(t, err, post.ErrCommentNotFound)
	left, err := a.repo.Votes().ListForItem(context.Background(), c.Ref())
	require.NoError(t, err)
	assert.Empty(t, left)

	rec = a.do(http.MethodGet, "/api/user/bob/karma", "", nil)
	assert.Equal(t, 0, decode[handlers.KarmaResponse](t, rec).Karma)
}

func TestListings(t *testing.T) {
	a := newAPI(t)
	alice := a.register("alice")
	bob := a.register("bob")

	first := a.createPost(alice)
	time.Sleep(2 * time.Millisecond)
	second := a.createPost(bob)
	a.do(http.MethodPost, "/api/post/"+first.ID+"/vote", bob, map[string]int{"vote": 1})

	rec := a.do(http.MethodGet, "/api/posts/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]post.Post](t, rec)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	rec = a.do(http.MethodGet, "/api/posts/?sort=score", "", nil)
	all = decode[[]post.Post](t, rec)
	assert.Equal(t, first.ID, all[0].ID, "highest score first")

	rec = a.do(http.MethodGet, "/api/posts/programming", "", nil)
	assert.Len(t, decode[[]post.Post](t, rec), 2)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/posts/cats", "", nil).Code)

	rec = a.do(http.MethodGet, "/api/user/bob", "", nil)
	mine := decode[[]post.Post](t, rec)
	require.Len(t, mine, 1)
	assert.Equal(t, second.ID, mine[0].ID)
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
