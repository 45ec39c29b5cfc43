// Package repotest holds the behaviour every post.PostRepo has to show,
// written once and run against each storage backend.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	post "forum/pkg/posts"
	"forum/pkg/voting"
)

type Factory func(t *testing.T) post.PostRepo

var errBoom = errors.New("boom")

func NewPost(author post.Author, category string) *post.Post {
	return &post.Post{
		ID:       uuid.NewString(),
		Type:     post.TypeText,
		Title:    "title " + category,
		Text:     "text",
		Category: category,
		Author:   author,
		Created:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

func NewComment(author post.Author, postID string) *post.Comment {
	return &post.Comment{
		ID:      uuid.NewString(),
		Body:    "comment",
		Author:  author,
		PostID:  postID,
		Created: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// Run executes the whole suite; newRepo must return an empty repository.
func Run(t *testing.T, newRepo Factory) {
	t.Run("Posts", func(t *testing.T) { testPosts(t, newRepo(t)) })
	t.Run("Comments", func(t *testing.T) { testComments(t, newRepo(t)) })
	t.Run("Items", func(t *testing.T) { testItems(t, newRepo(t)) })
	t.Run("Votes", func(t *testing.T) { testVotes(t, newRepo(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newRepo(t)) })
	t.Run("EngineScenario", func(t *testing.T) { testEngineScenario(t, newRepo(t)) })
	t.Run("EngineConcurrentVoters", func(t *testing.T) { testEngineConcurrentVoters(t, newRepo(t)) })
	t.Run("EngineCascade", func(t *testing.T) { testEngineCascade(t, newRepo(t)) })
	t.Run("EngineDeleteRacesVotes", func(t *testing.T) { testEngineDeleteRacesVotes(t, newRepo(t)) })
}

var (
	alice = post.Author{Username: "alice", ID: "u-alice"}
	bob   = post.Author{Username: "bob", ID: "u-bob"}
)

func testPosts(t *testing.T, repo post.PostRepo) {
	ctx := context.Background()

	first := NewPost(alice, "music")
	second := NewPost(bob, "news")
	second.Created = first.Created.Add(time.Second)

	require.NoError(t, repo.AddPost(ctx, first))
	require.NoError(t, repo.AddPost(ctx, second))
	assert.ErrorIs(t, repo.AddPost(ctx, NewPost(alice, "cats")), post.ErrWrongCategory)

	got, err := repo.GetPost(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Title, got.Title)
	assert.Equal(t, alice, got.Author)
	assert.Equal(t, 0, got.Score)

	_, err = repo.GetPost(ctx, "missing")
	assert.ErrorIs(t, err, post.ErrPostNotFound)

	require.NoError(t, repo.AddViews(ctx, first.ID))
	require.NoError(t, repo.AddViews(ctx, first.ID))
	got, err = repo.GetPost(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Views)

	all, err := repo.GetAllPosts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	music, err := repo.GetPostsWithCategory(ctx, "music")
	require.NoError(t, err)
	require.Len(t, music, 1)
	assert.Equal(t, first.ID, music[0].ID)

	_, err = repo.GetPostsWithCategory(ctx, "cats")
	assert.ErrorIs(t, err, post.ErrWrongCategory)

	bobs, err := repo.GetUserPosts(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, second.ID, bobs[0].ID)
}

func testComments(t *testing.T, repo post.PostRepo) {
	ctx := context.Background()

	p := NewPost(alice, "funny")
	require.NoError(t, repo.AddPost(ctx, p))

	c1 := NewComment(bob, p.ID)
	c2 := NewComment(alice, p.ID)
	c2.Created = c1.Created.Add(time.Second)
	require.NoError(t, repo.AddComment(ctx, c1))
	require.NoError(t, repo.AddComment(ctx, c2))
	assert.ErrorIs(t, repo.AddComment(ctx, NewComment(bob, "missing")), post.ErrPostNotFound)

	got, err := repo.GetComment(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, got.Author)
	assert.Equal(t, p.ID, got.PostID)

	_, err = repo.GetComment(ctx, "missing")
	assert.ErrorIs(t, err, post.ErrCommentNotFound)

	list, err := repo.GetComments(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, c1.ID, list[0].ID)
	assert.Equal(t, c2.ID, list[1].ID)

	children, err := repo.Items().ListChildren(ctx, p.Ref())
	require.NoError(t, err)
	assert.ElementsMatch(t, []voting.ItemRef{c1.Ref(), c2.Ref()}, children)
}

func testItems(t *testing.T, repo post.PostRepo) {
	ctx := context.Background()
	items := repo.Items()

	p := NewPost(alice, "videos")
	require.NoError(t, repo.AddPost(ctx, p))
	c := NewComment(alice, p.ID)
	require.NoError(t, repo.AddComment(ctx, c))

	it, err := items.GetItem(ctx, p.Ref())
	require.NoError(t, err)
	assert.Equal(t, alice.ID, it.AuthorID)
	assert.Equal(t, 0, it.Score)

	_, err = items.GetItem(ctx, voting.ItemRef{ID: p.ID, Kind: voting.KindComment})
	assert.ErrorIs(t, err, voting.ErrItemNotFound, "ids are scoped by kind")

	score, err := items.IncrementScore(ctx, p.Ref(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, score)
	score, err = items.IncrementScore(ctx, p.Ref(), -5)
	require.NoError(t, err)
	assert.Equal(t, -2, score)

	_, err = items.IncrementScore(ctx, voting.ItemRef{ID: "missing", Kind: voting.KindPost}, 1)
	assert.ErrorIs(t, err, voting.ErrItemNotFound)

	err = repo.WithinTx(ctx, func(ctx context.Context, tx voting.Tx) error {
		if err := tx.Items().LockItem(ctx, p.Ref()); err != nil {
			return err
		}
		return tx.Items().LockItem(ctx, voting.ItemRef{ID: "missing", Kind: voting.KindPost})
	})
	assert.ErrorIs(t, err, voting.ErrItemNotFound)

	_, err = items.IncrementScore(ctx, c.Ref(), 4)
	require.NoError(t, err)

	mine, err := items.ListItemsByAuthor(ctx, alice.ID)
	require.NoError(t, err)
	total := 0
	for _, it := range mine {
		total += it.Score
	}
	assert.Len(t, mine, 2)
	assert.Equal(t, 2, total)

	require.NoError(t, items.DeleteItem(ctx, c.Ref()))
	_, err = items.GetItem(ctx, c.Ref())
	assert.ErrorIs(t, err, voting.ErrItemNotFound)
	_, err = repo.GetComment(ctx, c.ID)
	assert.ErrorIs(t, err, post.ErrCommentNotFound)
}

func testVotes(t *testing.T, repo post.PostRepo) {
	ctx := context.Background()
	votes := repo.Votes()
	ref := voting.ItemRef{ID: uuid.NewString(), Kind: voting.KindPost}

	v, err := votes.Find(ctx, bob.ID, ref)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, votes.Insert(ctx, &voting.Vote{UserID: bob.ID, Item: ref, Value: voting.Up}))
	err = votes.Insert(ctx, &voting.Vote{UserID: bob.ID, Item: ref, Value: voting.Down})
	assert.ErrorIs(t, err, voting.ErrDuplicateVote)

	require.NoError(t, votes.Insert(ctx, &voting.Vote{UserID: alice.ID, Item: ref, Value: voting.Up}))
	other := voting.ItemRef{ID: ref.ID, Kind: voting.KindComment}
	require.NoError(t, votes.Insert(ctx, &voting.Vote{UserID: bob.ID, Item: other, Value: voting.Down}))

	v, err = votes.Find(ctx, bob.ID, ref)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, voting.Up, v.Value)

	require.NoError(t, votes.Update(ctx, v, voting.Down))
	assert.Equal(t, voting.Down, v.Value)
	v, err = votes.Find(ctx, bob.ID, ref)
	require.NoError(t, err)
	assert.Equal(t, voting.Down, v.Value)

	list, err := votes.ListForItem(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, votes.Delete(ctx, v))
	v, err = votes.Find(ctx, bob.ID, ref)
	require.NoError(t, err)
	assert.Nil(t, v)

	n, err := votes.DeleteAllForItem(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	left, err := votes.ListForItem(ctx, other)
	require.NoError(t, err)
	assert.Len(t, left, 1, "votes of another kind with the same id survive")
}

func testRollback(t *testing.T, repo post.PostRepo) {
	ctx := context.Background()

	p := NewPost(alice, "news")
	require.NoError(t, repo.AddPost(ctx, p))

	err := repo.WithinTx(ctx, func(ctx context.Context, tx voting.Tx) error {
		if err := tx.Votes().Insert(ctx, &voting.Vote{UserID: bob.ID, Item: p.Ref(), Value: voting.Up}); err != nil {
			return err
		}
		if _, err := tx.Items().IncrementScore(ctx, p.Ref(), 1); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	v, err := repo.Votes().Find(ctx, bob.ID, p.Ref())
	require.NoError(t, err)
	assert.Nil(t, v)
	it, err := repo.Items().GetItem(ctx, p.Ref())
	require.NoError(t, err)
	assert.Equal(t, 0, it.Score)

	err = repo.WithinTx(ctx, func(ctx context.Context, tx voting.Tx) error {
		if _, err := tx.Votes().DeleteAllForItem(ctx, p.Ref()); err != nil {
			return err
		}
		if err := tx.Items().DeleteItem(ctx, p.Ref()); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	_, err = repo.GetPost(ctx, p.ID)
	assert.NoError(t, err, "delete rolled back")
}

func newEngine(repo post.PostRepo) *voting.Engine {
	return voting.NewEngine(repo, voting.NewKeyedMutex(), nil)
}

func createPost(t *testing.T, e *voting.Engine, repo post.PostRepo, author post.Author) *post.Post {
	t.Helper()
	p := NewPost(author, "programming")
	score, err := e.Create(context.Background(), author.ID, p.Ref(), func(ctx context.Context) error {
		return repo.AddPost(ctx, p)
	})
	require.NoError(t, err)
	require.Equal(t, 1, score)
	return p
}

// AssertScoreMatchesVotes checks the score-equals-sum-of-votes invariant.
func AssertScoreMatchesVotes(t *testing.T, repo post.PostRepo, ref voting.ItemRef) int {
	t.Helper()
	ctx := context.Background()

	it, err := repo.Items().GetItem(ctx, ref)
	require.NoError(t, err)
	list, err := repo.Votes().ListForItem(ctx, ref)
	require.NoError(t, err)

	sum := 0
	for _, v := range list {
		sum += int(v.Value)
	}
	assert.Equal(t, sum, it.Score, "score of %s", ref)
	return it.Score
}

func testEngineScenario(t *testing.T, repo post.PostRepo) {
	ctx := context.Background()
	e := newEngine(repo)

	author := post.Author{Username: "author", ID: "u-author"}
	p := createPost(t, e, repo, author)
	require.NoError(t, e.Store.Votes().Delete(ctx, &voting.Vote{UserID: author.ID, Item: p.Ref()}))
	_, err := e.Store.Items().IncrementScore(ctx, p.Ref(), -1)
	require.NoError(t, err)

	steps := []struct {
		user string
		vote int
		want int
	}{
		{"u1", 1, 1},
		{"u2", -1, 0},
		{"u1", -1, -2},
		{"u1", 0, -1},
	}
	for _, s := range steps {
		got, err := e.ApplyVote(ctx, s.user, p.Ref(), s.vote)
		require.NoError(t, err)
		assert.Equal(t, s.want, got, "%s votes %d", s.user, s.vote)
		AssertScoreMatchesVotes(t, repo, p.Ref())
	}
}

func testEngineConcurrentVoters(t *testing.T, repo post.PostRepo) {
	ctx := context.Background()
	e := newEngine(repo)
	p := createPost(t, e, repo, alice)

	const voters = 20
	var wg sync.WaitGroup
	errs := make(chan error, voters*3)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("voter-%d", i)
			first, last := 1, -1
			if i%2 == 0 {
				first, last = -1, 1
			}
			for _, v := range []int{first, last, first} {
				if _, err := e.ApplyVote(ctx, user, p.Ref(), v); err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("apply vote: %v", err)
	}

	// every voter ends on their first value: half up, half down, plus the author
	assert.Equal(t, 1, AssertScoreMatchesVotes(t, repo, p.Ref()))
}

func testEngineCascade(t *testing.T, repo post.PostRepo) {
	ctx := context.Background()
	e := newEngine(repo)

	p := createPost(t, e, repo, alice)
	c := NewComment(bob, p.ID)
	_, err := e.Create(ctx, bob.ID, c.Ref(), func(ctx context.Context) error {
		return repo.AddComment(ctx, c)
	})
	require.NoError(t, err)

	for _, u := range []string{"x", "y", "z"} {
		_, err := e.ApplyVote(ctx, u, p.Ref(), 1)
		require.NoError(t, err)
		_, err = e.ApplyVote(ctx, u, c.Ref(), -1)
		require.NoError(t, err)
	}

	bobPost := createPost(t, e, repo, bob)
	karma, err := e.Karma(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, -2+1, karma)

	require.NoError(t, e.DeleteItem(ctx, p.Ref()))

	for _, ref := range []voting.ItemRef{p.Ref(), c.Ref()} {
		list, err := repo.Votes().ListForItem(ctx, ref)
		require.NoError(t, err)
		assert.Empty(t, list, "votes on %s", ref)
		_, err = repo.Items().GetItem(ctx, ref)
		assert.ErrorIs(t, err, voting.ErrItemNotFound)
	}

	karma, err = e.Karma(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, karma, "only bob's own post is left")
	AssertScoreMatchesVotes(t, repo, bobPost.Ref())

	_, err = e.ApplyVote(ctx, "x", p.Ref(), 1)
	assert.ErrorIs(t, err, voting.ErrItemNotFound)
	assert.ErrorIs(t, e.DeleteItem(ctx, p.Ref()), voting.ErrItemNotFound)
}

func testEngineDeleteRacesVotes(t *testing.T, repo post.PostRepo) {
	ctx := context.Background()
	e := newEngine(repo)

	p := createPost(t, e, repo, alice)
	c := NewComment(bob, p.ID)
	_, err := e.Create(ctx, bob.ID, c.Ref(), func(ctx context.Context) error {
		return repo.AddComment(ctx, c)
	})
	require.NoError(t, err)

	const voters = 20
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			user := fmt.Sprintf("voter-%d", i)
			for _, ref := range []voting.ItemRef{c.Ref(), p.Ref()} {
				_, err := e.ApplyVote(ctx, user, ref, 1)
				if err != nil && !errors.Is(err, voting.ErrItemNotFound) {
					t.Logf("vote on %s: %v", ref, err)
				}
			}
		}(i)
	}

	var delErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		delErr = e.DeleteItem(ctx, p.Ref())
	}()
	close(start)
	wg.Wait()

	if delErr != nil {
		// a deadlock victim rolls back as a whole; nothing else is running now
		t.Logf("racing delete: %v", delErr)
		require.NoError(t, e.DeleteItem(ctx, p.Ref()))
	}

	for _, ref := range []voting.ItemRef{p.Ref(), c.Ref()} {
		list, err := repo.Votes().ListForItem(ctx, ref)
		require.NoError(t, err)
		assert.Empty(t, list, "votes left on deleted %s", ref)
		_, err = repo.Items().GetItem(ctx, ref)
		assert.ErrorIs(t, err, voting.ErrItemNotFound)
	}
}
