package post_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	post "forum/pkg/posts"
	"forum/pkg/posts/repotest"
	"forum/pkg/voting"
)

func TestMemoryRepository(t *testing.T) {
	repotest.Run(t, func(t *testing.T) post.PostRepo {
		return post.NewPostMemoryRepository()
	})
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := post.NewPostMemoryRepository()

	p := repotest.NewPost(post.Author{Username: "alice", ID: "a"}, "music")
	require.NoError(t, repo.AddPost(ctx, p))

	got, err := repo.GetPost(ctx, p.ID)
	require.NoError(t, err)
	got.Score = 100
	got.Title = "changed"

	again, err := repo.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Score)
	assert.Equal(t, p.Title, again.Title)
}

func TestMemoryRepositoryPanicRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := post.NewPostMemoryRepository()
	p := repotest.NewPost(post.Author{Username: "alice", ID: "a"}, "music")
	require.NoError(t, repo.AddPost(ctx, p))

	assert.Panics(t, func() {
		_ = repo.WithinTx(ctx, func(ctx context.Context, tx voting.Tx) error {
			if _, err := tx.Items().IncrementScore(ctx, p.Ref(), 7); err != nil {
				return err
			}
			panic("boom")
		})
	})

	it, err := repo.Items().GetItem(ctx, p.Ref())
	require.NoError(t, err)
	assert.Equal(t, 0, it.Score)
}

func TestLoadComputesUpvotePercentage(t *testing.T) {
	ctx := context.Background()
	repo := post.NewPostMemoryRepository()
	p := repotest.NewPost(post.Author{Username: "alice", ID: "a"}, "news")
	require.NoError(t, repo.AddPost(ctx, p))
	require.NoError(t, repo.AddComment(ctx, repotest.NewComment(post.Author{Username: "bob", ID: "b"}, p.ID)))

	for user, value := range map[string]voting.VoteState{"a": voting.Up, "b": voting.Up, "c": voting.Up, "d": voting.Down} {
		require.NoError(t, repo.Votes().Insert(ctx, &voting.Vote{UserID: user, Item: p.Ref(), Value: value}))
	}

	loaded, err := post.Load(ctx, repo, p.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Votes, 4)
	assert.Len(t, loaded.Comments, 1)
	assert.Equal(t, 75, loaded.UpvotePercentage)

	_, err = post.Load(ctx, repo, "missing")
	assert.ErrorIs(t, err, post.ErrPostNotFound)
}
