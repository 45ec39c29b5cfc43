// Package usertest holds the behaviour every user.UserRepo has to show.
package usertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum/pkg/user"
)

// Run checks repo, which must start empty.
func Run(t *testing.T, repo user.UserRepo) {
	t.Helper()
	ctx := context.Background()

	alice, err := user.NewUser("alice", "s3cret-pass")
	require.NoError(t, err)
	require.NoError(t, repo.AddUser(ctx, alice))

	dup, err := user.NewUser("alice", "another")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.AddUser(ctx, dup), user.ErrUserAlready)

	got, err := repo.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.NotEqual(t, "s3cret-pass", got.PasswordHash)

	_, err = repo.GetUser(ctx, "bob")
	assert.ErrorIs(t, err, user.ErrUserNotExist)

	checked, err := repo.CheckUser(ctx, "alice", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, checked.ID)

	_, err = repo.CheckUser(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, user.ErrInvalidPassword)
	_, err = repo.CheckUser(ctx, "bob", "s3cret-pass")
	assert.ErrorIs(t, err, user.ErrUserNotExist)
}
