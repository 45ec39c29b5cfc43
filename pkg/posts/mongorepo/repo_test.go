package mongorepo

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	post "forum/pkg/posts"
	"forum/pkg/posts/repotest"
	"forum/pkg/user/usertest"
)

func connectTest(t *testing.T) *mongo.Client {
	t.Helper()
	uri := os.Getenv("FORUM_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("FORUM_TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect(ctx) })
	return client
}

func newTestRepo(t *testing.T, client *mongo.Client) *Repository {
	t.Helper()
	ctx := context.Background()
	db := client.Database("forum_test_" + uuid.NewString()[:8])
	t.Cleanup(func() { db.Drop(ctx) })

	repo := New(db)
	require.NoError(t, repo.EnsureIndexes(ctx))
	return repo
}

// Needs a replica set, e.g. mongodb://localhost:27017/?replicaSet=rs0
func TestRepository(t *testing.T) {
	client := connectTest(t)
	repotest.Run(t, func(t *testing.T) post.PostRepo { return newTestRepo(t, client) })
}

func TestUserRepository(t *testing.T) {
	client := connectTest(t)
	usertest.Run(t, newTestRepo(t, client).Users())
}
