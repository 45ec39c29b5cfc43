// Package mongorepo stores posts, comments and votes in MongoDB. Vote
// operations run in multi-document transactions, so the server has to be a
// replica set member.
package mongorepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	post "forum/pkg/posts"
	"forum/pkg/voting"
)

type Repository struct {
	client   *mongo.Client
	posts    *mongo.Collection
	comments *mongo.Collection
	votes    *mongo.Collection
	users    *mongo.Collection
}

// Connect dials uri, pings the server and makes sure the indexes exist.
func Connect(ctx context.Context, uri, dbName string) (*Repository, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	repo := New(client.Database(dbName))
	if err := repo.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func New(db *mongo.Database) *Repository {
	return &Repository{
		client:   db.Client(),
		posts:    db.Collection("posts"),
		comments: db.Collection("comments"),
		votes:    db.Collection("votes"),
		users:    db.Collection("users"),
	}
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{r.votes, mongo.IndexModel{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "item_id", Value: 1}, {Key: "item_kind", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_vote_owner"),
		}},
		{r.votes, mongo.IndexModel{Keys: bson.D{{Key: "item_id", Value: 1}, {Key: "item_kind", Value: 1}}}},
		{r.posts, mongo.IndexModel{Keys: bson.D{{Key: "author.id", Value: 1}}}},
		{r.posts, mongo.IndexModel{Keys: bson.D{{Key: "category", Value: 1}, {Key: "created", Value: -1}}}},
		{r.comments, mongo.IndexModel{Keys: bson.D{{Key: "post_id", Value: 1}}}},
		{r.comments, mongo.IndexModel{Keys: bson.D{{Key: "author.id", Value: 1}}}},
		{r.users, mongo.IndexModel{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_user_name"),
		}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("create index on %s: %w", idx.coll.Name(), unavailable(err))
		}
	}
	return nil
}

func (r *Repository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// unavailable tags connectivity failures so callers can tell them apart
// from logical errors.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%w: %w", voting.ErrStoreUnavailable, err)
	}
	return err
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx voting.Tx) error) error {
	sess, err := r.client.StartSession()
	if err != nil {
		return unavailable(err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, r)
	})
	return unavailable(err)
}

func (r *Repository) AddPost(ctx context.Context, p *post.Post) error {
	if !post.ValidCategory(p.Category) {
		return post.ErrWrongCategory
	}
	_, err := r.posts.InsertOne(ctx, p)
	return unavailable(err)
}

func (r *Repository) GetPost(ctx context.Context, postID string) (*post.Post, error) {
	p := &post.Post{}
	err := r.posts.FindOne(ctx, bson.M{"_id": postID}).Decode(p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, post.ErrPostNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return p, nil
}

func (r *Repository) AddViews(ctx context.Context, postID string) error {
	res, err := r.posts.UpdateOne(ctx, bson.M{"_id": postID}, bson.M{"$inc": bson.M{"views": 1}})
	if err != nil {
		return unavailable(err)
	}
	if res.MatchedCount == 0 {
		return post.ErrPostNotFound
	}
	return nil
}

func (r *Repository) findPosts(ctx context.Context, filter bson.M) ([]*post.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created", Value: -1}})
	cur, err := r.posts.Find(ctx, filter, opts)
	if err != nil {
		return nil, unavailable(err)
	}
	defer cur.Close(ctx)

	res := make([]*post.Post, 0)
	if err := cur.All(ctx, &res); err != nil {
		return nil, unavailable(err)
	}
	return res, nil
}

func (r *Repository) GetAllPosts(ctx context.Context) ([]*post.Post, error) {
	return r.findPosts(ctx, bson.M{})
}

func (r *Repository) GetPostsWithCategory(ctx context.Context, category string) ([]*post.Post, error) {
	if !post.ValidCategory(category) {
		return nil, post.ErrWrongCategory
	}
	return r.findPosts(ctx, bson.M{"category": category})
}

func (r *Repository) GetUserPosts(ctx context.Context, userName string) ([]*post.Post, error) {
	return r.findPosts(ctx, bson.M{"author.username": userName})
}

// AddComment checks the parent and inserts in one transaction so a comment
// cannot land on a post that is being deleted.
func (r *Repository) AddComment(ctx context.Context, c *post.Comment) error {
	return r.WithinTx(ctx, func(ctx context.Context, _ voting.Tx) error {
		n, err := r.posts.CountDocuments(ctx, bson.M{"_id": c.PostID})
		if err != nil {
			return err
		}
		if n == 0 {
			return post.ErrPostNotFound
		}
		_, err = r.comments.InsertOne(ctx, c)
		return err
	})
}

func (r *Repository) GetComment(ctx context.Context, commentID string) (*post.Comment, error) {
	c := &post.Comment{}
	err := r.comments.FindOne(ctx, bson.M{"_id": commentID}).Decode(c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, post.ErrCommentNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return c, nil
}

func (r *Repository) GetComments(ctx context.Context, postID string) ([]*post.Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created", Value: 1}})
	cur, err := r.comments.Find(ctx, bson.M{"post_id": postID}, opts)
	if err != nil {
		return nil, unavailable(err)
	}
	defer cur.Close(ctx)

	res := make([]*post.Comment, 0)
	if err := cur.All(ctx, &res); err != nil {
		return nil, unavailable(err)
	}
	return res, nil
}

func (r *Repository) Items() voting.ItemStore { return items{r} }
func (r *Repository) Votes() voting.VoteStore { return votes{r} }
