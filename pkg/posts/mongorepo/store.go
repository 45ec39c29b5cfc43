package mongorepo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"forum/pkg/voting"
)

type scoreDoc struct {
	ID     string `bson:"_id"`
	Author struct {
		ID string `bson:"id"`
	} `bson:"author"`
	Score int `bson:"score"`
}

type items struct{ r *Repository }

func (s items) collection(kind voting.ItemKind) (*mongo.Collection, error) {
	switch kind {
	case voting.KindPost:
		return s.r.posts, nil
	case voting.KindComment:
		return s.r.comments, nil
	}
	return nil, voting.ErrItemNotFound
}

func (s items) GetItem(ctx context.Context, ref voting.ItemRef) (*voting.Item, error) {
	coll, err := s.collection(ref.Kind)
	if err != nil {
		return nil, err
	}

	var doc scoreDoc
	opts := options.FindOne().SetProjection(bson.M{"author.id": 1, "score": 1})
	err = coll.FindOne(ctx, bson.M{"_id": ref.ID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, voting.ErrItemNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &voting.Item{Ref: ref, AuthorID: doc.Author.ID, Score: doc.Score}, nil
}

// LockItem only checks existence. A delete and a vote inside transactions
// both write the item document, so one of them aborts on the write conflict.
func (s items) LockItem(ctx context.Context, ref voting.ItemRef) error {
	_, err := s.GetItem(ctx, ref)
	return err
}

func (s items) IncrementScore(ctx context.Context, ref voting.ItemRef, delta int) (int, error) {
	coll, err := s.collection(ref.Kind)
	if err != nil {
		return 0, err
	}

	var doc scoreDoc
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"score": 1})
	err = coll.FindOneAndUpdate(ctx, bson.M{"_id": ref.ID}, bson.M{"$inc": bson.M{"score": delta}}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, voting.ErrItemNotFound
	}
	if err != nil {
		return 0, unavailable(err)
	}
	return doc.Score, nil
}

func (s items) DeleteItem(ctx context.Context, ref voting.ItemRef) error {
	coll, err := s.collection(ref.Kind)
	if err != nil {
		return err
	}
	res, err := coll.DeleteOne(ctx, bson.M{"_id": ref.ID})
	if err != nil {
		return unavailable(err)
	}
	if res.DeletedCount == 0 {
		return voting.ErrItemNotFound
	}
	return nil
}

func (s items) ListChildren(ctx context.Context, ref voting.ItemRef) ([]voting.ItemRef, error) {
	res := make([]voting.ItemRef, 0)
	if ref.Kind != voting.KindPost {
		return res, nil
	}

	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := s.r.comments.Find(ctx, bson.M{"post_id": ref.ID}, opts)
	if err != nil {
		return nil, unavailable(err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc scoreDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		res = append(res, voting.ItemRef{ID: doc.ID, Kind: voting.KindComment})
	}
	return res, unavailable(cur.Err())
}

func (s items) ListItemsByAuthor(ctx context.Context, userID string) ([]*voting.Item, error) {
	res := make([]*voting.Item, 0)
	for _, kind := range []voting.ItemKind{voting.KindPost, voting.KindComment} {
		coll, _ := s.collection(kind)
		opts := options.Find().SetProjection(bson.M{"score": 1})
		cur, err := coll.Find(ctx, bson.M{"author.id": userID}, opts)
		if err != nil {
			return nil, unavailable(err)
		}

		var docs []scoreDoc
		err = cur.All(ctx, &docs)
		cur.Close(ctx)
		if err != nil {
			return nil, unavailable(err)
		}
		for _, doc := range docs {
			res = append(res, &voting.Item{
				Ref:      voting.ItemRef{ID: doc.ID, Kind: kind},
				AuthorID: userID,
				Score:    doc.Score,
			})
		}
	}
	return res, nil
}

type voteDoc struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	UserID   string             `bson:"user_id"`
	ItemID   string             `bson:"item_id"`
	ItemKind string             `bson:"item_kind"`
	Value    int                `bson:"value"`
}

func (d voteDoc) vote() *voting.Vote {
	return &voting.Vote{
		UserID: d.UserID,
		Item:   voting.ItemRef{ID: d.ItemID, Kind: voting.ItemKind(d.ItemKind)},
		Value:  voting.VoteState(d.Value),
	}
}

func ownerFilter(userID string, ref voting.ItemRef) bson.M {
	return bson.M{"user_id": userID, "item_id": ref.ID, "item_kind": string(ref.Kind)}
}

func itemFilter(ref voting.ItemRef) bson.M {
	return bson.M{"item_id": ref.ID, "item_kind": string(ref.Kind)}
}

type votes struct{ r *Repository }

func (s votes) Find(ctx context.Context, userID string, ref voting.ItemRef) (*voting.Vote, error) {
	var doc voteDoc
	err := s.r.votes.FindOne(ctx, ownerFilter(userID, ref)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return doc.vote(), nil
}

func (s votes) Insert(ctx context.Context, v *voting.Vote) error {
	_, err := s.r.votes.InsertOne(ctx, voteDoc{
		UserID:   v.UserID,
		ItemID:   v.Item.ID,
		ItemKind: string(v.Item.Kind),
		Value:    int(v.Value),
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", voting.ErrDuplicateVote, err)
	}
	return unavailable(err)
}

func (s votes) Update(ctx context.Context, v *voting.Vote, value voting.VoteState) error {
	res, err := s.r.votes.UpdateOne(ctx, ownerFilter(v.UserID, v.Item), bson.M{"$set": bson.M{"value": int(value)}})
	if err != nil {
		return unavailable(err)
	}
	if res.MatchedCount == 0 {
		return voting.ErrVoteNotFound
	}
	v.Value = value
	return nil
}

func (s votes) Delete(ctx context.Context, v *voting.Vote) error {
	_, err := s.r.votes.DeleteOne(ctx, ownerFilter(v.UserID, v.Item))
	return unavailable(err)
}

func (s votes) DeleteAllForItem(ctx context.Context, ref voting.ItemRef) (int, error) {
	res, err := s.r.votes.DeleteMany(ctx, itemFilter(ref))
	if err != nil {
		return 0, unavailable(err)
	}
	return int(res.DeletedCount), nil
}

func (s votes) ListForItem(ctx context.Context, ref voting.ItemRef) ([]*voting.Vote, error) {
	opts := options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}})
	cur, err := s.r.votes.Find(ctx, itemFilter(ref), opts)
	if err != nil {
		return nil, unavailable(err)
	}
	defer cur.Close(ctx)

	var docs []voteDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, unavailable(err)
	}
	res := make([]*voting.Vote, 0, len(docs))
	for _, d := range docs {
		res = append(res, d.vote())
	}
	return res, nil
}
