package voting

import (
	"context"
	"errors"
)

type ItemKind string

const (
	KindPost    ItemKind = "post"
	KindComment ItemKind = "comment"
)

var ErrUnknownKind = errors.New("unknown item kind")

func ParseKind(s string) (ItemKind, error) {
	switch ItemKind(s) {
	case KindPost, KindComment:
		return ItemKind(s), nil
	}
	return "", ErrUnknownKind
}

// ItemRef identifies a votable item. Ids are only unique within a kind.
type ItemRef struct {
	ID   string
	Kind ItemKind
}

func (ref ItemRef) String() string {
	return string(ref.Kind) + ":" + ref.ID
}

// VoteState is the state of a single (user, item) pair. None is never stored:
// a missing record is the None state.
type VoteState int8

const (
	None VoteState = 0
	Up   VoteState = 1
	Down VoteState = -1
)

// ParseVoteType maps a requested vote type onto a state.
func ParseVoteType(requested int) (VoteState, error) {
	switch requested {
	case -1:
		return Down, nil
	case 0:
		return None, nil
	case 1:
		return Up, nil
	}
	return None, ErrInvalidVoteType
}

func (s VoteState) String() string {
	switch s {
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return "none"
}

// Vote is a stored non-zero vote.
type Vote struct {
	UserID string    `json:"user"`
	Item   ItemRef   `json:"-"`
	Value  VoteState `json:"vote"`
}

// StateOf returns None for a nil vote.
func StateOf(v *Vote) VoteState {
	if v == nil {
		return None
	}
	return v.Value
}

// Item is the part of a post or comment the engine cares about.
type Item struct {
	Ref      ItemRef
	AuthorID string
	Score    int
}

type ItemStore interface {
	// GetItem returns ErrItemNotFound for missing or deleted items.
	GetItem(ctx context.Context, ref ItemRef) (*Item, error)
	// LockItem holds ref against concurrent score updates until the
	// surrounding transaction ends. Missing items give ErrItemNotFound.
	LockItem(ctx context.Context, ref ItemRef) error
	// IncrementScore adds delta atomically and returns the new score.
	IncrementScore(ctx context.Context, ref ItemRef, delta int) (int, error)
	DeleteItem(ctx context.Context, ref ItemRef) error
	// ListChildren returns the comments hanging off a post.
	ListChildren(ctx context.Context, ref ItemRef) ([]ItemRef, error)
	ListItemsByAuthor(ctx context.Context, userID string) ([]*Item, error)
}

type VoteStore interface {
	// Find returns nil, nil when the user has no vote on the item.
	Find(ctx context.Context, userID string, ref ItemRef) (*Vote, error)
	// Insert returns ErrDuplicateVote if the pair already has a vote.
	Insert(ctx context.Context, v *Vote) error
	Update(ctx context.Context, v *Vote, value VoteState) error
	Delete(ctx context.Context, v *Vote) error
	DeleteAllForItem(ctx context.Context, ref ItemRef) (int, error)
	ListForItem(ctx context.Context, ref ItemRef) ([]*Vote, error)
}

// Tx is a view of both stores bound to one transaction.
type Tx interface {
	Items() ItemStore
	Votes() VoteStore
}

// Store gives non-transactional access through Items/Votes and runs fn
// atomically through WithinTx: if fn returns an error nothing it did is kept.
type Store interface {
	Tx
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
