package voting

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const DefaultMaxRetries = 5

// Engine applies votes so that every item's score stays equal to the sum of
// its vote records. Calls for the same (user, item) pair are serialized
// through the Locker; everything else runs in parallel.
type Engine struct {
	Store      Store
	Locker     Locker
	Logger     *zap.SugaredLogger
	MaxRetries int
}

func NewEngine(store Store, locker Locker, logger *zap.SugaredLogger) *Engine {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{
		Store:      store,
		Locker:     locker,
		Logger:     logger,
		MaxRetries: DefaultMaxRetries,
	}
}

func lockKey(userID string, ref ItemRef) string {
	return userID + "|" + ref.String()
}

// ApplyVote moves the user's vote on ref to requested (-1, 0 or +1) and
// returns the item's score after the change.
func (e *Engine) ApplyVote(ctx context.Context, userID string, ref ItemRef, requested int) (int, error) {
	want, err := ParseVoteType(requested)
	if err != nil {
		return 0, err
	}

	unlock, err := e.Locker.Lock(ctx, lockKey(userID, ref))
	if err != nil {
		return 0, fmt.Errorf("lock %s: %w", ref, err)
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		score, err := e.applyOnce(ctx, userID, ref, want)
		if errors.Is(err, ErrDuplicateVote) && attempt < e.MaxRetries {
			e.Logger.Warnw("vote insert raced, retrying",
				"user", userID,
				"item", ref.String(),
				"attempt", attempt+1)
			continue
		}
		return score, err
	}
}

func (e *Engine) applyOnce(ctx context.Context, userID string, ref ItemRef, want VoteState) (int, error) {
	var score int
	err := e.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		item, err := tx.Items().GetItem(ctx, ref)
		if err != nil {
			return err
		}

		existing, err := tx.Votes().Find(ctx, userID, ref)
		if err != nil {
			return err
		}

		t := Next(StateOf(existing), want)
		switch t.Action {
		case ActionNone:
			score = item.Score
			return nil
		case ActionInsert:
			err = tx.Votes().Insert(ctx, &Vote{UserID: userID, Item: ref, Value: t.Next})
		case ActionUpdate:
			err = tx.Votes().Update(ctx, existing, t.Next)
		case ActionDelete:
			err = tx.Votes().Delete(ctx, existing)
		}
		if err != nil {
			return err
		}

		score, err = tx.Items().IncrementScore(ctx, ref, t.Delta)
		return err
	})
	if err != nil {
		return 0, err
	}
	return score, nil
}

// Create runs insert and then casts the author's own upvote through
// ApplyVote. If the vote cannot be recorded the new item is deleted again.
func (e *Engine) Create(ctx context.Context, authorID string, ref ItemRef, insert func(ctx context.Context) error) (int, error) {
	if err := insert(ctx); err != nil {
		return 0, err
	}

	score, err := e.ApplyVote(ctx, authorID, ref, int(Up))
	if err != nil {
		if delErr := e.DeleteItem(context.WithoutCancel(ctx), ref); delErr != nil {
			err = multierr.Append(err, fmt.Errorf("undo create %s: %w", ref, delErr))
		}
		return 0, err
	}
	return score, nil
}

// DeleteItem removes ref, its child comments and every vote on any of them
// in a single transaction.
func (e *Engine) DeleteItem(ctx context.Context, ref ItemRef) error {
	var removed int
	err := e.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		removed = 0
		if err := tx.Items().LockItem(ctx, ref); err != nil {
			return err
		}

		children, err := tx.Items().ListChildren(ctx, ref)
		if err != nil {
			return err
		}
		// a vote racing the delete either commits before its item is locked
		// here, and is then removed below, or finds the item gone
		for _, child := range children {
			err := tx.Items().LockItem(ctx, child)
			if errors.Is(err, ErrItemNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			n, err := tx.Votes().DeleteAllForItem(ctx, child)
			if err != nil {
				return err
			}
			removed += n
			if err := tx.Items().DeleteItem(ctx, child); err != nil {
				return err
			}
		}

		n, err := tx.Votes().DeleteAllForItem(ctx, ref)
		if err != nil {
			return err
		}
		removed += n
		return tx.Items().DeleteItem(ctx, ref)
	})
	if err != nil {
		return err
	}

	e.Logger.Infow("item deleted",
		"item", ref.String(),
		"votesRemoved", removed)
	return nil
}

// Karma sums the scores of everything userID has authored.
func (e *Engine) Karma(ctx context.Context, userID string) (int, error) {
	items, err := e.Store.Items().ListItemsByAuthor(ctx, userID)
	if err != nil {
		return 0, err
	}
	karma := 0
	for _, item := range items {
		karma += item.Score
	}
	return karma, nil
}
