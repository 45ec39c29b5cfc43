package voting

import "errors"

var (
	ErrInvalidVoteType  = errors.New("invalid vote type")
	ErrItemNotFound     = errors.New("item not found")
	ErrDuplicateVote    = errors.New("duplicate vote")
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrVoteNotFound is returned by VoteStore.Update when the record vanished.
	ErrVoteNotFound = errors.New("vote not found")
)
