package post

import (
	"context"
	"sort"
	"sync"

	"forum/pkg/voting"
)

type voteKey struct {
	user string
	item voting.ItemRef
}

// PostsMemoryRepository keeps everything in maps behind one RWMutex.
// Transactions hold the write lock for their whole duration and undo their
// writes on failure.
type PostsMemoryRepository struct {
	posts    map[string]*Post
	comments map[string]*Comment
	votes    map[voteKey]voting.VoteState
	mu       *sync.RWMutex
}

func NewPostMemoryRepository() *PostsMemoryRepository {
	return &PostsMemoryRepository{
		posts:    make(map[string]*Post),
		comments: make(map[string]*Comment),
		votes:    make(map[voteKey]voting.VoteState),
		mu:       &sync.RWMutex{},
	}
}

func (repo *PostsMemoryRepository) AddPost(_ context.Context, p *Post) error {
	if !ValidCategory(p.Category) {
		return ErrWrongCategory
	}

	stored := *p
	stored.Votes, stored.Comments = nil, nil

	repo.mu.Lock()
	repo.posts[p.ID] = &stored
	repo.mu.Unlock()

	return nil
}

func (repo *PostsMemoryRepository) GetPost(_ context.Context, postID string) (*Post, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	p, ok := repo.posts[postID]
	if !ok {
		return nil, ErrPostNotFound
	}
	cp := *p
	return &cp, nil
}

func (repo *PostsMemoryRepository) AddViews(_ context.Context, postID string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	p, ok := repo.posts[postID]
	if !ok {
		return ErrPostNotFound
	}
	p.Views++
	return nil
}

func (repo *PostsMemoryRepository) filterPosts(keep func(p *Post) bool) []*Post {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	res := make([]*Post, 0)
	for _, p := range repo.posts {
		if keep(p) {
			cp := *p
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Created.After(res[j].Created)
	})
	return res
}

func (repo *PostsMemoryRepository) GetAllPosts(_ context.Context) ([]*Post, error) {
	return repo.filterPosts(func(*Post) bool { return true }), nil
}

func (repo *PostsMemoryRepository) GetPostsWithCategory(_ context.Context, category string) ([]*Post, error) {
	if !ValidCategory(category) {
		return nil, ErrWrongCategory
	}
	return repo.filterPosts(func(p *Post) bool { return p.Category == category }), nil
}

func (repo *PostsMemoryRepository) GetUserPosts(_ context.Context, userName string) ([]*Post, error) {
	return repo.filterPosts(func(p *Post) bool { return p.Author.Username == userName }), nil
}

func (repo *PostsMemoryRepository) AddComment(_ context.Context, c *Comment) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, ok := repo.posts[c.PostID]; !ok {
		return ErrPostNotFound
	}
	stored := *c
	repo.comments[c.ID] = &stored
	return nil
}

func (repo *PostsMemoryRepository) GetComment(_ context.Context, commentID string) (*Comment, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	c, ok := repo.comments[commentID]
	if !ok {
		return nil, ErrCommentNotFound
	}
	cp := *c
	return &cp, nil
}

func (repo *PostsMemoryRepository) GetComments(_ context.Context, postID string) ([]*Comment, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	res := make([]*Comment, 0)
	for _, c := range repo.comments {
		if c.PostID == postID {
			cp := *c
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Created.Before(res[j].Created)
	})
	return res, nil
}

func (repo *PostsMemoryRepository) Items() voting.ItemStore {
	return memItems{memScope{repo: repo}}
}

func (repo *PostsMemoryRepository) Votes() voting.VoteStore {
	return memVotes{memScope{repo: repo}}
}

type memTx struct {
	scope memScope
	undo  []func()
}

func (tx *memTx) Items() voting.ItemStore { return memItems{tx.scope} }
func (tx *memTx) Votes() voting.VoteStore { return memVotes{tx.scope} }

func (repo *PostsMemoryRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx voting.Tx) error) (err error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	tx := &memTx{}
	tx.scope = memScope{repo: repo, tx: tx}

	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
		if err != nil {
			tx.rollback()
		}
	}()

	return fn(ctx, tx)
}

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// memScope takes the repository lock itself unless it runs inside a
// transaction, which already holds it.
type memScope struct {
	repo *PostsMemoryRepository
	tx   *memTx
}

func (s memScope) lock() func() {
	if s.tx != nil {
		return func() {}
	}
	s.repo.mu.Lock()
	return s.repo.mu.Unlock
}

func (s memScope) rlock() func() {
	if s.tx != nil {
		return func() {}
	}
	s.repo.mu.RLock()
	return s.repo.mu.RUnlock
}

func (s memScope) onRollback(undo func()) {
	if s.tx != nil {
		s.tx.undo = append(s.tx.undo, undo)
	}
}

type memItems struct{ memScope }

func (s memItems) item(ref voting.ItemRef) (*voting.Item, bool) {
	switch ref.Kind {
	case voting.KindPost:
		if p, ok := s.repo.posts[ref.ID]; ok {
			return &voting.Item{Ref: ref, AuthorID: p.Author.ID, Score: p.Score}, true
		}
	case voting.KindComment:
		if c, ok := s.repo.comments[ref.ID]; ok {
			return &voting.Item{Ref: ref, AuthorID: c.Author.ID, Score: c.Score}, true
		}
	}
	return nil, false
}

func (s memItems) GetItem(_ context.Context, ref voting.ItemRef) (*voting.Item, error) {
	defer s.rlock()()

	it, ok := s.item(ref)
	if !ok {
		return nil, voting.ErrItemNotFound
	}
	return it, nil
}

// LockItem only checks existence: a transaction already holds the write lock.
func (s memItems) LockItem(ctx context.Context, ref voting.ItemRef) error {
	_, err := s.GetItem(ctx, ref)
	return err
}

func (s memItems) IncrementScore(_ context.Context, ref voting.ItemRef, delta int) (int, error) {
	defer s.lock()()

	var score *int
	switch ref.Kind {
	case voting.KindPost:
		if p, ok := s.repo.posts[ref.ID]; ok {
			score = &p.Score
		}
	case voting.KindComment:
		if c, ok := s.repo.comments[ref.ID]; ok {
			score = &c.Score
		}
	}
	if score == nil {
		return 0, voting.ErrItemNotFound
	}

	*score += delta
	s.onRollback(func() { *score -= delta })
	return *score, nil
}

func (s memItems) DeleteItem(_ context.Context, ref voting.ItemRef) error {
	defer s.lock()()

	switch ref.Kind {
	case voting.KindPost:
		p, ok := s.repo.posts[ref.ID]
		if !ok {
			return voting.ErrItemNotFound
		}
		delete(s.repo.posts, ref.ID)
		s.onRollback(func() { s.repo.posts[ref.ID] = p })
	case voting.KindComment:
		c, ok := s.repo.comments[ref.ID]
		if !ok {
			return voting.ErrItemNotFound
		}
		delete(s.repo.comments, ref.ID)
		s.onRollback(func() { s.repo.comments[ref.ID] = c })
	default:
		return voting.ErrItemNotFound
	}
	return nil
}

func (s memItems) ListChildren(_ context.Context, ref voting.ItemRef) ([]voting.ItemRef, error) {
	defer s.rlock()()

	res := make([]voting.ItemRef, 0)
	if ref.Kind != voting.KindPost {
		return res, nil
	}
	for _, c := range s.repo.comments {
		if c.PostID == ref.ID {
			res = append(res, c.Ref())
		}
	}
	return res, nil
}

func (s memItems) ListItemsByAuthor(_ context.Context, userID string) ([]*voting.Item, error) {
	defer s.rlock()()

	res := make([]*voting.Item, 0)
	for _, p := range s.repo.posts {
		if p.Author.ID == userID {
			res = append(res, &voting.Item{Ref: p.Ref(), AuthorID: userID, Score: p.Score})
		}
	}
	for _, c := range s.repo.comments {
		if c.Author.ID == userID {
			res = append(res, &voting.Item{Ref: c.Ref(), AuthorID: userID, Score: c.Score})
		}
	}
	return res, nil
}

type memVotes struct{ memScope }

func (s memVotes) Find(_ context.Context, userID string, ref voting.ItemRef) (*voting.Vote, error) {
	defer s.rlock()()

	value, ok := s.repo.votes[voteKey{user: userID, item: ref}]
	if !ok {
		return nil, nil
	}
	return &voting.Vote{UserID: userID, Item: ref, Value: value}, nil
}

func (s memVotes) Insert(_ context.Context, v *voting.Vote) error {
	defer s.lock()()

	key := voteKey{user: v.UserID, item: v.Item}
	if _, ok := s.repo.votes[key]; ok {
		return voting.ErrDuplicateVote
	}
	s.repo.votes[key] = v.Value
	s.onRollback(func() { delete(s.repo.votes, key) })
	return nil
}

func (s memVotes) Update(_ context.Context, v *voting.Vote, value voting.VoteState) error {
	defer s.lock()()

	key := voteKey{user: v.UserID, item: v.Item}
	old, ok := s.repo.votes[key]
	if !ok {
		return voting.ErrVoteNotFound
	}
	s.repo.votes[key] = value
	s.onRollback(func() { s.repo.votes[key] = old })
	v.Value = value
	return nil
}

func (s memVotes) Delete(_ context.Context, v *voting.Vote) error {
	defer s.lock()()

	key := voteKey{user: v.UserID, item: v.Item}
	old, ok := s.repo.votes[key]
	if !ok {
		return nil
	}
	delete(s.repo.votes, key)
	s.onRollback(func() { s.repo.votes[key] = old })
	return nil
}

func (s memVotes) DeleteAllForItem(_ context.Context, ref voting.ItemRef) (int, error) {
	defer s.lock()()

	n := 0
	for key, value := range s.repo.votes {
		if key.item != ref {
			continue
		}
		delete(s.repo.votes, key)
		s.onRollback(func() { s.repo.votes[key] = value })
		n++
	}
	return n, nil
}

func (s memVotes) ListForItem(_ context.Context, ref voting.ItemRef) ([]*voting.Vote, error) {
	defer s.rlock()()

	res := make([]*voting.Vote, 0)
	for key, value := range s.repo.votes {
		if key.item == ref {
			res = append(res, &voting.Vote{UserID: key.user, Item: ref, Value: value})
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].UserID < res[j].UserID
	})
	return res, nil
}
