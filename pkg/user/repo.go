package user

import (
	"context"
	"sync"
)

type UserMemoryRepository struct {
	data map[string]*User
	mu   sync.RWMutex
}

func NewUserMemRep() *UserMemoryRepository {
	return &UserMemoryRepository{data: make(map[string]*User)}
}

func (repo *UserMemoryRepository) CheckUser(ctx context.Context, name, password string) (*User, error) {
	return checkUser(ctx, repo, name, password)
}

func (repo *UserMemoryRepository) AddUser(_ context.Context, user *User) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, ok := repo.data[user.Name]; ok {
		return ErrUserAlready
	}
	stored := *user
	repo.data[user.Name] = &stored
	return nil
}

func (repo *UserMemoryRepository) GetUser(_ context.Context, name string) (*User, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	val, ok := repo.data[name]
	if !ok {
		return nil, ErrUserNotExist
	}
	res := *val
	return &res, nil
}
