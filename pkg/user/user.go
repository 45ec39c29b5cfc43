package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	Name         string `json:"username" bson:"name"`
	PasswordHash string `json:"-" bson:"password_hash"`
	ID           string `json:"id" bson:"_id"`
}

var (
	ErrUserAlready     = errors.New("already exists")
	ErrUserNotExist    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrBadCredentials  = errors.New("username and password are required")
	ErrUnavailable     = errors.New("user store unavailable")
)

type UserRepo interface {
	AddUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, name string) (*User, error)
	CheckUser(ctx context.Context, name, password string) (*User, error)
}

// NewUser hashes password and assigns a fresh id.
func NewUser(name, password string) (*User, error) {
	if name == "" || password == "" {
		return nil, ErrBadCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &User{Name: name, PasswordHash: string(hash), ID: uuid.NewString()}, nil
}

func (u *User) CheckPassword(password string) error {
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return ErrInvalidPassword
	}
	return nil
}

// checkUser is shared by every repository: look the user up, then compare.
func checkUser(ctx context.Context, repo UserRepo, name, password string) (*User, error) {
	u, err := repo.GetUser(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := u.CheckPassword(password); err != nil {
		return nil, err
	}
	return u, nil
}
