package sqlrepo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"forum/pkg/user"
	"forum/pkg/voting"
)

type userRow struct {
	ID           string `gorm:"primaryKey;size:64"`
	Name         string `gorm:"size:64;not null;uniqueIndex"`
	PasswordHash string `gorm:"size:128;not null"`
}

func (userRow) TableName() string { return "users" }

// UserRepository keeps accounts in the same database as the posts.
type UserRepository struct {
	db *gorm.DB
}

func (r *Repository) Users() *UserRepository {
	return &UserRepository{db: r.db}
}

func userUnavailable(err error) error {
	err = unavailable(err)
	if errors.Is(err, voting.ErrStoreUnavailable) {
		return fmt.Errorf("%w: %w", user.ErrUnavailable, err)
	}
	return err
}

func (u *UserRepository) AddUser(ctx context.Context, usr *user.User) error {
	err := u.db.WithContext(ctx).Create(&userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		PasswordHash: usr.PasswordHash,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return user.ErrUserAlready
	}
	return userUnavailable(err)
}

func (u *UserRepository) GetUser(ctx context.Context, name string) (*user.User, error) {
	var row userRow
	err := u.db.WithContext(ctx).Where("name = ?", name).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, user.ErrUserNotExist
	}
	if err != nil {
		return nil, userUnavailable(err)
	}
	return &user.User{ID: row.ID, Name: row.Name, PasswordHash: row.PasswordHash}, nil
}

func (u *UserRepository) CheckUser(ctx context.Context, name, password string) (*user.User, error) {
	usr, err := u.GetUser(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := usr.CheckPassword(password); err != nil {
		return nil, err
	}
	return usr, nil
}
