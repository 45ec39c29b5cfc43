package mongorepo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"forum/pkg/user"
)

// UserRepository keeps accounts in the same database as the posts.
type UserRepository struct {
	users *mongo.Collection
}

func (r *Repository) Users() *UserRepository {
	return &UserRepository{users: r.users}
}

func userUnavailable(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %w", user.ErrUnavailable, err)
	}
	return err
}

func (u *UserRepository) AddUser(ctx context.Context, usr *user.User) error {
	_, err := u.users.InsertOne(ctx, usr)
	if mongo.IsDuplicateKeyError(err) {
		return user.ErrUserAlready
	}
	return userUnavailable(err)
}

func (u *UserRepository) GetUser(ctx context.Context, name string) (*user.User, error) {
	res := &user.User{}
	err := u.users.FindOne(ctx, bson.M{"name": name}).Decode(res)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, user.ErrUserNotExist
	}
	if err != nil {
		return nil, userUnavailable(err)
	}
	return res, nil
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
