package sqlrepo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"forum/pkg/voting"
)

type items struct{ db *gorm.DB }

func itemModel(kind voting.ItemKind) (interface{}, error) {
	switch kind {
	case voting.KindPost:
		return &postRow{}, nil
	case voting.KindComment:
		return &commentRow{}, nil
	}
	return nil, voting.ErrItemNotFound
}

type scoreRow struct {
	ID       string
	AuthorID string
	Score    int
}

func (s items) GetItem(ctx context.Context, ref voting.ItemRef) (*voting.Item, error) {
	model, err := itemModel(ref.Kind)
	if err != nil {
		return nil, err
	}

	var row scoreRow
	err = s.db.WithContext(ctx).Model(model).
		Select("id", "author_id", "score").
		Where("id = ?", ref.ID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, voting.ErrItemNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &voting.Item{Ref: ref, AuthorID: row.AuthorID, Score: row.Score}, nil
}

// LockItem takes the row lock IncrementScore's UPDATE also needs, so a vote
// on ref either commits first or finds the row deleted.
func (s items) LockItem(ctx context.Context, ref voting.ItemRef) error {
	model, err := itemModel(ref.Kind)
	if err != nil {
		return err
	}

	var row scoreRow
	err = s.db.WithContext(ctx).Model(model).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", ref.ID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return voting.ErrItemNotFound
	}
	return unavailable(err)
}

// IncrementScore updates in place and reads back under the row lock the
// update took, so the returned score includes exactly this delta.
func (s items) IncrementScore(ctx context.Context, ref voting.ItemRef, delta int) (int, error) {
	model, err := itemModel(ref.Kind)
	if err != nil {
		return 0, err
	}

	var row scoreRow
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(model).
			Where("id = ?", ref.ID).
			UpdateColumn("score", gorm.Expr("score + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return voting.ErrItemNotFound
		}
		return tx.Model(model).Select("id", "score").Where("id = ?", ref.ID).Take(&row).Error
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return row.Score, nil
}

func (s items) DeleteItem(ctx context.Context, ref voting.ItemRef) error {
	model, err := itemModel(ref.Kind)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Where("id = ?", ref.ID).Delete(model)
	if res.Error != nil {
		return unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return voting.ErrItemNotFound
	}
	return nil
}

func (s items) ListChildren(ctx context.Context, ref voting.ItemRef) ([]voting.ItemRef, error) {
	res := make([]voting.ItemRef, 0)
	if ref.Kind != voting.KindPost {
		return res, nil
	}

	var ids []string
	err := s.db.WithContext(ctx).Model(&commentRow{}).Where("post_id = ?", ref.ID).Pluck("id", &ids).Error
	if err != nil {
		return nil, unavailable(err)
	}
	for _, id := range ids {
		res = append(res, voting.ItemRef{ID: id, Kind: voting.KindComment})
	}
	return res, nil
}

func (s items) ListItemsByAuthor(ctx context.Context, userID string) ([]*voting.Item, error) {
	res := make([]*voting.Item, 0)
	for _, kind := range []voting.ItemKind{voting.KindPost, voting.KindComment} {
		model, _ := itemModel(kind)
		var rows []scoreRow
		err := s.db.WithContext(ctx).Model(model).
			Select("id", "author_id", "score").
			Where("author_id = ?", userID).
			Find(&rows).Error
		if err != nil {
			return nil, unavailable(err)
		}
		for _, row := range rows {
			res = append(res, &voting.Item{
				Ref:      voting.ItemRef{ID: row.ID, Kind: kind},
				AuthorID: userID,
				Score:    row.Score,
			})
		}
	}
	return res, nil
}

type votes struct{ db *gorm.DB }

func (s votes) owner(ctx context.Context, userID string, ref voting.ItemRef) *gorm.DB {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND item_id = ? AND item_kind = ?", userID, ref.ID, string(ref.Kind))
}

func (r *voteRow) vote() *voting.Vote {
	return &voting.Vote{
		UserID: r.UserID,
		Item:   voting.ItemRef{ID: r.ItemID, Kind: voting.ItemKind(r.ItemKind)},
		Value:  voting.VoteState(r.Value),
	}
}

func (s votes) Find(ctx context.Context, userID string, ref voting.ItemRef) (*voting.Vote, error) {
	var row voteRow
	err := s.owner(ctx, userID, ref).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return row.vote(), nil
}

func (s votes) Insert(ctx context.Context, v *voting.Vote) error {
	err := s.db.WithContext(ctx).Create(&voteRow{
		UserID:   v.UserID,
		ItemID:   v.Item.ID,
		ItemKind: string(v.Item.Kind),
		Value:    int(v.Value),
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", voting.ErrDuplicateVote, err)
	}
	return unavailable(err)
}

func (s votes) Update(ctx context.Context, v *voting.Vote, value voting.VoteState) error {
	res := s.owner(ctx, v.UserID, v.Item).Model(&voteRow{}).Update("value", int(value))
	if res.Error != nil {
		return unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return voting.ErrVoteNotFound
	}
	v.Value = value
	return nil
}

func (s votes) Delete(ctx context.Context, v *voting.Vote) error {
	return unavailable(s.owner(ctx, v.UserID, v.Item).Delete(&voteRow{}).Error)
}

func (s votes) DeleteAllForItem(ctx context.Context, ref voting.ItemRef) (int, error) {
	res := s.db.WithContext(ctx).
		Where("item_id = ? AND item_kind = ?", ref.ID, string(ref.Kind)).
		Delete(&voteRow{})
	if res.Error != nil {
		return 0, unavailable(res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s votes) ListForItem(ctx context.Context, ref voting.ItemRef) ([]*voting.Vote, error) {
	var rows []voteRow
	err := s.db.WithContext(ctx).
		Where("item_id = ? AND item_kind = ?", ref.ID, string(ref.Kind)).
		Order("user_id").
		Find(&rows).Error
	if err != nil {
		return nil, unavailable(err)
	}
	res := make([]*voting.Vote, 0, len(rows))
	for i := range rows {
		res = append(res, rows[i].vote())
	}
	return res, nil
}
