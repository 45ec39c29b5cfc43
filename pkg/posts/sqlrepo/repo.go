// Package sqlrepo stores posts, comments and votes in PostgreSQL or MySQL
// through gorm.
package sqlrepo

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	post "forum/pkg/posts"
	"forum/pkg/voting"
)

type Repository struct {
	db *gorm.DB
}

var ErrUnknownDialect = errors.New("unknown sql dialect")

// Open connects to dsn using dialect ("postgres" or "mysql") and migrates
// the schema.
func Open(dialect, dsn string) (*Repository, error) {
	var dialector gorm.Dialector
	switch dialect {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
	}

	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}

	var db *gorm.DB
	var err error
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(dialector, cfg)
		if err == nil {
			break
		}
		time.Sleep(time.Second * 2)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	repo := New(db)
	if err := repo.Migrate(); err != nil {
		return nil, err
	}
	return repo, nil
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Migrate() error {
	for _, model := range []interface{}{&postRow{}, &commentRow{}, &voteRow{}, &userRow{}} {
		if err := r.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model: %w", err)
		}
	}
	return nil
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", voting.ErrStoreUnavailable, err)
	}
	return err
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx voting.Tx) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &Repository{db: tx})
	})
	return unavailable(err)
}

func (r *Repository) AddPost(ctx context.Context, p *post.Post) error {
	if !post.ValidCategory(p.Category) {
		return post.ErrWrongCategory
	}
	return unavailable(r.db.WithContext(ctx).Create(fromPost(p)).Error)
}

func (r *Repository) GetPost(ctx context.Context, postID string) (*post.Post, error) {
	var row postRow
	err := r.db.WithContext(ctx).Where("id = ?", postID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, post.ErrPostNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return row.post(), nil
}

func (r *Repository) AddViews(ctx context.Context, postID string) error {
	res := r.db.WithContext(ctx).Model(&postRow{}).
		Where("id = ?", postID).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
	if res.Error != nil {
		return unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return post.ErrPostNotFound
	}
	return nil
}

func (r *Repository) findPosts(ctx context.Context, query string, args ...interface{}) ([]*post.Post, error) {
	q := r.db.WithContext(ctx).Order("created desc")
	if query != "" {
		q = q.Where(query, args...)
	}

	var rows []postRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, unavailable(err)
	}
	res := make([]*post.Post, 0, len(rows))
	for i := range rows {
		res = append(res, rows[i].post())
	}
	return res, nil
}

func (r *Repository) GetAllPosts(ctx context.Context) ([]*post.Post, error) {
	return r.findPosts(ctx, "")
}

func (r *Repository) GetPostsWithCategory(ctx context.Context, category string) ([]*post.Post, error) {
	if !post.ValidCategory(category) {
		return nil, post.ErrWrongCategory
	}
	return r.findPosts(ctx, "category = ?", category)
}

func (r *Repository) GetUserPosts(ctx context.Context, userName string) ([]*post.Post, error) {
	return r.findPosts(ctx, "author_name = ?", userName)
}

func (r *Repository) AddComment(ctx context.Context, c *post.Comment) error {
	return r.WithinTx(ctx, func(ctx context.Context, tx voting.Tx) error {
		db := tx.(*Repository).db.WithContext(ctx)
		var n int64
		if err := db.Model(&postRow{}).Where("id = ?", c.PostID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return post.ErrPostNotFound
		}
		return db.Create(fromComment(c)).Error
	})
}

func (r *Repository) GetComment(ctx context.Context, commentID string) (*post.Comment, error) {
	var row commentRow
	err := r.db.WithContext(ctx).Where("id = ?", commentID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, post.ErrCommentNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return row.comment(), nil
}

func (r *Repository) GetComments(ctx context.Context, postID string) ([]*post.Comment, error) {
	var rows []commentRow
	err := r.db.WithContext(ctx).Where("post_id = ?", postID).Order("created asc").Find(&rows).Error
	if err != nil {
		return nil, unavailable(err)
	}
	res := make([]*post.Comment, 0, len(rows))
	for i := range rows {
		res = append(res, rows[i].comment())
	}
	return res, nil
}

func (r *Repository) Items() voting.ItemStore { return items{r.db} }
func (r *Repository) Votes() voting.VoteStore { return votes{r.db} }
