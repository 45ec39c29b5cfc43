package post

import (
	"context"
	"errors"
	"math"
	"time"

	"forum/pkg/voting"
)

type Post struct {
	Score            int            `json:"score" bson:"score"`
	Views            int            `json:"views" bson:"views"`
	Type             string         `json:"type" bson:"type"`
	Title            string         `json:"title" bson:"title"`
	Category         string         `json:"category" bson:"category"`
	Text             string         `json:"text,omitempty" bson:"text,omitempty"`
	Author           Author         `json:"author" bson:"author"`
	Votes            []*voting.Vote `json:"votes" bson:"-"`
	Comments         []*Comment     `json:"comments" bson:"-"`
	UpvotePercentage int            `json:"upvotePercentage" bson:"-"`
	ID               string         `json:"id" bson:"_id"`
	Created          time.Time      `json:"created" bson:"created"`
	URL              string         `json:"url,omitempty" bson:"url,omitempty"`
}

type Author struct {
	Username string `json:"username" bson:"username"`
	ID       string `json:"id" bson:"id"`
}

type Comment struct {
	Body    string    `json:"body" bson:"body"`
	Author  Author    `json:"author" bson:"author"`
	Created time.Time `json:"created" bson:"created"`
	ID      string    `json:"id" bson:"_id"`
	PostID  string    `json:"post" bson:"post_id"`
	Score   int       `json:"score" bson:"score"`
}

const (
	TypeText = "text"
	TypeLink = "link"
)

var Categories = []string{"music", "funny", "videos", "programming", "news", "fashion"}

var ErrWrongCategory = errors.New("wrong category")
var ErrWrongType = errors.New("wrong post type")
var ErrPostNotFound = errors.New("post not found")
var ErrCommentNotFound = errors.New("comment not found")
var ErrAccessDenied = errors.New("access denied")

func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

func (p *Post) Ref() voting.ItemRef {
	return voting.ItemRef{ID: p.ID, Kind: voting.KindPost}
}

func (c *Comment) Ref() voting.ItemRef {
	return voting.ItemRef{ID: c.ID, Kind: voting.KindComment}
}

// PostRepo stores posts and comments. Every implementation is also the
// voting.Store that keeps their scores.
type PostRepo interface {
	voting.Store
	AddPost(ctx context.Context, p *Post) error
	GetPost(ctx context.Context, postID string) (*Post, error)
	AddViews(ctx context.Context, postID string) error
	GetAllPosts(ctx context.Context) ([]*Post, error)
	GetPostsWithCategory(ctx context.Context, category string) ([]*Post, error)
	GetUserPosts(ctx context.Context, userName string) ([]*Post, error)
	AddComment(ctx context.Context, c *Comment) error
	GetComment(ctx context.Context, commentID string) (*Comment, error)
	GetComments(ctx context.Context, postID string) ([]*Comment, error)
}

// Load fetches a post together with its comments and vote records.
func Load(ctx context.Context, repo PostRepo, postID string) (*Post, error) {
	p, err := repo.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := Decorate(ctx, repo, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Decorate fills the fields of p that are derived from other records.
func Decorate(ctx context.Context, repo PostRepo, p *Post) error {
	var err error
	if p.Comments, err = repo.GetComments(ctx, p.ID); err != nil {
		return err
	}
	if p.Votes, err = repo.Votes().ListForItem(ctx, p.Ref()); err != nil {
		return err
	}
	issuePercentage(p)
	return nil
}

func issuePercentage(p *Post) {
	upvotes := 0
	for _, v := range p.Votes {
		if v.Value == voting.Up {
			upvotes++
		}
	}
	if len(p.Votes) == 0 {
		p.UpvotePercentage = 0
		return
	}
	p.UpvotePercentage = int(math.Round(float64(upvotes) / float64(len(p.Votes)) * 100))
}
