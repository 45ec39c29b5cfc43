package sqlrepo

import (
	"time"

	post "forum/pkg/posts"
)

type postRow struct {
	ID         string    `gorm:"primaryKey;size:64"`
	Type       string    `gorm:"size:16;not null"`
	Title      string    `gorm:"not null"`
	Category   string    `gorm:"size:32;not null;index"`
	Text       string    `gorm:"type:text"`
	URL        string    `gorm:"size:2048"`
	AuthorID   string    `gorm:"size:64;not null;index"`
	AuthorName string    `gorm:"size:64;not null;index"`
	Score      int       `gorm:"not null;default:0"`
	Views      int       `gorm:"not null;default:0"`
	Created    time.Time `gorm:"not null;index"`
}

func (postRow) TableName() string { return "posts" }

type commentRow struct {
	ID         string    `gorm:"primaryKey;size:64"`
	PostID     string    `gorm:"size:64;not null;index"`
	Body       string    `gorm:"type:text;not null"`
	AuthorID   string    `gorm:"size:64;not null;index"`
	AuthorName string    `gorm:"size:64;not null"`
	Score      int       `gorm:"not null;default:0"`
	Created    time.Time `gorm:"not null"`
}

func (commentRow) TableName() string { return "comments" }

// voteRow is unique per (user, item id, item kind).
type voteRow struct {
	ID       uint   `gorm:"primaryKey"`
	UserID   string `gorm:"size:64;not null;uniqueIndex:idx_vote_owner"`
	ItemID   string `gorm:"size:64;not null;uniqueIndex:idx_vote_owner;index:idx_vote_item"`
	ItemKind string `gorm:"size:16;not null;uniqueIndex:idx_vote_owner;index:idx_vote_item"`
	Value    int    `gorm:"not null"`
}

func (voteRow) TableName() string { return "votes" }

func fromPost(p *post.Post) *postRow {
	return &postRow{
		ID:         p.ID,
		Type:       p.Type,
		Title:      p.Title,
		Category:   p.Category,
		Text:       p.Text,
		URL:        p.URL,
		AuthorID:   p.Author.ID,
		AuthorName: p.Author.Username,
		Score:      p.Score,
		Views:      p.Views,
		Created:    p.Created,
	}
}

func (r *postRow) post() *post.Post {
	return &post.Post{
		ID:       r.ID,
		Type:     r.Type,
		Title:    r.Title,
		Category: r.Category,
		Text:     r.Text,
		URL:      r.URL,
		Author:   post.Author{Username: r.AuthorName, ID: r.AuthorID},
		Score:    r.Score,
		Views:    r.Views,
		Created:  r.Created,
	}
}

func fromComment(c *post.Comment) *commentRow {
	return &commentRow{
		ID:         c.ID,
		PostID:     c.PostID,
		Body:       c.Body,
		AuthorID:   c.Author.ID,
		AuthorName: c.Author.Username,
		Score:      c.Score,
		Created:    c.Created,
	}
}

func (r *commentRow) comment() *post.Comment {
	return &post.Comment{
		ID:      r.ID,
		PostID:  r.PostID,
		Body:    r.Body,
		Author:  post.Author{Username: r.AuthorName, ID: r.AuthorID},
		Score:   r.Score,
		Created: r.Created,
	}
}
