// Package platform holds the boundary types the review engine exchanges with the hosting community platform, and the
// client interface the engine depends on.
package platform

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("platform object not found")

// Post is a submission to a community. Author is empty for deleted accounts.
type Post struct {
	ID        string
	Author    string
	Title     string
	URL       string
	Community string
	IsSelf    bool
	Flair     string
	Score     int
	Permalink string
	CreatedAt time.Time
}

// Comment on a post. ParentID is the ID of the parent comment, or the post ID for top-level comments.
type Comment struct {
	ID          string
	PostID      string
	ParentID    string
	TopLevel    bool
	Author      string
	Body        string
	IsSubmitter bool
	Stickied    bool
	CreatedAt   time.Time
}

// Message is an inbox item addressed to the bot account.
type Message struct {
	ID         string
	Author     string
	Subject    string
	Body       string
	WasComment bool
	CreatedAt  time.Time
}

// Client is the set of platform operations the engine and the daemon use. Implementations must be safe for
// concurrent use.
type Client interface {
	// Username of the account the client acts as.
	Username() string

	Post(ctx context.Context, postID string) (*Post, error)
	// Reply posts a top-level comment on a post and returns the new comment.
	Reply(ctx context.Context, postID, body string) (*Comment, error)
	Comment(ctx context.Context, commentID string) (*Comment, error)
	EditComment(ctx context.Context, commentID, body string) error
	// Distinguish marks a comment as a moderator comment, optionally stickied to the top of the thread.
	Distinguish(ctx context.Context, commentID string, sticky bool) error
	Lock(ctx context.Context, commentID string) error
	RemovePost(ctx context.Context, postID string) error
	RemoveComment(ctx context.Context, commentID string) error
	DeleteComment(ctx context.Context, commentID string) error

	// Duplicates returns other posts sharing the post's link.
	Duplicates(ctx context.Context, postID string) ([]Post, error)
	// AuthorPosts returns an author's recent posts, newest first.
	AuthorPosts(ctx context.Context, author string, limit int) ([]Post, error)
	// Comments returns the full comment tree of a post, flattened.
	Comments(ctx context.Context, postID string) ([]Comment, error)

	// NewPosts returns the newest posts of a community, newest first.
	NewPosts(ctx context.Context, community string, limit int) ([]Post, error)
	// NewComments returns the newest comments of a community, newest first.
	NewComments(ctx context.Context, community string, limit int) ([]Comment, error)
	UnreadMessages(ctx context.Context, limit int) ([]Message, error)
	MarkRead(ctx context.Context, messageIDs []string) error

	// SendModmail sends a message to the moderators of a community.
	SendModmail(ctx context.Context, community, subject, body string) error
}
