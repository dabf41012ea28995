// Package cachestore remembers the body the review engine last wrote to each of its reply comments.
//
// Refreshing a vote table compares the new body against the remembered one and skips the edit when nothing changed,
// without a platform round-trip to read the comment first. The bot is the only editor of its replies, so a remembered
// body is authoritative until it expires.
package cachestore

import (
	"context"
)

type ReplyCache interface {
	// Body returns the remembered body of a reply; ok is false on a miss.
	Body(ctx context.Context, replyID string) (body string, ok bool, err error)
	Remember(ctx context.Context, replyID, body string) error
	Forget(ctx context.Context, replyID string) error
}
