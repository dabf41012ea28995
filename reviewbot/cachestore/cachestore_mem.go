package cachestore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemReplyCache keeps reply bodies in process, keyed by reply ID. Bodies expire after the record lifetime, since a
// reply is never edited again once its post has left review.
type MemReplyCache struct {
	bodies *expirable.LRU[string, string]
}

var _ ReplyCache = (*MemReplyCache)(nil)

func NewMemReplyCache(capacity int, ttl time.Duration) *MemReplyCache {
	return &MemReplyCache{
		bodies: expirable.NewLRU[string, string](capacity, nil, ttl),
	}
}

func (s *MemReplyCache) Body(ctx context.Context, replyID string) (string, bool, error) {
	body, ok := s.bodies.Get(replyID)
	return body, ok, nil
}

func (s *MemReplyCache) Remember(ctx context.Context, replyID, body string) error {
	s.bodies.Add(replyID, body)
	return nil
}

func (s *MemReplyCache) Forget(ctx context.Context, replyID string) error {
	s.bodies.Remove(replyID)
	return nil
}
