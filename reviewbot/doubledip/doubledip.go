// Package doubledip detects "double-dipping": the same author sharing the same link or title in another community.
//
// This is a deliberately loose check. It does not look for reposts of other users' links, and posts in the reviewed
// community itself never count against the author.
package doubledip

import (
	"context"
	"fmt"

	"github.com/bww-mods/benchbot/reviewbot/platform"
)

// DefaultHistoryLimit is how many of the author's recent posts are checked.
var DefaultHistoryLimit = 100

// IsDoubleDip reports whether any candidate is a double-dip of post.
func IsDoubleDip(post platform.Post, candidates []platform.Post) bool {
	if post.IsSelf || post.Author == "" {
		return false
	}
	for _, other := range candidates {
		if Matches(post, other) {
			return true
		}
	}
	return false
}

// Matches reports whether other, on its own, makes post a double-dip.
func Matches(post, other platform.Post) bool {
	if post.IsSelf || post.Author == "" {
		return false
	}
	if other.ID == post.ID || other.IsSelf {
		return false
	}
	if other.Author != post.Author || other.Community == post.Community {
		return false
	}
	return other.Title == post.Title || (post.URL != "" && other.URL == post.URL)
}

// Detector gathers candidate posts from the platform and applies IsDoubleDip.
type Detector struct {
	Client       platform.Client
	HistoryLimit int
}

func NewDetector(client platform.Client) *Detector {
	return &Detector{
		Client:       client,
		HistoryLimit: DefaultHistoryLimit,
	}
}

// Check returns true if post is a double-dip. Platform errors are returned as-is so the caller can retry the pass.
func (d *Detector) Check(ctx context.Context, post platform.Post) (bool, error) {
	if post.IsSelf || post.Author == "" {
		return false, nil
	}
	candidates, err := d.Candidates(ctx, post)
	if err != nil {
		return false, err
	}
	return IsDoubleDip(post, candidates), nil
}

// Candidates is the union of the platform's duplicates listing and the author's recent posts, de-duplicated by ID.
func (d *Detector) Candidates(ctx context.Context, post platform.Post) ([]platform.Post, error) {
	dups, err := d.Client.Duplicates(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching duplicates of %s: %w", post.ID, err)
	}
	history, err := d.Client.AuthorPosts(ctx, post.Author, d.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching posts by %s: %w", post.Author, err)
	}

	seen := make(map[string]bool, len(dups)+len(history))
	out := make([]platform.Post, 0, len(dups)+len(history))
	for _, batch := range [][]platform.Post{dups, history} {
		for _, p := range batch {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	return out, nil
}
