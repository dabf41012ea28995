package voting

import (
	"context"
	"strings"

	"github.com/bww-mods/benchbot/reviewbot/platform"
	"github.com/bww-mods/benchbot/reviewbot/setstore"
)

// Exclusions opt a post out of a feature (the standard reply, or voting) by title substring or by exact flair text.
type Exclusions struct {
	TitleSubstrings []string

	// name of the set in Sets holding excluded flair texts
	FlairSet string
	Sets     setstore.SetStore
}

// Excludes reports whether the post is opted out. A set store error is returned and the post treated as not excluded.
func (x Exclusions) Excludes(ctx context.Context, post platform.Post) (bool, error) {
	for _, sub := range x.TitleSubstrings {
		if sub != "" && strings.Contains(post.Title, sub) {
			return true, nil
		}
	}
	if x.Sets == nil || x.FlairSet == "" || post.Flair == "" {
		return false, nil
	}
	return x.Sets.InSet(ctx, x.FlairSet, post.Flair)
}
