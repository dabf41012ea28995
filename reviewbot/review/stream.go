package review

import (
	"context"
	"time"

	"github.com/bww-mods/benchbot/reviewbot/platform"

	lru "github.com/hashicorp/golang-lru/v2"
)

// streamFetch is how many of the newest items each poll requests.
const streamFetch = 100

// poller turns repeated "newest N" listings into a stream of items not seen before.
type poller[T any] struct {
	seen  *lru.Cache[string, struct{}]
	id    func(T) string
	fetch func(context.Context) ([]T, error)
}

func newPoller[T any](id func(T) string, fetch func(context.Context) ([]T, error)) *poller[T] {
	seen, err := lru.New[string, struct{}](streamFetch * 10)
	if err != nil {
		panic(err)
	}
	return &poller[T]{seen: seen, id: id, fetch: fetch}
}

// poll returns unseen items, oldest first. Listings arrive newest first.
func (p *poller[T]) poll(ctx context.Context) ([]T, error) {
	items, err := p.fetch(ctx)
	if err != nil {
		return nil, err
	}
	var out []T
	for i := len(items) - 1; i >= 0; i-- {
		id := p.id(items[i])
		if p.seen.Contains(id) {
			continue
		}
		p.seen.Add(id, struct{}{})
		out = append(out, items[i])
	}
	return out, nil
}

// RunPostStream polls the community for new posts and hands each link post to submit. The first listing after
// startup is treated as downtime backlog and goes to CatchUp instead.
func (eng *Engine) RunPostStream(ctx context.Context, submit func(platform.Post)) {
	p := newPoller(func(post platform.Post) string { return post.ID }, func(ctx context.Context) ([]platform.Post, error) {
		return eng.Client.NewPosts(ctx, eng.Config.Community, streamFetch)
	})
	first := true
	RunPeriodically(ctx, eng.Logger, "posts", eng.Config.PollInterval, func(ctx context.Context) error {
		posts, err := p.poll(ctx)
		if err != nil {
			return err
		}
		if first {
			if err := eng.CatchUp(ctx, posts); err != nil {
				// forget the backlog so the next poll retries it
				for _, post := range posts {
					p.seen.Remove(post.ID)
				}
				return err
			}
			first = false
			return nil
		}
		for _, post := range posts {
			if post.IsSelf {
				continue
			}
			submit(post)
		}
		return nil
	})
}

// RunCommentStream polls the community for new comments and handles them as potential votes. Comments already
// present at startup are skipped.
func (eng *Engine) RunCommentStream(ctx context.Context) {
	p := newPoller(func(c platform.Comment) string { return c.ID }, func(ctx context.Context) ([]platform.Comment, error) {
		return eng.Client.NewComments(ctx, eng.Config.Community, streamFetch)
	})
	first := true
	RunPeriodically(ctx, eng.Logger, "comments", eng.Config.PollInterval, func(ctx context.Context) error {
		comments, err := p.poll(ctx)
		if err != nil {
			return err
		}
		if first {
			first = false
			return nil
		}
		for _, c := range comments {
			if err := eng.HandleComment(ctx, c); err != nil {
				eng.Logger.Warn("failed to handle comment", "comment", c.ID, "post", c.PostID, "err", err)
			}
		}
		return nil
	})
}

// RunInboxStream relays unread private messages to the outbox and marks them read.
func (eng *Engine) RunInboxStream(ctx context.Context) {
	RunPeriodically(ctx, eng.Logger, "inbox", eng.Config.PollInterval, eng.PollInbox)
}

// PollInbox handles one batch of unread messages. Messages are only marked read once queued.
func (eng *Engine) PollInbox(ctx context.Context) error {
	msgs, err := eng.Client.UnreadMessages(ctx, streamFetch)
	if err != nil {
		return err
	}
	var done []string
	for _, m := range msgs {
		if err := eng.HandleMessage(ctx, m); err != nil {
			eng.Logger.Warn("failed to relay message", "message", m.ID, "err", err)
			continue
		}
		done = append(done, m.ID)
	}
	if len(done) == 0 {
		return nil
	}
	return eng.Client.MarkRead(ctx, done)
}

// RunSweeps runs the recovery and voting sweeps on their intervals until the context ends.
func (eng *Engine) RunSweeps(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunPeriodically(ctx, eng.Logger, "voting-sweep", eng.Config.VoteSweepInterval, eng.VotingSweep)
	}()
	// let startup catch-up land before the first recovery pass
	if sleepCtx(ctx, time.Second) {
		RunPeriodically(ctx, eng.Logger, "recovery-sweep", eng.Config.SweepInterval, eng.RecoverySweep)
	}
	<-done
}
