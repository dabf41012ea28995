// Package review runs the timed review of each new post: a first pass when the post appears, a second pass after a
// delay, and for vote-eligible posts a vote-closing pass when the vote window ends. All progress is recorded in the
// job store, so the recovery sweeps can finish any pass a restart interrupted.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bww-mods/benchbot/reviewbot/cachestore"
	"github.com/bww-mods/benchbot/reviewbot/countstore"
	"github.com/bww-mods/benchbot/reviewbot/doubledip"
	"github.com/bww-mods/benchbot/reviewbot/jobstore"
	"github.com/bww-mods/benchbot/reviewbot/outbox"
	"github.com/bww-mods/benchbot/reviewbot/platform"
	"github.com/bww-mods/benchbot/reviewbot/voting"

	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("reviewbot")

const removalCounter = "double-dip-removal"

// Engine executes review passes against the platform and the job store.
//
// Construct with NewEngine; the ReplyBodies and Counters fields may be swapped for redis-backed stores before use.
type Engine struct {
	Config      Config
	Logger      *slog.Logger
	Client      platform.Client
	Store       *jobstore.Store
	Outbox      *outbox.Outbox
	Detector    *doubledip.Detector
	Votes       *voting.Aggregator
	ReplyBodies cachestore.ReplyCache
	Counters    countstore.CountStore

	// post IDs with a pass or vote in progress
	claims *xsync.MapOf[string, struct{}]
	now    func() time.Time
}

func NewEngine(cfg Config, client platform.Client, store *jobstore.Store, ob *outbox.Outbox, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid review config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Config:      cfg,
		Logger:      logger.With("component", "review"),
		Client:      client,
		Store:       store,
		Outbox:      ob,
		Detector:    doubledip.NewDetector(client),
		Votes:       voting.NewAggregator(store, cfg.Options, logger),
		ReplyBodies: cachestore.NewMemReplyCache(10_000, cfg.MaxAge),
		Counters:    countstore.NewMemCountStore(),
		claims:      xsync.NewMapOf[string, struct{}](),
		now:         time.Now,
	}, nil
}

// Busy reports whether a pass or vote is currently running for the post.
func (eng *Engine) Busy(postID string) bool {
	_, ok := eng.claims.Load(postID)
	return ok
}

func (eng *Engine) tryClaim(postID string) (func(), bool) {
	if _, loaded := eng.claims.LoadOrStore(postID, struct{}{}); loaded {
		return nil, false
	}
	return func() { eng.claims.Delete(postID) }, true
}

// claim waits until no other pass holds the post, then holds it until the returned release func is called.
func (eng *Engine) claim(ctx context.Context, postID string) (func(), error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if release, ok := eng.tryClaim(postID); ok {
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// recoverPass turns a panic inside a pass into an error, the way an HTTP server survives a panicking handler.
func (eng *Engine) recoverPass(pass, postID string, err *error) {
	if r := recover(); r != nil {
		eng.Logger.Error("review pass panic", "pass", pass, "post", postID, "err", r)
		*err = fmt.Errorf("panic in %s: %v", pass, r)
	}
}

func observePass(pass string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	passesTotal.WithLabelValues(pass, outcome).Inc()
	passDuration.WithLabelValues(pass).Observe(time.Since(start).Seconds())
}

func (eng *Engine) voteEligible(ctx context.Context, post platform.Post) (bool, error) {
	excluded, err := eng.Config.NoVote.Excludes(ctx, post)
	if err != nil {
		return false, fmt.Errorf("checking vote exclusions: %w", err)
	}
	return !excluded, nil
}

func (eng *Engine) openReplyBody(options []string, tally []int) (string, error) {
	return voting.RenderTable(eng.Config.Replies.Standard+eng.Config.Replies.Voting, options, tally)
}

func (eng *Engine) closedReplyBody(options []string, tally []int) (string, error) {
	return voting.RenderTable(eng.Config.Replies.Standard+eng.Config.Replies.VotingClosed, options, tally)
}

// editReply sets the body of one of the bot's replies, skipping the edit when the body is already current.
func (eng *Engine) editReply(ctx context.Context, replyID, body string) error {
	current, ok, err := eng.ReplyBodies.Body(ctx, replyID)
	if err != nil {
		eng.Logger.Warn("reply cache read failed", "reply", replyID, "err", err)
		ok = false
	}
	if !ok {
		c, err := eng.Client.Comment(ctx, replyID)
		if err != nil {
			return fmt.Errorf("fetching reply %s: %w", replyID, err)
		}
		current = c.Body
	}
	if current == body {
		return nil
	}
	if err := eng.Client.EditComment(ctx, replyID, body); err != nil {
		return fmt.Errorf("editing reply %s: %w", replyID, err)
	}
	if err := eng.ReplyBodies.Remember(ctx, replyID, body); err != nil {
		eng.Logger.Warn("reply cache write failed", "reply", replyID, "err", err)
	}
	return nil
}

// ownComment finds an existing comment by the bot on the post with exactly the given body.
func (eng *Engine) ownComment(ctx context.Context, postID, body string) (*platform.Comment, error) {
	comments, err := eng.Client.Comments(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("listing comments on %s: %w", postID, err)
	}
	for _, c := range comments {
		if c.Author == eng.Client.Username() && c.Body == body {
			return &c, nil
		}
	}
	return nil, nil
}

// removeDoubleDip replies with the removal notice, removes the post, and notifies moderators. Once the daily removal
// quota is used up it only asks moderators to act.
func (eng *Engine) removeDoubleDip(ctx context.Context, post platform.Post, logger *slog.Logger) error {
	removed, err := eng.Counters.GetCount(ctx, removalCounter, eng.Config.Community, countstore.PeriodDay)
	if err != nil {
		logger.Warn("reading removal counter failed", "err", err)
		removed = 0
	}
	if eng.Config.RemovalQuotaDay > 0 && removed >= eng.Config.RemovalQuotaDay {
		logger.Warn("daily removal quota reached, asking moderators instead", "removedToday", removed)
		removalQuotaHits.Inc()
		body := fmt.Sprintf("\"[%s](%s)\" by u/%s looks like a double dipping post (Rule #4), but the bot has already "+
			"removed %d posts today. No action was taken. Manual intervention required.",
			post.Title, post.Permalink, post.Author, removed)
		return eng.Outbox.Enqueue(ctx, outbox.NewNotice("double-dip-review:"+post.ID, "Double dipping post needs review", body))
	}

	existing, err := eng.ownComment(ctx, post.ID, eng.Config.Replies.DoubleDip)
	if err != nil {
		return err
	}
	if existing == nil {
		reply, err := eng.Client.Reply(ctx, post.ID, eng.Config.Replies.DoubleDip)
		if err != nil {
			return fmt.Errorf("replying to double dip %s: %w", post.ID, err)
		}
		if err := eng.Client.Distinguish(ctx, reply.ID, true); err != nil {
			logger.Warn("failed to sticky removal reply", "reply", reply.ID, "err", err)
		}
	}
	if err := eng.Client.RemovePost(ctx, post.ID); err != nil {
		return fmt.Errorf("removing double dip %s: %w", post.ID, err)
	}
	removalsTotal.Inc()
	if err := eng.Counters.Increment(ctx, removalCounter, eng.Config.Community); err != nil {
		logger.Warn("incrementing removal counter failed", "err", err)
	}
	logger.Info("removed post for double dipping", "author", post.Author, "title", post.Title)

	if eng.Config.NotifyOnRemoval && post.Author != "" && post.Title != "" {
		body := fmt.Sprintf("Automatically removed post \"[%s](%s)\" by u/%s for rule #4 violation. ",
			post.Title, post.Permalink, post.Author)
		if err := eng.Outbox.Enqueue(ctx, outbox.NewNotice("double-dip:"+post.ID, "Removed double dipping post (Rule #4)", body)); err != nil {
			return err
		}
	}
	return nil
}

// writeupAnchor is the original poster's earliest top-level comment, taken as their write-up of the post. Ties on
// creation time go to the lower comment ID.
func writeupAnchor(comments []platform.Comment, author string) *platform.Comment {
	var anchor *platform.Comment
	for i := range comments {
		c := &comments[i]
		if !c.TopLevel || !(c.IsSubmitter || (author != "" && c.Author == author)) {
			continue
		}
		if anchor == nil || c.CreatedAt.Before(anchor.CreatedAt) || (c.CreatedAt.Equal(anchor.CreatedAt) && c.ID < anchor.ID) {
			anchor = c
		}
	}
	return anchor
}

func hasChildren(comments []platform.Comment, parentID string) bool {
	for _, c := range comments {
		if c.ParentID == parentID {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	return errors.Is(err, jobstore.ErrNotFound)
}
