package review

import (
	"context"
	"errors"

	"github.com/bww-mods/benchbot/reviewbot/jobstore"
	"github.com/bww-mods/benchbot/reviewbot/platform"
)

// RecoverySweep purges records past their maximum age, then runs every overdue second pass. Records are purged
// rather than retried forever; each purge is logged as an anomaly.
func (eng *Engine) RecoverySweep(ctx context.Context) error {
	purged, err := eng.Store.PurgeExpired(ctx, eng.now(), eng.Config.MaxAge)
	if err != nil {
		return err
	}
	for _, id := range purged {
		recordsPurged.Inc()
		eng.Logger.Error("purged expired post record, review never completed", "post", id, "maxAge", eng.Config.MaxAge)
	}

	ids, err := eng.Store.ListReviewDue(ctx, eng.now())
	if err != nil {
		return err
	}
	return eng.sweep(ctx, "second", ids, eng.SecondPass)
}

// VotingSweep closes voting on every post whose vote window has passed.
func (eng *Engine) VotingSweep(ctx context.Context) error {
	ids, err := eng.Store.ListVotingDue(ctx, eng.now())
	if err != nil {
		return err
	}
	return eng.sweep(ctx, "close", ids, eng.CloseVoting)
}

func (eng *Engine) sweep(ctx context.Context, pass string, ids []string, fn func(context.Context, string) error) error {
	if len(ids) > 0 {
		eng.Logger.Info("sweeping due posts", "pass", pass, "count", len(ids))
	}
	for i, id := range ids {
		if eng.Busy(id) {
			// the live unit owns it
			continue
		}
		if i > 0 && !sleepCtx(ctx, eng.Config.SweepThrottle) {
			return ctx.Err()
		}
		if err := fn(ctx, id); err != nil {
			eng.Logger.Warn("sweep pass failed, will retry", "pass", pass, "post", id, "err", err)
		}
	}
	return nil
}

// CatchUp restores records for posts that arrived while the bot was down. Any link post younger than the pass delay
// with no record gets one without a reply, so it still receives the second-pass double dip check.
func (eng *Engine) CatchUp(ctx context.Context, posts []platform.Post) error {
	cutoff := eng.now().Add(-eng.Config.PassDelay)
	restored := 0
	for _, post := range posts {
		if post.IsSelf || post.CreatedAt.Before(cutoff) {
			continue
		}
		_, err := eng.Store.Get(ctx, post.ID)
		if err == nil {
			continue
		} else if !isNotFound(err) {
			return err
		}
		rec := jobstore.NewPostRecord(
			post.ID,
			post.CreatedAt,
			post.CreatedAt.Add(eng.Config.PassDelay+eng.Config.ReviewBuffer),
			post.CreatedAt.Add(eng.Config.VoteWindow),
			eng.Config.Options.Labels(),
		)
		if err := eng.Store.Insert(ctx, rec); err != nil && !errors.Is(err, jobstore.ErrExists) {
			return err
		}
		restored++
		eng.Logger.Info("restored post missed during downtime", "post", post.ID, "title", post.Title)
	}
	if restored > 0 {
		eng.Logger.Info("downtime catch-up finished", "restored", restored)
	}
	return nil
}
