package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bww-mods/benchbot/reviewbot/jobstore"
	"github.com/bww-mods/benchbot/reviewbot/outbox"
	"github.com/bww-mods/benchbot/reviewbot/platform"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FirstPass reviews a newly seen post. It returns the created record, or nil if the post needs no further review
// (excluded, removed as a double dip, or already under review).
func (eng *Engine) FirstPass(ctx context.Context, post platform.Post) (rec *jobstore.PostRecord, err error) {
	ctx, span := tracer.Start(ctx, "FirstPass", trace.WithAttributes(attribute.String("post", post.ID)))
	defer span.End()
	start := time.Now()
	defer func() { observePass("first", start, err) }()
	defer eng.recoverPass("first", post.ID, &err)

	release, err := eng.claim(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	logger := eng.Logger.With("post", post.ID, "pass", "first")
	if post.IsSelf {
		logger.Debug("skipping text post")
		return nil, nil
	}

	// a post seen again after a restart already has its record
	if _, err := eng.Store.Get(ctx, post.ID); err == nil {
		logger.Debug("post already under review")
		return nil, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	excluded, err := eng.Config.NoReply.Excludes(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("checking reply exclusions: %w", err)
	}
	if excluded {
		logger.Info("no reply for excluded post", "title", post.Title, "flair", post.Flair)
		return nil, nil
	}

	dipped, err := eng.Detector.Check(ctx, post)
	if err != nil {
		return nil, err
	}
	if dipped {
		return nil, eng.removeDoubleDip(ctx, post, logger)
	}

	voteable, err := eng.voteEligible(ctx, post)
	if err != nil {
		return nil, err
	}
	rec = jobstore.NewPostRecord(
		post.ID,
		post.CreatedAt,
		post.CreatedAt.Add(eng.Config.PassDelay+eng.Config.ReviewBuffer),
		post.CreatedAt.Add(eng.Config.VoteWindow),
		eng.Config.Options.Labels(),
	)
	rec.VotingEnabled = voteable

	body := eng.Config.Replies.Standard
	if voteable {
		body, err = eng.openReplyBody(rec.VotingOptions, rec.VoteTally)
		if err != nil {
			return nil, err
		}
	}
	reply, err := eng.Client.Reply(ctx, post.ID, body)
	if err != nil {
		return nil, fmt.Errorf("replying to %s: %w", post.ID, err)
	}
	if err := eng.ReplyBodies.Remember(ctx, reply.ID, body); err != nil {
		logger.Warn("reply cache write failed", "reply", reply.ID, "err", err)
	}
	if err := eng.Client.Distinguish(ctx, reply.ID, true); err != nil {
		// the record still needs to be written so the later passes run
		logger.Warn("failed to sticky reply", "reply", reply.ID, "err", err)
	}
	rec.ReplyRef = &reply.ID

	if err := eng.Store.Insert(ctx, rec); err != nil {
		if errors.Is(err, jobstore.ErrExists) {
			return nil, nil
		}
		return nil, err
	}
	logger.Info("gave standard reply", "title", post.Title, "author", post.Author, "voteable", voteable)
	return rec, nil
}

// SecondPass re-checks a pending post for double dipping and settles its voting eligibility. It is a no-op for posts
// with no record or whose second pass already completed.
func (eng *Engine) SecondPass(ctx context.Context, postID string) (err error) {
	ctx, span := tracer.Start(ctx, "SecondPass", trace.WithAttributes(attribute.String("post", postID)))
	defer span.End()
	start := time.Now()
	defer func() { observePass("second", start, err) }()
	defer eng.recoverPass("second", postID, &err)

	release, err := eng.claim(ctx, postID)
	if err != nil {
		return err
	}
	defer release()

	logger := eng.Logger.With("post", postID, "pass", "second")
	rec, err := eng.Store.Get(ctx, postID)
	if isNotFound(err) {
		return nil
	} else if err != nil {
		return err
	}
	if rec.ReviewState != jobstore.StatePending {
		return nil
	}

	post, err := eng.Client.Post(ctx, postID)
	if errors.Is(err, platform.ErrNotFound) {
		logger.Info("post no longer exists, dropping record")
		return eng.deleteRecord(ctx, postID)
	} else if err != nil {
		return fmt.Errorf("fetching post: %w", err)
	}

	dipped, err := eng.Detector.Check(ctx, *post)
	if err != nil {
		return err
	}
	if dipped {
		if err := eng.removeDoubleDip(ctx, *post, logger); err != nil {
			return err
		}
		return eng.deleteRecord(ctx, postID)
	}

	voteable, err := eng.voteEligible(ctx, *post)
	if err != nil {
		return err
	}

	if rec.ReplyRef == nil {
		logger.Info("finished review of post without reply")
		return eng.deleteRecord(ctx, postID)
	}
	replyID := *rec.ReplyRef

	if voteable {
		body, err := eng.openReplyBody(rec.VotingOptions, rec.VoteTally)
		if err != nil {
			return err
		}
		if err := eng.editReply(ctx, replyID, body); err != nil {
			return err
		}
		if err := eng.Store.MarkSecondPassDone(ctx, postID, true); err != nil {
			return err
		}
		logger.Info("voting open until window closes", "votingDueAt", rec.VotingDueAt)
		return nil
	}

	// not voteable: close the voting UI and step the reply out of the way
	if err := eng.editReply(ctx, replyID, eng.Config.Replies.Standard); err != nil {
		return err
	}
	if err := eng.Client.Distinguish(ctx, replyID, false); err != nil {
		return fmt.Errorf("un-stickying reply %s: %w", replyID, err)
	}

	comments, err := eng.Client.Comments(ctx, postID)
	if err != nil {
		return fmt.Errorf("listing comments: %w", err)
	}
	if anchor := writeupAnchor(comments, post.Author); anchor != nil && !hasChildren(comments, replyID) {
		if err := eng.Client.DeleteComment(ctx, replyID); err != nil {
			return fmt.Errorf("deleting reply %s: %w", replyID, err)
		}
		if err := eng.ReplyBodies.Forget(ctx, replyID); err != nil {
			logger.Warn("reply cache purge failed", "reply", replyID, "err", err)
		}
		logger.Info("deleted standard reply, poster left a write-up", "writeup", anchor.ID)
	}
	logger.Info("finished review", "voteable", false)
	return eng.deleteRecord(ctx, postID)
}

// CloseVoting ends the vote on a post: the reply is frozen with the final tally and locked, and moderators are
// notified when the outcome is at or below the removal threshold. The engine never removes a post on a vote.
func (eng *Engine) CloseVoting(ctx context.Context, postID string) (err error) {
	ctx, span := tracer.Start(ctx, "CloseVoting", trace.WithAttributes(attribute.String("post", postID)))
	defer span.End()
	start := time.Now()
	defer func() { observePass("close", start, err) }()
	defer eng.recoverPass("close", postID, &err)

	release, err := eng.claim(ctx, postID)
	if err != nil {
		return err
	}
	defer release()

	logger := eng.Logger.With("post", postID, "pass", "close")
	rec, err := eng.Store.Get(ctx, postID)
	if isNotFound(err) {
		return nil
	} else if err != nil {
		return err
	}
	if !rec.VotingEnabled || rec.ReviewState != jobstore.StateSecondPassDone {
		return nil
	}

	post, err := eng.Client.Post(ctx, postID)
	if errors.Is(err, platform.ErrNotFound) {
		logger.Info("post no longer exists, dropping record")
		return eng.deleteRecord(ctx, postID)
	} else if err != nil {
		return fmt.Errorf("fetching post: %w", err)
	}

	if rec.ReplyRef != nil {
		body, err := eng.closedReplyBody(rec.VotingOptions, rec.VoteTally)
		if err != nil {
			return err
		}
		if err := eng.editReply(ctx, *rec.ReplyRef, body); err != nil {
			return err
		}
		if err := eng.Client.Lock(ctx, *rec.ReplyRef); err != nil {
			return fmt.Errorf("locking reply: %w", err)
		}
	}

	outcome, err := eng.Config.Threshold.Evaluate(rec.VoteTally, post.Score)
	if err != nil {
		return fmt.Errorf("%w: %w", jobstore.ErrInconsistent, err)
	}
	logger.Info("voting closed", "tally", fmt.Sprint(rec.VoteTally), "score", outcome.Score, "threshold", outcome.Threshold, "flagged", outcome.Flagged)
	if outcome.Flagged {
		votesFlagged.Inc()
		if err := eng.Outbox.Enqueue(ctx, eng.voteFlagNotice(post, rec, outcome.Threshold)); err != nil {
			return err
		}
	}
	return eng.deleteRecord(ctx, postID)
}

func (eng *Engine) voteFlagNotice(post *platform.Post, rec *jobstore.PostRecord, threshold int) outbox.Message {
	results := ""
	for i, label := range rec.VotingOptions {
		if i > 0 {
			results += ", "
		}
		results += fmt.Sprintf("%s: %d", label, rec.VoteTally[i])
	}
	body := fmt.Sprintf("\"[%s](%s)\" by u/%s has been flagged for removal by community voting. \n\n"+
		"No action was taken. Manual intervention required. \n\n"+
		"Results = %s \n\n"+
		"Threshold for removal = %d",
		post.Title, post.Permalink, post.Author, results, threshold)
	return outbox.NewNotice("vote-flag:"+post.ID, "A post was voted to be removed", body)
}

func (eng *Engine) deleteRecord(ctx context.Context, postID string) error {
	if err := eng.Store.Delete(ctx, postID); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}
