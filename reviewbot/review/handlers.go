package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/bww-mods/benchbot/reviewbot/jobstore"
	"github.com/bww-mods/benchbot/reviewbot/outbox"
	"github.com/bww-mods/benchbot/reviewbot/platform"
	"github.com/bww-mods/benchbot/reviewbot/voting"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HandleComment treats a direct reply to the bot's reply, on a post with open voting, as a vote. Counted votes and
// repeat votes are removed to keep the thread clean; anything that is not a recognized command is left alone.
func (eng *Engine) HandleComment(ctx context.Context, c platform.Comment) (err error) {
	if c.TopLevel || c.Author == "" || c.Author == eng.Client.Username() {
		return nil
	}
	rec, err := eng.Store.Get(ctx, c.PostID)
	if isNotFound(err) {
		return nil
	} else if err != nil {
		return err
	}
	if rec.ReplyRef == nil || *rec.ReplyRef != c.ParentID {
		return nil
	}
	if !rec.VotingEnabled || !eng.now().Before(rec.VotingDueAt) {
		return nil
	}

	ctx, span := tracer.Start(ctx, "HandleVote", trace.WithAttributes(attribute.String("post", c.PostID)))
	defer span.End()
	defer eng.recoverPass("vote", c.PostID, &err)

	release, err := eng.claim(ctx, c.PostID)
	if err != nil {
		return err
	}
	defer release()

	logger := eng.Logger.With("post", c.PostID, "comment", c.ID, "voter", c.Author)
	command := voting.ParseCommand(c.Body, eng.Config.CommandPrefix)
	if command == "" {
		// conversation under the reply, including from people who already voted
		votesTotal.WithLabelValues("unrecognized").Inc()
		logger.Debug("reply is not a vote command")
		return nil
	}
	rec, err = eng.Votes.Cast(ctx, c.PostID, c.Author, command)
	switch {
	case errors.Is(err, jobstore.ErrDuplicateVoter):
		votesTotal.WithLabelValues("duplicate").Inc()
		logger.Info("removing repeat vote")
		if err := eng.Client.RemoveComment(ctx, c.ID); err != nil {
			return fmt.Errorf("removing repeat vote: %w", err)
		}
		return nil
	case errors.Is(err, jobstore.ErrUnknownOption):
		votesTotal.WithLabelValues("unrecognized").Inc()
		logger.Debug("reply is not a vote command")
		return nil
	case errors.Is(err, jobstore.ErrNotFound), errors.Is(err, jobstore.ErrVotingClosed):
		// voting closed between the lookup and the claim
		return nil
	case err != nil:
		return err
	}
	votesTotal.WithLabelValues("counted").Inc()

	body, err := eng.openReplyBody(rec.VotingOptions, rec.VoteTally)
	if err != nil {
		return err
	}
	if err := eng.editReply(ctx, *rec.ReplyRef, body); err != nil {
		return err
	}
	if err := eng.Client.RemoveComment(ctx, c.ID); err != nil {
		return fmt.Errorf("removing counted vote: %w", err)
	}
	return nil
}

// HandleMessage relays a private message sent to the bot to the moderators. Comment replies that land in the inbox
// are ignored.
func (eng *Engine) HandleMessage(ctx context.Context, m platform.Message) error {
	if m.WasComment {
		return nil
	}
	if m.Author == "" {
		eng.Logger.Debug("ignoring message without sender", "message", m.ID)
		return nil
	}
	return eng.Outbox.Enqueue(ctx, outbox.NewUserMessage(m.ID, m.Author, m.Subject, m.Body))
}
