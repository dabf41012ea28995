package voting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bww-mods/benchbot/reviewbot/jobstore"
)

// Aggregator counts votes into the job store.
type Aggregator struct {
	Store   *jobstore.Store
	Options Options
	Logger  *slog.Logger
}

func NewAggregator(store *jobstore.Store, options Options, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		Store:   store,
		Options: options,
		Logger:  logger.With("component", "voting"),
	}
}

// Cast records a vote from voter using an already-parsed command. Duplicate voters are rejected with
// jobstore.ErrDuplicateVoter and unrecognized commands with jobstore.ErrUnknownOption; neither changes the record.
func (a *Aggregator) Cast(ctx context.Context, postID, voter, command string) (*jobstore.PostRecord, error) {
	// an unknown command maps to no label, which the store rejects after its duplicate-voter check
	label, _ := a.Options.Lookup(command)
	rec, err := a.Store.CastVote(ctx, postID, voter, label)
	if err != nil {
		return nil, err
	}
	a.Logger.Info("vote counted", "post", postID, "voter", voter, "option", label, "tally", fmt.Sprint(rec.VoteTally))
	return rec, nil
}
