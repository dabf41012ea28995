package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/bww-mods/benchbot/reviewbot/jobstore"
	"github.com/bww-mods/benchbot/reviewbot/outbox"

	"gorm.io/gorm"
)

func printStatus(ctx context.Context, db *gorm.DB, logger *slog.Logger, out io.Writer) error {
	store, err := jobstore.NewStore(db, logger)
	if err != nil {
		return err
	}
	ob, err := outbox.New(db, logger)
	if err != nil {
		return err
	}

	ids, err := store.ListIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		rec, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		reply := "-"
		if rec.ReplyRef != nil {
			reply = *rec.ReplyRef
		}
		fmt.Fprintf(out, "%s\t%s\treply=%s\tvoting=%t\ttally=%v\treview_due=%s\tvoting_due=%s\n",
			rec.PostID, rec.ReviewState, reply, rec.VotingEnabled, rec.VoteTally,
			rec.ReviewDueAt.Format("2006-01-02T15:04:05Z"), rec.VotingDueAt.Format("2006-01-02T15:04:05Z"))
	}

	pending, err := ob.Len(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "records=%d outbox=%d\n", len(ids), pending)
	return nil
}
