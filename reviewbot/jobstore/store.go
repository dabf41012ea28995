package jobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists post records in a SQL database through gorm. Every multi-row change runs in a single transaction, so
// a crash never leaves a record with a tally that disagrees with its options or voters.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewStore migrates the schema and records the schema version.
func NewStore(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&PostRow{}, &VoteOptionRow{}, &VoterRow{}, &SchemaVersionRow{}); err != nil {
		return nil, fmt.Errorf("migrating job store: %w", err)
	}
	version := SchemaVersionRow{Version: SchemaVersion, AppliedAt: time.Now().UTC()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&version).Error; err != nil {
		return nil, fmt.Errorf("recording schema version: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "jobstore"),
	}, nil
}

func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func (s *Store) Insert(ctx context.Context, rec *PostRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	row := PostRow{
		PostID:        rec.PostID,
		ReviewState:   string(rec.ReviewState),
		ReviewDueAt:   dbTime(rec.ReviewDueAt),
		VotingDueAt:   dbTime(rec.VotingDueAt),
		CreatedAt:     dbTime(rec.CreatedAt),
		ReplyRef:      rec.ReplyRef,
		VotingEnabled: rec.VotingEnabled,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&PostRow{}).Where("post_id = ?", rec.PostID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrExists
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return writeChildren(tx, rec)
	})
	if err != nil {
		return fmt.Errorf("inserting post record %s: %w", rec.PostID, err)
	}
	s.logger.Debug("inserted post record", "post", rec.PostID, "votingEnabled", rec.VotingEnabled)
	return nil
}

// Update overwrites every field of an existing record, including options, tally and voters.
func (s *Store) Update(ctx context.Context, rec *PostRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&PostRow{}).Where("post_id = ?", rec.PostID).Updates(map[string]any{
			"review_state":   string(rec.ReviewState),
			"review_due_at":  dbTime(rec.ReviewDueAt),
			"voting_due_at":  dbTime(rec.VotingDueAt),
			"created_at":     dbTime(rec.CreatedAt),
			"reply_ref":      rec.ReplyRef,
			"voting_enabled": rec.VotingEnabled,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := deleteChildren(tx, []string{rec.PostID}); err != nil {
			return err
		}
		return writeChildren(tx, rec)
	})
	if err != nil {
		return fmt.Errorf("updating post record %s: %w", rec.PostID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, postID string) (*PostRecord, error) {
	var rec *PostRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := loadRecord(tx, postID)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading post record %s: %w", postID, err)
	}
	return rec, nil
}

// MarkSecondPassDone moves a pending record to the second-pass-done state and sets its voting flag in one update.
// A record that already left the pending state is left unchanged.
func (s *Store) MarkSecondPassDone(ctx context.Context, postID string, votingEnabled bool) error {
	res := s.db.WithContext(ctx).Model(&PostRow{}).
		Where("post_id = ? AND review_state = ?", postID, string(StatePending)).
		Updates(map[string]any{
			"review_state":   string(StateSecondPassDone),
			"voting_enabled": votingEnabled,
		})
	if res.Error != nil {
		return fmt.Errorf("completing second pass for %s: %w", postID, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.exists(ctx, postID)
	}
	return nil
}

func (s *Store) SetVotingEnabled(ctx context.Context, postID string, enabled bool) error {
	return s.updateColumn(ctx, postID, "voting_enabled", enabled)
}

func (s *Store) SetReplyRef(ctx context.Context, postID string, replyRef *string) error {
	return s.updateColumn(ctx, postID, "reply_ref", replyRef)
}

func (s *Store) updateColumn(ctx context.Context, postID, column string, value any) error {
	res := s.db.WithContext(ctx).Model(&PostRow{}).Where("post_id = ?", postID).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("updating %s for %s: %w", column, postID, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.exists(ctx, postID)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, postID string) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&PostRow{}).Where("post_id = ?", postID).Count(&n).Error; err != nil {
		return fmt.Errorf("checking post record %s: %w", postID, err)
	}
	if n == 0 {
		return fmt.Errorf("post record %s: %w", postID, ErrNotFound)
	}
	return nil
}

// CastVote records a single vote for the option with the given label. The tally increment and the voter insert
// commit together or not at all.
func (s *Store) CastVote(ctx context.Context, postID, voter, label string) (*PostRecord, error) {
	var rec *PostRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := loadRecord(tx, postID)
		if err != nil {
			return err
		}
		if !r.VotingEnabled {
			return ErrVotingClosed
		}
		if r.HasVoted(voter) {
			return ErrDuplicateVoter
		}
		pos := -1
		for i, opt := range r.VotingOptions {
			if opt == label {
				pos = i
				break
			}
		}
		if pos < 0 {
			return ErrUnknownOption
		}

		if err := tx.Create(&VoterRow{PostID: postID, Voter: voter}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateVoter
			}
			return err
		}
		res := tx.Model(&VoteOptionRow{}).
			Where("post_id = ? AND position = ?", postID, pos).
			UpdateColumn("votes", gorm.Expr("votes + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: missing option row %d", ErrInconsistent, pos)
		}
		r.VoteTally[pos]++
		r.Voters = append(r.Voters, voter)
		rec = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("casting vote on %s: %w", postID, err)
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, postID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteChildren(tx, []string{postID}); err != nil {
			return err
		}
		res := tx.Where("post_id = ?", postID).Delete(&PostRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting post record %s: %w", postID, err)
	}
	s.logger.Debug("deleted post record", "post", postID)
	return nil
}

// ListReviewDue returns pending records whose review time has passed, oldest first.
func (s *Store) ListReviewDue(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&PostRow{}).
		Where("review_state = ? AND review_due_at <= ?", string(StatePending), now.UTC()).
		Order("review_due_at ASC").
		Pluck("post_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing review-due records: %w", err)
	}
	return ids, nil
}

// ListVotingDue returns records with open voting whose vote window has passed, oldest first.
func (s *Store) ListVotingDue(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&PostRow{}).
		Where("review_state = ? AND voting_enabled = ? AND voting_due_at <= ?", string(StateSecondPassDone), true, now.UTC()).
		Order("voting_due_at ASC").
		Pluck("post_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing voting-due records: %w", err)
	}
	return ids, nil
}

func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&PostRow{}).Order("post_id ASC").Pluck("post_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("listing post records: %w", err)
	}
	return ids, nil
}

// PurgeExpired deletes every record at least maxAge old and returns their IDs.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time, maxAge time.Duration) ([]string, error) {
	cutoff := now.UTC().Add(-maxAge)
	var ids []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&PostRow{}).Where("created_at <= ?", cutoff).Order("created_at ASC").Pluck("post_id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := deleteChildren(tx, ids); err != nil {
			return err
		}
		return tx.Where("post_id IN ?", ids).Delete(&PostRow{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("purging expired records: %w", err)
	}
	return ids, nil
}

func loadRecord(tx *gorm.DB, postID string) (*PostRecord, error) {
	var rows []PostRow
	if err := tx.Where("post_id = ?", postID).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	row := rows[0]

	var opts []VoteOptionRow
	if err := tx.Where("post_id = ?", postID).Order("position ASC").Find(&opts).Error; err != nil {
		return nil, err
	}
	var voters []VoterRow
	if err := tx.Where("post_id = ?", postID).Order("voter ASC").Find(&voters).Error; err != nil {
		return nil, err
	}

	rec := &PostRecord{
		PostID:        row.PostID,
		ReviewState:   ReviewState(row.ReviewState),
		ReviewDueAt:   row.ReviewDueAt.UTC(),
		VotingDueAt:   row.VotingDueAt.UTC(),
		CreatedAt:     row.CreatedAt.UTC(),
		ReplyRef:      row.ReplyRef,
		VotingEnabled: row.VotingEnabled,
		VotingOptions: make([]string, 0, len(opts)),
		VoteTally:     make([]int, 0, len(opts)),
		Voters:        make([]string, 0, len(voters)),
	}
	for i, o := range opts {
		if o.Position != i {
			return nil, fmt.Errorf("%w: option positions of %s are not contiguous", ErrInconsistent, postID)
		}
		rec.VotingOptions = append(rec.VotingOptions, o.Label)
		rec.VoteTally = append(rec.VoteTally, o.Votes)
	}
	for _, v := range voters {
		rec.Voters = append(rec.Voters, v.Voter)
	}
	return rec, nil
}

func writeChildren(tx *gorm.DB, rec *PostRecord) error {
	if len(rec.VotingOptions) > 0 {
		opts := make([]VoteOptionRow, len(rec.VotingOptions))
		for i, label := range rec.VotingOptions {
			opts[i] = VoteOptionRow{PostID: rec.PostID, Position: i, Label: label, Votes: rec.VoteTally[i]}
		}
		if err := tx.Create(&opts).Error; err != nil {
			return err
		}
	}
	if len(rec.Voters) > 0 {
		voters := make([]VoterRow, len(rec.Voters))
		for i, v := range rec.Voters {
			voters[i] = VoterRow{PostID: rec.PostID, Voter: v}
		}
		if err := tx.Create(&voters).Error; err != nil {
			return err
		}
	}
	return nil
}

func deleteChildren(tx *gorm.DB, postIDs []string) error {
	if err := tx.Where("post_id IN ?", postIDs).Delete(&VoteOptionRow{}).Error; err != nil {
		return err
	}
	return tx.Where("post_id IN ?", postIDs).Delete(&VoterRow{}).Error
}
