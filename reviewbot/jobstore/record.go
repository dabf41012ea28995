package jobstore

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound       = errors.New("post record not found")
	ErrExists         = errors.New("post record already exists")
	ErrInconsistent   = errors.New("post record is inconsistent")
	ErrDuplicateVoter = errors.New("voter has already voted on this post")
	ErrUnknownOption  = errors.New("unknown voting option")
	ErrVotingClosed   = errors.New("voting is not open for this post")
)

type ReviewState string

const (
	StatePending        ReviewState = "pending"
	StateSecondPassDone ReviewState = "second_pass_done"
)

func (s ReviewState) Valid() bool {
	return s == StatePending || s == StateSecondPassDone
}

// PostRecord is the durable review state of a single post. A post with no record is either not under review or has
// reached a terminal state.
type PostRecord struct {
	PostID      string
	ReviewState ReviewState
	ReviewDueAt time.Time
	VotingDueAt time.Time
	CreatedAt   time.Time

	// ID of the bot's reply comment; nil when the bot has not replied
	ReplyRef *string

	VotingOptions []string
	VoteTally     []int
	Voters        []string
	VotingEnabled bool
}

// NewPostRecord builds a pending record with a zero tally for the given options.
func NewPostRecord(postID string, createdAt, reviewDueAt, votingDueAt time.Time, options []string) *PostRecord {
	opts := make([]string, len(options))
	copy(opts, options)
	return &PostRecord{
		PostID:        postID,
		ReviewState:   StatePending,
		ReviewDueAt:   reviewDueAt,
		VotingDueAt:   votingDueAt,
		CreatedAt:     createdAt,
		VotingOptions: opts,
		VoteTally:     make([]int, len(opts)),
		Voters:        []string{},
	}
}

// Validate checks the structural invariants of a record.
func (r *PostRecord) Validate() error {
	if r.PostID == "" {
		return fmt.Errorf("%w: empty post ID", ErrInconsistent)
	}
	if !r.ReviewState.Valid() {
		return fmt.Errorf("%w: unknown review state %q", ErrInconsistent, r.ReviewState)
	}
	if len(r.VoteTally) != len(r.VotingOptions) {
		return fmt.Errorf("%w: %d options but %d tally entries", ErrInconsistent, len(r.VotingOptions), len(r.VoteTally))
	}
	seen := make(map[string]bool, len(r.VotingOptions))
	for _, opt := range r.VotingOptions {
		if opt == "" {
			return fmt.Errorf("%w: empty voting option label", ErrInconsistent)
		}
		if seen[opt] {
			return fmt.Errorf("%w: duplicate voting option %q", ErrInconsistent, opt)
		}
		seen[opt] = true
	}
	for _, n := range r.VoteTally {
		if n < 0 {
			return fmt.Errorf("%w: negative tally", ErrInconsistent)
		}
	}
	if r.TotalVotes() != len(r.Voters) {
		return fmt.Errorf("%w: %d votes counted for %d voters", ErrInconsistent, r.TotalVotes(), len(r.Voters))
	}
	voters := make(map[string]bool, len(r.Voters))
	for _, v := range r.Voters {
		if voters[v] {
			return fmt.Errorf("%w: voter %q recorded twice", ErrInconsistent, v)
		}
		voters[v] = true
	}
	return nil
}

// TotalVotes is the sum of the tally.
func (r *PostRecord) TotalVotes() int {
	total := 0
	for _, n := range r.VoteTally {
		total += n
	}
	return total
}

func (r *PostRecord) HasVoted(voter string) bool {
	for _, v := range r.Voters {
		if v == voter {
			return true
		}
	}
	return false
}
