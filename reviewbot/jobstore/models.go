package jobstore

import (
	"time"
)

// SchemaVersion of the normalized table layout. Version 1 kept options, tally and voters as separator-joined text
// columns on the post row.
const SchemaVersion = 2

type PostRow struct {
	PostID        string    `gorm:"primaryKey"`
	ReviewState   string    `gorm:"index;not null"`
	ReviewDueAt   time.Time `gorm:"index;not null"`
	VotingDueAt   time.Time `gorm:"index;not null"`
	CreatedAt     time.Time `gorm:"index;not null"`
	ReplyRef      *string
	VotingEnabled bool `gorm:"not null;default:false"`
}

func (PostRow) TableName() string {
	return "post_records"
}

type VoteOptionRow struct {
	PostID   string `gorm:"primaryKey"`
	Position int    `gorm:"primaryKey;autoIncrement:false"`
	Label    string `gorm:"not null"`
	Votes    int    `gorm:"not null;default:0"`
}

func (VoteOptionRow) TableName() string {
	return "post_vote_options"
}

type VoterRow struct {
	PostID string `gorm:"primaryKey"`
	Voter  string `gorm:"primaryKey"`
}

func (VoterRow) TableName() string {
	return "post_voters"
}

type SchemaVersionRow struct {
	Version   int `gorm:"primaryKey;autoIncrement:false"`
	AppliedAt time.Time
}

func (SchemaVersionRow) TableName() string {
	return "schema_versions"
}
