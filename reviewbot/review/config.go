package review

import (
	"fmt"
	"time"

	"github.com/bww-mods/benchbot/reviewbot/voting"
)

// Replies are the texts the bot posts. Voting and VotingClosed are appended to Standard.
type Replies struct {
	Standard     string
	DoubleDip    string
	Voting       string
	VotingClosed string
}

func DefaultReplies(community string) Replies {
	return Replies{
		Standard: fmt.Sprintf("Thank you for posting to r/%s! If you have not chosen a post flair then please add one "+
			"to your post. If you have submitted a finished build, please consider leaving a comment about it so that "+
			"others can learn.", community),
		DoubleDip: fmt.Sprintf("**Your submission to r/%[1]s has been removed**. As per [rule #4]"+
			"(https://www.reddit.com/r/%[1]s/about/rules/), images and links posted in this subreddit cannot also be "+
			"posted in other subreddits. \n\n This action has been performed automatically by a bot. If you believe "+
			"that your post has been removed in error then please [message the moderators]"+
			"(https://www.reddit.com/message/compose?to=%%2Fr%%2F%[1]s).", community),
		Voting: fmt.Sprintf("\n\n**Public vote: Do you think this post is a good fit for /r/%s?** If you do then "+
			"reply to **this comment** with `!yes`. If you don't then reply with `!no`. Voting determines if a post "+
			"will be removed so please vote if you feel strongly.\n", community),
		VotingClosed: "\n\n**Voting on this submission has closed**.",
	}
}

type Config struct {
	Community string

	// wait between the first and second pass
	PassDelay time.Duration
	// added to PassDelay so the sweep never races the live unit
	ReviewBuffer time.Duration
	// time from post creation until voting closes
	VoteWindow time.Duration
	// records older than this are purged as anomalies
	MaxAge time.Duration

	SweepInterval     time.Duration
	VoteSweepInterval time.Duration
	// pause between platform-heavy passes inside a sweep
	SweepThrottle time.Duration
	PollInterval  time.Duration

	CommandPrefix string
	Options       voting.Options
	Threshold     voting.Threshold

	NoReply voting.Exclusions
	NoVote  voting.Exclusions

	// enqueue a moderator notice for every automatic removal
	NotifyOnRemoval bool
	// automatic removals allowed per day before the engine only notifies; zero disables the limit
	RemovalQuotaDay int
	// review units allowed to sit waiting for their second pass at once
	MaxWaitingUnits int64

	Replies Replies
}

func DefaultConfig(community string) Config {
	return Config{
		Community:         community,
		PassDelay:         900 * time.Second,
		ReviewBuffer:      30 * time.Second,
		VoteWindow:        4 * time.Hour,
		MaxAge:            24 * time.Hour,
		SweepInterval:     5 * time.Minute,
		VoteSweepInterval: 5 * time.Minute,
		SweepThrottle:     5 * time.Second,
		PollInterval:      15 * time.Second,
		CommandPrefix:     "!",
		Options:           voting.DefaultOptions(),
		Threshold:         voting.DefaultThreshold(),
		NoReply: voting.Exclusions{
			TitleSubstrings: []string{"?"},
			FlairSet:        "no-reply-flairs",
		},
		NoVote: voting.Exclusions{
			TitleSubstrings: []string{"?"},
			FlairSet:        "no-vote-flairs",
		},
		NotifyOnRemoval: true,
		RemovalQuotaDay: 0,
		MaxWaitingUnits: 1000,
		Replies:         DefaultReplies(community),
	}
}

func (c *Config) Validate() error {
	if c.Community == "" {
		return fmt.Errorf("community name is required")
	}
	if c.PassDelay <= 0 || c.VoteWindow <= 0 || c.MaxAge <= 0 {
		return fmt.Errorf("pass delay, vote window and max age must be positive")
	}
	if c.VoteWindow <= c.PassDelay+c.ReviewBuffer {
		return fmt.Errorf("vote window (%s) must be longer than the pass delay plus buffer (%s)", c.VoteWindow, c.PassDelay+c.ReviewBuffer)
	}
	if c.MaxAge <= c.VoteWindow {
		return fmt.Errorf("max age (%s) must be longer than the vote window (%s)", c.MaxAge, c.VoteWindow)
	}
	if c.SweepInterval <= 0 || c.VoteSweepInterval <= 0 || c.PollInterval <= 0 {
		return fmt.Errorf("loop intervals must be positive")
	}
	if c.CommandPrefix == "" {
		return fmt.Errorf("command prefix is required")
	}
	if c.MaxWaitingUnits <= 0 {
		return fmt.Errorf("max waiting units must be positive")
	}
	return c.Options.Validate()
}
