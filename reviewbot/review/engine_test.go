package review

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bww-mods/benchbot/reviewbot/jobstore"
	"github.com/bww-mods/benchbot/reviewbot/outbox"
	"github.com/bww-mods/benchbot/reviewbot/platform"
	"github.com/bww-mods/benchbot/reviewbot/setstore"
	"github.com/bww-mods/benchbot/util/cliutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = t
}

type fixture struct {
	eng    *Engine
	client *platform.MockClient
	clock  *testClock
	sets   *setstore.MemSetStore
}

func testConfig() Config {
	cfg := DefaultConfig("woodworking")
	cfg.SweepThrottle = 0
	return cfg
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := cliutil.SetupDatabase(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", name), 1)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqldb, err := db.DB()
		if err == nil {
			sqldb.Close()
		}
	})
	store, err := jobstore.NewStore(db, nil)
	require.NoError(t, err)
	ob, err := outbox.New(db, nil)
	require.NoError(t, err)

	sets := setstore.NewMemSetStore()
	cfg.NoReply.Sets = sets
	cfg.NoVote.Sets = sets

	client := platform.NewMockClient("benchbot")
	eng, err := NewEngine(cfg, client, store, ob, nil)
	require.NoError(t, err)
	clock := &testClock{cur: t0.Add(10 * time.Second)}
	eng.now = clock.Now
	return &fixture{eng: eng, client: client, clock: clock, sets: sets}
}

func linkPost(id, author string) platform.Post {
	return platform.Post{
		ID:        id,
		Author:    author,
		Title:     "Walnut side table",
		URL:       "https://i.example.com/" + id + ".jpg",
		Community: "woodworking",
		Permalink: "https://www.reddit.com/r/woodworking/comments/" + id,
		CreatedAt: t0,
	}
}

func (f *fixture) pending(t *testing.T) []outbox.Message {
	t.Helper()
	msgs, err := f.eng.Outbox.Pending(context.Background(), 100)
	require.NoError(t, err)
	return msgs
}

func (f *fixture) vote(t *testing.T, postID, replyID, id, voter, body string) {
	t.Helper()
	c := platform.Comment{ID: id, PostID: postID, ParentID: replyID, Author: voter, Body: body, CreatedAt: f.clock.Now()}
	f.client.AddComment(c)
	require.NoError(t, f.eng.HandleComment(context.Background(), c))
}

func TestFirstPassGivesVotingReply(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t, testConfig())

	post := linkPost("p1", "alice")
	f.client.AddPost(post)

	rec, err := f.eng.FirstPass(ctx, post)
	require.NoError(err)
	require.NotNil(rec)
	require.NotNil(rec.ReplyRef)
	assert.True(rec.VotingEnabled)
	assert.True(t0.Add(930 * time.Second).Equal(rec.ReviewDueAt))
	assert.True(t0.Add(4 * time.Hour).Equal(rec.VotingDueAt))

	reply, err := f.client.Comment(ctx, *rec.ReplyRef)
	require.NoError(err)
	assert.True(reply.Stickied)
	assert.True(strings.HasPrefix(reply.Body, f.eng.Config.Replies.Standard+f.eng.Config.Replies.Voting))
	assert.True(strings.HasSuffix(reply.Body, "| Beginner | Not Beginner |\n|:-:|:-:|\n| 0 | 0 |"))

	stored, err := f.eng.Store.Get(ctx, "p1")
	require.NoError(err)
	assert.Equal(jobstore.StatePending, stored.ReviewState)
	assert.Equal(*rec.ReplyRef, *stored.ReplyRef)

	// a second sighting of the post changes nothing
	again, err := f.eng.FirstPass(ctx, post)
	require.NoError(err)
	assert.Nil(again)
	assert.Len(f.client.RepliesTo("p1"), 1)
}

func TestFirstPassExclusions(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t, testConfig())

	self := linkPost("self", "alice")
	self.IsSelf = true
	question := linkPost("question", "alice")
	question.Title = "What finish is this?"
	flaired := linkPost("flaired", "alice")
	flaired.Flair = "Meta"
	f.sets.Add("no-reply-flairs", "Meta")

	for _, post := range []platform.Post{self, question, flaired} {
		f.client.AddPost(post)
		rec, err := f.eng.FirstPass(ctx, post)
		require.NoError(err)
		assert.Nil(rec, post.ID)
		assert.Empty(f.client.RepliesTo(post.ID), post.ID)
	}
	ids, err := f.eng.Store.ListIDs(ctx)
	require.NoError(err)
	assert.Empty(ids)

	// no-vote flair still gets the standard reply, without voting
	help := linkPost("help", "alice")
	help.Flair = "Help"
	f.sets.Add("no-vote-flairs", "Help")
	f.client.AddPost(help)
	rec, err := f.eng.FirstPass(ctx, help)
	require.NoError(err)
	require.NotNil(rec)
	assert.False(rec.VotingEnabled)
	assert.Equal(f.eng.Config.Replies.Standard, f.client.CommentBody(*rec.ReplyRef))
}

func TestFirstPassRemovesDoubleDip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t, testConfig())

	post := linkPost("p1", "alice")
	f.client.AddPost(post)
	elsewhere := linkPost("p0", "alice")
	elsewhere.Community = "pics"
	elsewhere.CreatedAt = t0.Add(-time.Hour)
	f.client.AddPost(elsewhere)

	rec, err := f.eng.FirstPass(ctx, post)
	require.NoError(err)
	assert.Nil(rec)
	assert.True(f.client.RemovedPosts["p1"])

	replies := f.client.RepliesTo("p1")
	require.Len(replies, 1)
	assert.Equal(f.eng.Config.Replies.DoubleDip, replies[0].Body)
	assert.True(replies[0].Stickied)

	msgs := f.pending(t)
	require.Len(msgs, 1)
	assert.Equal("Removed double dipping post (Rule #4)", msgs[0].Subject)
	assert.Contains(msgs[0].Body, "u/alice")

	_, err = f.eng.Store.Get(ctx, "p1")
	assert.ErrorIs(err, jobstore.ErrNotFound)

	// repeating the removal neither replies nor notifies twice
	_, err = f.eng.FirstPass(ctx, post)
	require.NoError(err)
	assert.Len(f.client.RepliesTo("p1"), 1)
	assert.Len(f.pending(t), 1)
}

func TestRemovalQuota(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	cfg := testConfig()
	cfg.RemovalQuotaDay = 1
	f := newFixture(t, cfg)

	for _, author := range []string{"alice", "bob"} {
		post := linkPost("p-"+author, author)
		f.client.AddPost(post)
		other := linkPost("o-"+author, author)
		other.Community = "pics"
		other.Title = post.Title
		f.client.AddPost(other)
		_, err := f.eng.FirstPass(ctx, post)
		require.NoError(err)
	}

	assert.True(f.client.RemovedPosts["p-alice"])
	assert.False(f.client.RemovedPosts["p-bob"])
	assert.Empty(f.client.RepliesTo("p-bob"))

	msgs := f.pending(t)
	require.Len(msgs, 2)
	assert.Equal("Double dipping post needs review", msgs[1].Subject)
	assert.Contains(msgs[1].Body, "u/bob")
}

func TestRemovalUnlimitedByDefault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig())
	require.Zero(t, f.eng.Config.RemovalQuotaDay)

	authors := []string{"alice", "bob", "carol", "dave"}
	for _, author := range authors {
		post := linkPost("p-"+author, author)
		f.client.AddPost(post)
		other := linkPost("o-"+author, author)
		other.Community = "pics"
		f.client.AddPost(other)
		_, err := f.eng.FirstPass(ctx, post)
		require.NoError(t, err)
	}
	for _, author := range authors {
		assert.True(t, f.client.RemovedPosts["p-"+author], author)
	}
	for _, msg := range f.pending(t) {
		assert.NotEqual(t, "Double dipping post needs review", msg.Subject)
	}
}

func TestSecondPassKeepsVoting(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t, testConfig())

	post := linkPost("p1", "alice")
	f.client.AddPost(post)
	rec, err := f.eng.FirstPass(ctx, post)
	require.NoError(err)

	f.clock.Set(t0.Add(931 * time.Second))
	require.NoError(f.eng.SecondPass(ctx, "p1"))

	stored, err := f.eng.Store.Get(ctx, "p1")
	require.NoError(err)
	assert.Equal(jobstore.StateSecondPassDone, stored.ReviewState)
	assert.True(stored.VotingEnabled)
	// body already current, so no edit was made
	assert.Zero(f.client.Edits[*rec.ReplyRef])

	// running it again is a no-op
	require.NoError(f.eng.SecondPass(ctx, "p1"))
	assert.Zero(f.client.Edits[*rec.ReplyRef])
}

func TestSecondPassEndsVoting(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*fixture, string) {
		f := newFixture(t, testConfig())
		post := linkPost("p1", "alice")
		f.client.AddPost(post)
		rec, err := f.eng.FirstPass(ctx, post)
		require.NoError(t, err)

		// the poster re-flaired as a help request
		post.Flair = "Help"
		f.client.AddPost(post)
		f.sets.Add("no-vote-flairs", "Help")
		f.clock.Set(t0.Add(931 * time.Second))
		return f, *rec.ReplyRef
	}

	t.Run("write-up replaces reply", func(t *testing.T) {
		f, replyID := setup(t)
		f.client.AddComment(platform.Comment{ID: "w1", PostID: "p1", Author: "alice", IsSubmitter: true, Body: "Made from walnut", CreatedAt: t0.Add(time.Minute)})

		require.NoError(t, f.eng.SecondPass(ctx, "p1"))
		assert.True(t, f.client.Deleted[replyID])
		_, err := f.eng.Store.Get(ctx, "p1")
		assert.ErrorIs(t, err, jobstore.ErrNotFound)
	})

	t.Run("reply with answers is kept", func(t *testing.T) {
		f, replyID := setup(t)
		f.client.AddComment(platform.Comment{ID: "w1", PostID: "p1", Author: "alice", IsSubmitter: true, Body: "Made from walnut", CreatedAt: t0.Add(time.Minute)})
		f.client.AddComment(platform.Comment{ID: "c1", PostID: "p1", ParentID: replyID, Author: "carol", Body: "nice", CreatedAt: t0.Add(2 * time.Minute)})

		require.NoError(t, f.eng.SecondPass(ctx, "p1"))
		assert.False(t, f.client.Deleted[replyID])
		reply, err := f.client.Comment(ctx, replyID)
		require.NoError(t, err)
		assert.Equal(t, f.eng.Config.Replies.Standard, reply.Body)
		assert.False(t, reply.Stickied)
	})

	t.Run("no write-up", func(t *testing.T) {
		f, replyID := setup(t)
		require.NoError(t, f.eng.SecondPass(ctx, "p1"))
		assert.False(t, f.client.Deleted[replyID])
		assert.Equal(t, f.eng.Config.Replies.Standard, f.client.CommentBody(replyID))
		_, err := f.eng.Store.Get(ctx, "p1")
		assert.ErrorIs(t, err, jobstore.ErrNotFound)
	})
}

func TestSecondPassDoubleDip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t, testConfig())

	post := linkPost("p1", "alice")
	f.client.AddPost(post)
	_, err := f.eng.FirstPass(ctx, post)
	require.NoError(err)

	// cross-posted after the first pass
	later := linkPost("p2", "alice")
	later.Community = "pics"
	later.URL = post.URL
	later.CreatedAt = t0.Add(5 * time.Minute)
	f.client.AddPost(later)

	f.clock.Set(t0.Add(931 * time.Second))
	require.NoError(f.eng.SecondPass(ctx, "p1"))
	assert.True(f.client.RemovedPosts["p1"])
	_, err = f.eng.Store.Get(ctx, "p1")
	assert.ErrorIs(err, jobstore.ErrNotFound)
	assert.Len(f.pending(t), 1)
}

func TestSecondPassDeletedPost(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t, testConfig())

	post := linkPost("p1", "alice")
	f.client.AddPost(post)
	_, err := f.eng.FirstPass(ctx, post)
	require.NoError(err)

	delete(f.client.Posts, "p1")
	require.NoError(f.eng.SecondPass(ctx, "p1"))
	_, err = f.eng.Store.Get(ctx, "p1")
	assert.ErrorIs(t, err, jobstore.ErrNotFound)

	// missing records are a no-op
	require.NoError(f.eng.SecondPass(ctx, "p1"))
	require.NoError(f.eng.CloseVoting(ctx, "p1"))
}

func TestSecondPassRetriesOnPlatformError(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t, testConfig())

	post := linkPost("p1", "alice")
	f.client.AddPost(post)
	_, err := f.eng.FirstPass(ctx, post)
	require.NoError(err)

	f.client.SetFailure("AuthorPosts", fmt.Errorf("503"))
	require.Error(f.eng.SecondPass(ctx, "p1"))
	rec, err := f.eng.Store.Get(ctx, "p1")
	require.NoError(err)
	assert.Equal(t, jobstore.StatePending, rec.ReviewState)

	f.client.SetFailure("AuthorPosts", nil)
	require.NoError(f.eng.SecondPass(ctx, "p1"))
	rec, err = f.eng.Store.Get(ctx, "p1")
	require.NoError(err)
	assert.Equal(t, jobstore.StateSecondPassDone, rec.ReviewState)
}

func votingFixture(t *testing.T) (*fixture, string) {
	t.Helper()
	ctx := context.Background()
	f := newFixture(t, testConfig())
	post := linkPost("p1", "alice")
	f.client.AddPost(post)
	rec, err := f.eng.FirstPass(ctx, post)
	require.NoError(t, err)
	f.clock.Set(t0.Add(931 * time.Second))
	require.NoError(t, f.eng.SecondPass(ctx, "p1"))
	f.clock.Set(t0.Add(time.Hour))
	return f, *rec.ReplyRef
}

func TestHandleComment(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	f, replyID := votingFixture(t)

	f.vote(t, "p1", replyID, "v1", "bob", "!yes")
	assert.True(f.client.Removed["v1"])
	assert.True(strings.HasSuffix(f.client.CommentBody(replyID), "| 1 | 0 |"))

	// a second vote from the same account is removed uncounted
	f.vote(t, "p1", replyID, "v2", "bob", "!no")
	assert.True(f.client.Removed["v2"])

	// but a voter can still talk under the reply
	f.vote(t, "p1", replyID, "v2b", "bob", "thanks, nice table")
	assert.False(f.client.Removed["v2b"])

	// ordinary replies stay
	f.vote(t, "p1", replyID, "v3", "carol", "great build!")
	assert.False(f.client.Removed["v3"])
	f.vote(t, "p1", replyID, "v4", "carol", "!maybe")
	assert.False(f.client.Removed["v4"])

	// replies elsewhere in the thread are not votes
	f.vote(t, "p1", "someone-else", "v5", "dave", "!no")
	assert.False(f.client.Removed["v5"])
	top := platform.Comment{ID: "v6", PostID: "p1", Author: "erin", Body: "!no", TopLevel: true, ParentID: "p1"}
	require.NoError(f.eng.HandleComment(ctx, top))
	assert.False(f.client.Removed["v6"])

	// the bot's own comments are ignored
	f.vote(t, "p1", replyID, "v7", "benchbot", "!no")
	assert.False(f.client.Removed["v7"])

	rec, err := f.eng.Store.Get(ctx, "p1")
	require.NoError(err)
	assert.Equal([]int{1, 0}, rec.VoteTally)
	assert.Equal([]string{"bob"}, rec.Voters)

	// after the window, votes are left alone
	f.clock.Set(t0.Add(4 * time.Hour))
	f.vote(t, "p1", replyID, "v8", "frank", "!no")
	assert.False(f.client.Removed["v8"])
}

func TestCloseVoting(t *testing.T) {
	ctx := context.Background()

	t.Run("flagged", func(t *testing.T) {
		f, replyID := votingFixture(t)
		for i := 0; i < 5; i++ {
			f.vote(t, "p1", replyID, fmt.Sprintf("n%d", i), fmt.Sprintf("voter%d", i), "!no")
		}
		f.clock.Set(t0.Add(4*time.Hour + time.Second))
		require.NoError(t, f.eng.CloseVoting(ctx, "p1"))

		body := f.client.CommentBody(replyID)
		assert.Contains(t, body, f.eng.Config.Replies.VotingClosed)
		assert.NotContains(t, body, f.eng.Config.Replies.Voting)
		assert.True(t, strings.HasSuffix(body, "| 0 | 5 |"))
		assert.True(t, f.client.Locked[replyID])
		assert.False(t, f.client.RemovedPosts["p1"])

		msgs := f.pending(t)
		require.Len(t, msgs, 1)
		assert.Equal(t, "A post was voted to be removed", msgs[0].Subject)
		assert.Contains(t, msgs[0].Body, "Threshold for removal = -4")

		_, err := f.eng.Store.Get(ctx, "p1")
		assert.ErrorIs(t, err, jobstore.ErrNotFound)
	})

	t.Run("not flagged", func(t *testing.T) {
		f, replyID := votingFixture(t)
		f.vote(t, "p1", replyID, "y1", "bob", "!yes")
		f.vote(t, "p1", replyID, "n1", "carol", "!no")
		require.NoError(t, f.eng.CloseVoting(ctx, "p1"))

		assert.True(t, f.client.Locked[replyID])
		assert.Empty(t, f.pending(t))
		_, err := f.eng.Store.Get(ctx, "p1")
		assert.ErrorIs(t, err, jobstore.ErrNotFound)
	})

	t.Run("requires second pass", func(t *testing.T) {
		f := newFixture(t, testConfig())
		post := linkPost("p1", "alice")
		f.client.AddPost(post)
		rec, err := f.eng.FirstPass(ctx, post)
		require.NoError(t, err)

		require.NoError(t, f.eng.CloseVoting(ctx, "p1"))
		assert.False(t, f.client.Locked[*rec.ReplyRef])
		_, err = f.eng.Store.Get(ctx, "p1")
		assert.NoError(t, err)
	})
}

func TestPollInbox(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t, testConfig())

	f.client.AddMessage(platform.Message{ID: "m1", Author: "alice", Subject: "Removed?", Body: "Why was my post removed", CreatedAt: t0})
	f.client.AddMessage(platform.Message{ID: "m2", Author: "bob", Subject: "comment reply", Body: "!yes", WasComment: true, CreatedAt: t0})

	require.NoError(f.eng.PollInbox(ctx))
	assert.True(f.client.Read["m1"])
	assert.True(f.client.Read["m2"])

	msgs := f.pending(t)
	require.Len(msgs, 1)
	assert.Equal(outbox.ClassUser, msgs[0].Class)
	assert.Equal("alice", msgs[0].From)

	// an unread message is never relayed twice
	f.client.Read["m1"] = false
	require.NoError(f.eng.PollInbox(ctx))
	assert.Len(f.pending(t), 1)
}

func TestRecoverySweep(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t, testConfig())

	post := linkPost("p1", "alice")
	f.client.AddPost(post)
	_, err := f.eng.FirstPass(ctx, post)
	require.NoError(err)

	stale := jobstore.NewPostRecord("stale", t0.Add(-25*time.Hour), t0.Add(-25*time.Hour+930*time.Second), t0.Add(-21*time.Hour), []string{"Beginner", "Not Beginner"})
	require.NoError(f.eng.Store.Insert(ctx, stale))

	// not yet due
	require.NoError(f.eng.RecoverySweep(ctx))
	rec, err := f.eng.Store.Get(ctx, "p1")
	require.NoError(err)
	assert.Equal(jobstore.StatePending, rec.ReviewState)
	_, err = f.eng.Store.Get(ctx, "stale")
	assert.ErrorIs(err, jobstore.ErrNotFound)

	// a live unit holding the post keeps the sweep off it
	f.clock.Set(t0.Add(931 * time.Second))
	release, ok := f.eng.tryClaim("p1")
	require.True(ok)
	require.NoError(f.eng.RecoverySweep(ctx))
	rec, err = f.eng.Store.Get(ctx, "p1")
	require.NoError(err)
	assert.Equal(jobstore.StatePending, rec.ReviewState)
	release()

	require.NoError(f.eng.RecoverySweep(ctx))
	rec, err = f.eng.Store.Get(ctx, "p1")
	require.NoError(err)
	assert.Equal(jobstore.StateSecondPassDone, rec.ReviewState)

	// and the voting sweep closes it once the window passes
	require.NoError(f.eng.VotingSweep(ctx))
	assert.False(f.client.Locked[*rec.ReplyRef])
	f.clock.Set(t0.Add(4*time.Hour + time.Second))
	require.NoError(f.eng.VotingSweep(ctx))
	assert.True(f.client.Locked[*rec.ReplyRef])
	_, err = f.eng.Store.Get(ctx, "p1")
	assert.ErrorIs(err, jobstore.ErrNotFound)
}

func TestCatchUp(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t, testConfig())
	f.clock.Set(t0.Add(10 * time.Minute))

	young := linkPost("young", "alice")
	old := linkPost("old", "bob")
	old.CreatedAt = t0.Add(-time.Hour)
	self := linkPost("self", "carol")
	self.IsSelf = true
	for _, p := range []platform.Post{young, old, self} {
		f.client.AddPost(p)
	}

	require.NoError(f.eng.CatchUp(ctx, []platform.Post{young, old, self}))
	ids, err := f.eng.Store.ListIDs(ctx)
	require.NoError(err)
	assert.Equal([]string{"young"}, ids)

	rec, err := f.eng.Store.Get(ctx, "young")
	require.NoError(err)
	assert.Nil(rec.ReplyRef)
	assert.False(rec.VotingEnabled)
	assert.Empty(f.client.RepliesTo("young"))

	// the second pass still runs the double dip check, then finishes
	f.clock.Set(t0.Add(931 * time.Second))
	require.NoError(f.eng.RecoverySweep(ctx))
	_, err = f.eng.Store.Get(ctx, "young")
	assert.ErrorIs(err, jobstore.ErrNotFound)
	assert.Empty(f.client.RepliesTo("young"))
}

func TestClaimWaitsForHolder(t *testing.T) {
	f := newFixture(t, testConfig())

	release, ok := f.eng.tryClaim("p1")
	require.True(t, ok)
	assert.True(t, f.eng.Busy("p1"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := f.eng.SecondPass(ctx, "p1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.False(t, f.eng.Busy("p1"))
	assert.NoError(t, f.eng.SecondPass(context.Background(), "p1"))
}

func TestPoolRunsFullLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timed lifecycle test in short mode")
	}
	assert := assert.New(t)
	require := require.New(t)

	cfg := testConfig()
	cfg.PassDelay = 200 * time.Millisecond
	cfg.ReviewBuffer = 0
	cfg.VoteWindow = 600 * time.Millisecond
	cfg.MaxAge = time.Hour
	f := newFixture(t, cfg)
	f.eng.now = time.Now

	post := linkPost("p1", "alice")
	post.CreatedAt = time.Now()
	f.client.AddPost(post)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool := NewPool(f.eng, 10)
	pool.Submit(ctx, post)
	pool.Wait()

	replies := f.client.RepliesTo("p1")
	require.Len(replies, 1)
	assert.True(f.client.Locked[replies[0].ID])
	assert.Contains(replies[0].Body, cfg.Replies.VotingClosed)
	_, err := f.eng.Store.Get(ctx, "p1")
	assert.ErrorIs(err, jobstore.ErrNotFound)
}

func TestPoolSecondPassAtPassDelay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timed lifecycle test in short mode")
	}
	cfg := testConfig()
	cfg.PassDelay = 200 * time.Millisecond
	cfg.ReviewBuffer = time.Minute
	cfg.VoteWindow = time.Hour
	f := newFixture(t, cfg)
	f.eng.now = time.Now

	post := linkPost("p1", "alice")
	post.CreatedAt = time.Now()
	f.client.AddPost(post)

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(f.eng, 10)
	pool.Submit(ctx, post)

	// the second pass runs long before the recovery sweep would consider the post due
	require.Eventually(t, func() bool {
		rec, err := f.eng.Store.Get(context.Background(), "p1")
		return err == nil && rec.ReviewState == jobstore.StateSecondPassDone
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	pool.Wait()
}

func TestPoolLeavesOverflowToSweep(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timed lifecycle test in short mode")
	}
	cfg := testConfig()
	cfg.PassDelay = 300 * time.Millisecond
	cfg.ReviewBuffer = 0
	cfg.VoteWindow = time.Hour
	f := newFixture(t, cfg)
	f.eng.now = time.Now

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool := NewPool(f.eng, 1)
	for _, id := range []string{"p1", "p2"} {
		post := linkPost(id, "alice-"+id)
		post.CreatedAt = time.Now()
		f.client.AddPost(post)
		pool.Submit(ctx, post)
	}

	// one unit waits for its second pass, the other stops after the first
	require.Eventually(t, func() bool {
		ids, err := f.eng.Store.ListIDs(ctx)
		if err != nil || len(ids) != 2 {
			return false
		}
		pending := 0
		for _, id := range ids {
			rec, err := f.eng.Store.Get(ctx, id)
			if err == nil && rec.ReviewState == jobstore.StatePending {
				pending++
			}
		}
		return pending == 1
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	pool.Wait()
}
