package voting

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bww-mods/benchbot/reviewbot/jobstore"
	"github.com/bww-mods/benchbot/reviewbot/platform"
	"github.com/bww-mods/benchbot/reviewbot/setstore"
	"github.com/bww-mods/benchbot/util/cliutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("yes", ParseCommand("!yes", "!"))
	assert.Equal("yes", ParseCommand("  !YES \n", "!"))
	assert.Equal("yes", ParseCommand("! yes", "!"))
	assert.Equal("no", ParseCommand("!No", "!"))
	assert.Equal("yes please", ParseCommand("!yes please", "!"))
	assert.Equal("", ParseCommand("yes", "!"))
	assert.Equal("", ParseCommand("", "!"))

	opts := DefaultOptions()
	_, ok := opts.Lookup(ParseCommand("!yes please", "!"))
	assert.False(ok)
	label, ok := opts.Lookup(ParseCommand("!YES", "!"))
	assert.True(ok)
	assert.Equal("Beginner", label)
}

func TestOptions(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(DefaultOptions().Validate())
	assert.Equal([]string{"Beginner", "Not Beginner"}, DefaultOptions().Labels())

	opts, err := ParseOptions([]string{"keep=Fits", " Remove = Does Not Fit "})
	assert.NoError(err)
	assert.Equal(Options{{Command: "keep", Label: "Fits"}, {Command: "remove", Label: "Does Not Fit"}}, opts)

	_, err = ParseOptions([]string{"yes=Beginner"})
	assert.Error(err, "one option")
	_, err = ParseOptions([]string{"yes=Beginner", "yes=Other"})
	assert.Error(err, "duplicate command")
	_, err = ParseOptions([]string{"yes=A|B", "no=C"})
	assert.Error(err, "pipe in label")
	_, err = ParseOptions([]string{"yes", "no=C"})
	assert.Error(err, "missing label")
	assert.Error(Options{{"y es", "A"}, {"no", "B"}}.Validate(), "space in command")
}

func TestRenderTable(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	labels := []string{"Beginner", "Not Beginner"}
	body := "Thanks for posting!\n\nPlease vote.\n"

	out, err := RenderTable(body, labels, []int{3, 1})
	require.NoError(err)
	assert.Equal("Thanks for posting!\n\nPlease vote.\n\n[](#vote-table)\n\n| Beginner | Not Beginner |\n|:-:|:-:|\n| 3 | 1 |", out)

	again, err := RenderTable(out, labels, []int{3, 1})
	require.NoError(err)
	assert.Equal(out, again)

	updated, err := RenderTable(out, labels, []int{4, 1})
	require.NoError(err)
	assert.Equal(1, strings.Count(updated, TableMarker))
	assert.True(strings.HasSuffix(updated, "| 4 | 1 |"))

	assert.Equal("Thanks for posting!\n\nPlease vote.", StripTable(updated))
	assert.Equal("no table here", StripTable("no table here"))

	_, err = RenderTable(body, labels, []int{1})
	assert.Error(err)
}

func TestThreshold(t *testing.T) {
	assert := assert.New(t)
	th := DefaultThreshold()

	assert.Equal(-4, th.For(0))
	assert.Equal(-5, th.For(40))
	assert.Equal(-3, th.For(-200))

	out, err := th.Evaluate([]int{2, 7}, 40)
	require.NoError(t, err)
	assert.Equal(-5, out.Score)
	assert.Equal(-5, out.Threshold)
	assert.True(out.Flagged)

	out, err = th.Evaluate([]int{2, 5}, 40)
	require.NoError(t, err)
	assert.Equal(-3, out.Score)
	assert.False(out.Flagged)

	out, err = th.Evaluate([]int{0, 0}, 0)
	require.NoError(t, err)
	assert.False(out.Flagged)

	_, err = th.Evaluate([]int{1}, 0)
	assert.Error(err)
}

func TestExclusions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sets := setstore.NewMemSetStore()
	sets.Add("no-vote-flairs", "Funny Friday", "SAFETY - NSFW (GORE)")
	x := Exclusions{
		TitleSubstrings: []string{"?"},
		FlairSet:        "no-vote-flairs",
		Sets:            sets,
	}

	excluded, err := x.Excludes(ctx, platform.Post{Title: "How do I fix this?"})
	assert.NoError(err)
	assert.True(excluded)

	excluded, err = x.Excludes(ctx, platform.Post{Title: "My first box", Flair: "Funny Friday"})
	assert.NoError(err)
	assert.True(excluded)

	excluded, err = x.Excludes(ctx, platform.Post{Title: "My first box", Flair: "Finished Project"})
	assert.NoError(err)
	assert.False(excluded)

	excluded, err = x.Excludes(ctx, platform.Post{Title: "My first box"})
	assert.NoError(err)
	assert.False(excluded)

	excluded, err = Exclusions{}.Excludes(ctx, platform.Post{Title: "anything?", Flair: "Funny Friday"})
	assert.NoError(err)
	assert.False(excluded)
}

func TestAggregatorCast(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	db, err := cliutil.SetupDatabase(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", t.Name()), 1)
	require.NoError(err)
	store, err := jobstore.NewStore(db, nil)
	require.NoError(err)

	opts := DefaultOptions()
	created := time.Now()
	rec := jobstore.NewPostRecord("p1", created, created.Add(930*time.Second), created.Add(4*time.Hour), opts.Labels())
	rec.VotingEnabled = true
	require.NoError(store.Insert(ctx, rec))

	agg := NewAggregator(store, opts, nil)

	got, err := agg.Cast(ctx, "p1", "u1", ParseCommand("!yes", "!"))
	require.NoError(err)
	assert.Equal([]int{1, 0}, got.VoteTally)

	_, err = agg.Cast(ctx, "p1", "u1", ParseCommand("!no", "!"))
	assert.ErrorIs(err, jobstore.ErrDuplicateVoter)

	_, err = agg.Cast(ctx, "p1", "u2", ParseCommand("!maybe", "!"))
	assert.ErrorIs(err, jobstore.ErrUnknownOption)

	got, err = store.Get(ctx, "p1")
	require.NoError(err)
	assert.Equal([]int{1, 0}, got.VoteTally)
	assert.Equal([]string{"u1"}, got.Voters)
}
