package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bww-mods/benchbot/reviewbot/platform/reddit"
	"github.com/bww-mods/benchbot/reviewbot/review"
	"github.com/bww-mods/benchbot/reviewbot/voting"
	"github.com/bww-mods/benchbot/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "reviewbot",
		Usage:   "subreddit post review daemon (standard replies, double dip removal, community voting)",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"REVIEWBOT_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: text or json",
			Value:   "text",
			EnvVars: []string{"REVIEWBOT_LOG_FMT"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   20,
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		statusCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context) (*slog.Logger, error) {
	return cliutil.SetupSlog(cliutil.LogOptions{
		LogLevel:  cctx.String("log-level"),
		LogFormat: cctx.String("log-format"),
	})
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the review daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "subreddit",
			Usage:    "community to review, without the r/ prefix",
			Required: true,
			EnvVars:  []string{"REVIEWBOT_SUBREDDIT"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/reviewbot/reviewbot.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for shared counters and reply cache; in-process stores when empty",
			EnvVars: []string{"REVIEWBOT_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "reddit-client-id",
			EnvVars: []string{"REDDIT_CLIENT_ID"},
		},
		&cli.StringFlag{
			Name:    "reddit-client-secret",
			EnvVars: []string{"REDDIT_CLIENT_SECRET"},
		},
		&cli.StringFlag{
			Name:    "reddit-username",
			EnvVars: []string{"REDDIT_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "reddit-password",
			EnvVars: []string{"REDDIT_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "reddit-host",
			Value:   reddit.DefaultHost,
			EnvVars: []string{"REDDIT_HOST"},
		},
		&cli.StringFlag{
			Name:    "sets-json-path",
			Usage:   "file path of JSON file containing static flair exclusion sets",
			EnvVars: []string{"REVIEWBOT_SETS_JSON_PATH"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "Slack webhook URL receiving a copy of moderator notices",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for health checks",
			Value:   ":3990",
			EnvVars: []string{"REVIEWBOT_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3991",
			EnvVars: []string{"REVIEWBOT_METRICS_LISTEN"},
		},
		&cli.DurationFlag{
			Name:    "pass-delay",
			Usage:   "wait between the first and second review pass",
			Value:   review.DefaultConfig("").PassDelay,
			EnvVars: []string{"REVIEWBOT_PASS_DELAY"},
		},
		&cli.DurationFlag{
			Name:    "review-buffer",
			Usage:   "extra delay before the recovery sweep considers a second pass overdue",
			Value:   review.DefaultConfig("").ReviewBuffer,
			EnvVars: []string{"REVIEWBOT_REVIEW_BUFFER"},
		},
		&cli.DurationFlag{
			Name:    "vote-window",
			Usage:   "time from post creation until voting closes",
			Value:   review.DefaultConfig("").VoteWindow,
			EnvVars: []string{"REVIEWBOT_VOTE_WINDOW"},
		},
		&cli.DurationFlag{
			Name:    "max-age",
			Usage:   "records older than this are purged",
			Value:   review.DefaultConfig("").MaxAge,
			EnvVars: []string{"REVIEWBOT_MAX_AGE"},
		},
		&cli.DurationFlag{
			Name:    "sweep-interval",
			Value:   review.DefaultConfig("").SweepInterval,
			EnvVars: []string{"REVIEWBOT_SWEEP_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "vote-sweep-interval",
			Value:   review.DefaultConfig("").VoteSweepInterval,
			EnvVars: []string{"REVIEWBOT_VOTE_SWEEP_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "sweep-throttle",
			Usage:   "pause between passes inside a sweep",
			Value:   review.DefaultConfig("").SweepThrottle,
			EnvVars: []string{"REVIEWBOT_SWEEP_THROTTLE"},
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "interval for polling new posts, comments and the inbox",
			Value:   review.DefaultConfig("").PollInterval,
			EnvVars: []string{"REVIEWBOT_POLL_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "relay-interval",
			Usage:   "interval for delivering queued moderator notices",
			Value:   defaultRelayInterval,
			EnvVars: []string{"REVIEWBOT_RELAY_INTERVAL"},
		},
		&cli.StringSliceFlag{
			Name:    "vote-option",
			Usage:   "vote option as command=Label, in tally order; keep option first, remove option second",
			EnvVars: []string{"REVIEWBOT_VOTE_OPTIONS"},
		},
		&cli.IntFlag{
			Name:    "removal-quota",
			Usage:   "cap on automatic double-dip removals per day; past it the bot only notifies moderators (0, the default, removes every double dip)",
			Value:   review.DefaultConfig("").RemovalQuotaDay,
			EnvVars: []string{"REVIEWBOT_REMOVAL_QUOTA"},
		},
		&cli.BoolFlag{
			Name:    "notify-on-removal",
			Value:   true,
			EnvVars: []string{"REVIEWBOT_NOTIFY_ON_REMOVAL"},
		},
		&cli.Int64Flag{
			Name:    "max-waiting-units",
			Value:   review.DefaultConfig("").MaxWaitingUnits,
			EnvVars: []string{"REVIEWBOT_MAX_WAITING_UNITS"},
		},
		&cli.IntFlag{
			Name:    "reddit-rate-limit",
			Usage:   "max Reddit API requests per minute",
			Value:   100,
			EnvVars: []string{"REVIEWBOT_REDDIT_RATE_LIMIT"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}
		configOTEL("reviewbot")

		cfg, err := configFromCLI(cctx)
		if err != nil {
			return err
		}

		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return err
		}

		srv, err := NewServer(db, Config{
			Review: cfg,
			Reddit: reddit.Credentials{
				ClientID:     cctx.String("reddit-client-id"),
				ClientSecret: cctx.String("reddit-client-secret"),
				Username:     cctx.String("reddit-username"),
				Password:     cctx.String("reddit-password"),
			},
			RedditHost:      cctx.String("reddit-host"),
			RedditRateLimit: cctx.Int("reddit-rate-limit"),
			RedisURL:        cctx.String("redis-url"),
			SetsFileJSON:    cctx.String("sets-json-path"),
			SlackWebhookURL: cctx.String("slack-webhook-url"),
			RelayInterval:   cctx.Duration("relay-interval"),
			Bind:            cctx.String("bind"),
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run review service: %w", err)
		}
		return nil
	},
}

func configFromCLI(cctx *cli.Context) (review.Config, error) {
	cfg := review.DefaultConfig(cctx.String("subreddit"))
	cfg.PassDelay = cctx.Duration("pass-delay")
	cfg.ReviewBuffer = cctx.Duration("review-buffer")
	cfg.VoteWindow = cctx.Duration("vote-window")
	cfg.MaxAge = cctx.Duration("max-age")
	cfg.SweepInterval = cctx.Duration("sweep-interval")
	cfg.VoteSweepInterval = cctx.Duration("vote-sweep-interval")
	cfg.SweepThrottle = cctx.Duration("sweep-throttle")
	cfg.PollInterval = cctx.Duration("poll-interval")
	cfg.RemovalQuotaDay = cctx.Int("removal-quota")
	cfg.NotifyOnRemoval = cctx.Bool("notify-on-removal")
	cfg.MaxWaitingUnits = cctx.Int64("max-waiting-units")
	if raw := cctx.StringSlice("vote-option"); len(raw) > 0 {
		opts, err := voting.ParseOptions(raw)
		if err != nil {
			return cfg, err
		}
		cfg.Options = opts
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var statusCmd = &cli.Command{
	Name:  "status",
	Usage: "print the post records in the job store and the outbox backlog",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/reviewbot/reviewbot.db",
			EnvVars: []string{"DATABASE_URL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}
		db, err := cliutil.SetupDatabase(cctx.String("database-url"), 1)
		if err != nil {
			return err
		}
		return printStatus(cctx.Context, db, logger, os.Stdout)
	},
}
