package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bww-mods/benchbot/reviewbot/cachestore"
	"github.com/bww-mods/benchbot/reviewbot/countstore"
	"github.com/bww-mods/benchbot/reviewbot/jobstore"
	"github.com/bww-mods/benchbot/reviewbot/outbox"
	"github.com/bww-mods/benchbot/reviewbot/platform"
	"github.com/bww-mods/benchbot/reviewbot/platform/reddit"
	"github.com/bww-mods/benchbot/reviewbot/review"
	"github.com/bww-mods/benchbot/reviewbot/setstore"
	"github.com/bww-mods/benchbot/util"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	slogecho "github.com/samber/slog-echo"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const defaultRelayInterval = 30 * time.Second

type Server struct {
	logger *slog.Logger
	db     *gorm.DB
	rdb    *redis.Client
	engine *review.Engine
	pool   *review.Pool
	relay  *outbox.Relay
	echo   *echo.Echo
	httpd  *http.Server
}

type Config struct {
	Review          review.Config
	Reddit          reddit.Credentials
	RedditHost      string
	RedditRateLimit int
	RedisURL        string
	SetsFileJSON    string
	SlackWebhookURL string
	RelayInterval   time.Duration
	Bind            string
	Logger          *slog.Logger

	// overrides the Reddit client; used by tests
	Client platform.Client
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	client := config.Client
	if client == nil {
		if config.Reddit.ClientID == "" || config.Reddit.Username == "" {
			return nil, fmt.Errorf("reddit client ID and username are required")
		}
		rc := reddit.NewClient(config.Reddit, logger)
		if config.RedditHost != "" {
			rc.Host = config.RedditHost
		}
		if config.RedditRateLimit > 0 {
			rc.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RedditRateLimit)), 5)
		}
		client = rc
	}

	sets := setstore.NewMemSetStore()
	if config.SetsFileJSON != "" {
		if err := sets.LoadFromFileJSON(config.SetsFileJSON); err != nil {
			return nil, fmt.Errorf("loading sets file: %w", err)
		}
		logger.Info("loaded exclusion sets", "path", config.SetsFileJSON)
	}
	cfg := config.Review
	cfg.NoReply.Sets = sets
	cfg.NoVote.Sets = sets

	store, err := jobstore.NewStore(db, logger)
	if err != nil {
		return nil, err
	}
	ob, err := outbox.New(db, logger)
	if err != nil {
		return nil, err
	}

	eng, err := review.NewEngine(cfg, client, store, ob, logger)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if config.RedisURL != "" {
		rdb, err = cachestore.ConnectRedis(context.Background(), config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		eng.ReplyBodies = cachestore.NewRedisReplyCache(rdb, cfg.MaxAge)
		eng.Counters = countstore.NewRedisCountStore(rdb)
		logger.Info("using redis for counters and reply cache")
	}

	relay := outbox.NewRelay(ob, &outbox.ModmailSender{Client: client, Community: cfg.Community}, logger)
	if config.RelayInterval > 0 {
		relay.Interval = config.RelayInterval
	}
	if config.SlackWebhookURL != "" {
		relay.Mirrors = append(relay.Mirrors, &outbox.SlackSender{
			WebhookURL: config.SlackWebhookURL,
			BotName:    client.Username(),
			Client:     util.RobustHTTPClient(logger),
		})
	}

	e := echo.New()
	srv := &Server{
		logger: logger,
		db:     db,
		rdb:    rdb,
		engine: eng,
		pool:   review.NewPool(eng, cfg.MaxWaitingUnits),
		relay:  relay,
		echo:   e,
	}
	srv.httpd = &http.Server{
		Handler:      e,
		Addr:         config.Bind,
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  30 * time.Second,
	}

	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddleware("reviewbot"))
	e.HTTPErrorHandler = srv.errorHandler
	e.GET("/_health", srv.HandleHealthCheck)

	return srv, nil
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("reviewbot-http-internal-error", "err", err)
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "reviewbot", Message: errorMessage})
}

// HandleHealthCheck reports unhealthy when the job store is unreachable.
func (srv *Server) HandleHealthCheck(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := srv.engine.Store.ListIDs(ctx); err != nil {
		srv.logger.Error("health check: job store unavailable", "err", err)
		return c.JSON(http.StatusServiceUnavailable, GenericStatus{Status: "error", Daemon: "reviewbot", Message: "database not available"})
	}
	if srv.rdb != nil {
		if err := srv.rdb.Ping(ctx).Err(); err != nil {
			srv.logger.Error("health check: redis unavailable", "err", err)
			return c.JSON(http.StatusServiceUnavailable, GenericStatus{Status: "error", Daemon: "reviewbot", Message: "redis not available"})
		}
	}
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "reviewbot"})
}

func (srv *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// Run starts the background loops and the health endpoint, and blocks until the context ends. In-progress review
// units are allowed to stop before it returns; anything unfinished is picked up by the sweeps on the next start.
func (srv *Server) Run(ctx context.Context) error {
	srv.logger.Info("starting review service", "community", srv.engine.Config.Community, "bind", srv.httpd.Addr)

	var wg sync.WaitGroup
	loops := map[string]func(context.Context){
		"posts": func(ctx context.Context) {
			srv.engine.RunPostStream(ctx, func(p platform.Post) { srv.pool.Submit(ctx, p) })
		},
		"comments": srv.engine.RunCommentStream,
		"inbox":    srv.engine.RunInboxStream,
		"sweeps":   srv.engine.RunSweeps,
		"relay": func(ctx context.Context) {
			if err := srv.relay.Run(ctx); err != nil {
				srv.logger.Error("outbox relay stopped", "err", err)
			}
		},
	}
	for name, loop := range loops {
		wg.Add(1)
		go func(name string, loop func(context.Context)) {
			defer wg.Done()
			loop(ctx)
			srv.logger.Info("loop exited", "loop", name)
		}(name, loop)
	}

	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.logger.Error("HTTP server shutting down unexpectedly", "err", err)
		}
	}()

	<-ctx.Done()
	srv.logger.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		srv.logger.Error("HTTP server shutdown error", "err", err)
	}
	wg.Wait()
	srv.pool.Wait()
	srv.logger.Info("graceful shutdown complete")
	return nil
}

func (srv *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.httpd.Shutdown(ctx)
}
