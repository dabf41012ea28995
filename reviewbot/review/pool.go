package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bww-mods/benchbot/reviewbot/jobstore"
	"github.com/bww-mods/benchbot/reviewbot/platform"

	"golang.org/x/sync/semaphore"
)

// Pool runs one review unit per new post: the first pass, then a wait until the second pass is due, then for
// vote-eligible posts a wait until voting closes. Units waiting on the clock are capped; once the cap is hit a unit
// stops after its first pass and the sweeps pick up the rest.
type Pool struct {
	eng     *Engine
	waiting *semaphore.Weighted
	wg      sync.WaitGroup
	logger  *slog.Logger
}

func NewPool(eng *Engine, maxWaiting int64) *Pool {
	if maxWaiting <= 0 {
		maxWaiting = 1
	}
	return &Pool{
		eng:     eng,
		waiting: semaphore.NewWeighted(maxWaiting),
		logger:  eng.Logger.With("component", "pool"),
	}
}

// Submit starts a review unit for the post. The unit stops when the context ends.
func (p *Pool) Submit(ctx context.Context, post platform.Post) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		unitsActive.Inc()
		defer unitsActive.Dec()
		if err := p.run(ctx, post); err != nil && ctx.Err() == nil {
			p.logger.Warn("review unit ended early, recovery sweep will finish it", "post", post.ID, "err", err)
		}
	}()
}

// Wait blocks until every submitted unit has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, post platform.Post) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in review unit: %v", r)
		}
	}()

	rec, err := p.eng.FirstPass(ctx, post)
	if err != nil || rec == nil {
		return err
	}

	if !p.waiting.TryAcquire(1) {
		p.logger.Info("too many waiting units, leaving post to the sweep", "post", post.ID)
		return nil
	}
	defer p.waiting.Release(1)

	// the live unit runs at PassDelay; ReviewDueAt adds the buffer the recovery sweep waits on top of that
	if !p.sleepUntil(ctx, rec.CreatedAt.Add(p.eng.Config.PassDelay)) {
		return ctx.Err()
	}
	if err := p.eng.SecondPass(ctx, post.ID); err != nil {
		return err
	}

	rec, err = p.eng.Store.Get(ctx, post.ID)
	if errors.Is(err, jobstore.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if !rec.VotingEnabled || rec.ReviewState != jobstore.StateSecondPassDone {
		return nil
	}

	if !p.sleepUntil(ctx, rec.VotingDueAt) {
		return ctx.Err()
	}
	return p.eng.CloseVoting(ctx, post.ID)
}

func (p *Pool) sleepUntil(ctx context.Context, at time.Time) bool {
	return sleepCtx(ctx, at.Sub(p.eng.now()))
}
