package countstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCountStore(t *testing.T, cs CountStore) {
	assert := assert.New(t)
	ctx := context.Background()

	c, err := cs.GetCount(ctx, "removal", "woodworking", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.Increment(ctx, "removal", "woodworking"))
	assert.NoError(cs.Increment(ctx, "removal", "woodworking"))

	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCount(ctx, "removal", "woodworking", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}

	c, err = cs.GetCount(ctx, "removal", "other", PeriodDay)
	assert.NoError(err)
	assert.Equal(0, c)
}

func TestMemCountStoreBasics(t *testing.T) {
	testCountStore(t, NewMemCountStore())
}

func TestRedisCountStoreBasics(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	testCountStore(t, NewRedisCountStore(rdb))
}

func TestCountStoreDayRollover(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	cs := NewMemCountStore()
	cs.Now = func() time.Time { return now }

	assert.NoError(cs.Increment(ctx, "removal", "woodworking"))
	c, _ := cs.GetCount(ctx, "removal", "woodworking", PeriodDay)
	assert.Equal(1, c)

	now = now.Add(2 * time.Minute)
	c, _ = cs.GetCount(ctx, "removal", "woodworking", PeriodDay)
	assert.Equal(0, c)
	c, _ = cs.GetCount(ctx, "removal", "woodworking", PeriodTotal)
	assert.Equal(1, c)
}

func TestMemCountStoreConcurrent(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				require.NoError(cs.Increment(ctx, "removal", "woodworking"))
			}
		}()
	}
	wg.Wait()

	c, err := cs.GetCount(ctx, "removal", "woodworking", PeriodTotal)
	require.NoError(err)
	require.Equal(400, c)
}
