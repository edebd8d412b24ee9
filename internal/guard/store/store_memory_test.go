package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stayguard/internal/guard/models"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	now   time.Time
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.now = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s.store = NewMemoryStore().WithClock(func() time.Time { return s.now })
}

func (s *MemoryStoreSuite) advance(d time.Duration) {
	s.now = s.now.Add(d)
}

func (s *MemoryStoreSuite) TestIncrementCountsUp() {
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		count, ttl, err := s.store.IncrementAndGet(ctx, "rl:auth:1.2.3.4", time.Minute)
		s.Require().NoError(err)
		s.Equal(i, count)
		s.LessOrEqual(ttl, time.Minute)
	}
}

func (s *MemoryStoreSuite) TestWindowResetIsAbrupt() {
	ctx := context.Background()

	count, _, err := s.store.IncrementAndGet(ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.Equal(int64(1), count)

	// Just inside the half-open window: still the same counter.
	s.advance(59 * time.Second)
	count, ttl, err := s.store.IncrementAndGet(ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.Equal(int64(2), count)
	s.Equal(time.Second, ttl)

	// At the boundary the window has elapsed and the counter restarts.
	s.advance(time.Second)
	count, ttl, err = s.store.IncrementAndGet(ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.Equal(int64(1), count)
	s.Equal(time.Minute, ttl)
}

func (s *MemoryStoreSuite) TestPeekDoesNotMutate() {
	ctx := context.Background()

	_, _, err := s.store.IncrementAndGet(ctx, "k", time.Minute)
	s.Require().NoError(err)

	for range 3 {
		count, err := s.store.Peek(ctx, "k")
		s.Require().NoError(err)
		s.Equal(int64(1), count)
	}

	count, err := s.store.Peek(ctx, "absent")
	s.Require().NoError(err)
	s.Zero(count)
}

func (s *MemoryStoreSuite) TestClear() {
	ctx := context.Background()

	_, _, err := s.store.IncrementAndGet(ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Clear(ctx, "k"))

	count, err := s.store.Peek(ctx, "k")
	s.Require().NoError(err)
	s.Zero(count)
}

func (s *MemoryStoreSuite) TestBlockLifecycle() {
	ctx := context.Background()

	entry, err := s.store.GetBlock(ctx, "block:1.2.3.4")
	s.Require().NoError(err)
	s.Nil(entry)

	s.Require().NoError(s.store.SetBlock(ctx, "block:1.2.3.4", 15*time.Minute, models.ReasonLocked))

	entry, err = s.store.GetBlock(ctx, "block:1.2.3.4")
	s.Require().NoError(err)
	s.Require().NotNil(entry)
	s.Equal(models.ReasonLocked, entry.Reason)
	s.Equal(15*time.Minute, entry.Remaining(s.now))

	// Lazy expiry: past blocked_until the entry reads as absent.
	s.advance(15*time.Minute + time.Second)
	entry, err = s.store.GetBlock(ctx, "block:1.2.3.4")
	s.Require().NoError(err)
	s.Nil(entry)
}

func (s *MemoryStoreSuite) TestClearBlock() {
	ctx := context.Background()

	s.Require().NoError(s.store.SetBlock(ctx, "k", time.Hour, models.ReasonLocked))
	s.Require().NoError(s.store.ClearBlock(ctx, "k"))

	entry, err := s.store.GetBlock(ctx, "k")
	s.Require().NoError(err)
	s.Nil(entry)
}

// TestConcurrentIncrementsLoseNoUpdates exercises the core atomicity
// contract: N concurrent increments on one key yield a final count of
// exactly N.
func (s *MemoryStoreSuite) TestConcurrentIncrementsLoseNoUpdates() {
	ctx := context.Background()
	const workers = 64

	store := NewMemoryStore() // real clock; window far longer than the test
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			_, _, err := store.IncrementAndGet(ctx, "k", time.Hour)
			s.NoError(err)
		}()
	}
	wg.Wait()

	count, err := store.Peek(ctx, "k")
	s.Require().NoError(err)
	s.Equal(int64(workers), count)
}
