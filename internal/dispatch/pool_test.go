package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/keshon/warden/internal/domain"
)

func TestPoolKeepsStreamOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	seen := map[int64][]int64{}
	var wg sync.WaitGroup

	pool := NewPool(4, 8, func(_ context.Context, msg domain.Message) {
		defer wg.Done()
		mu.Lock()
		seen[msg.GroupID] = append(seen[msg.GroupID], msg.ID)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(stopped)
	}()

	const perGroup = 50
	for i := int64(0); i < perGroup; i++ {
		for g := int64(1); g <= 6; g++ {
			wg.Add(1)
			require.True(t, pool.Submit(context.Background(), domain.Message{ID: i, Kind: domain.ScopeGroup, GroupID: g}))
		}
	}
	wg.Wait()
	cancel()
	<-stopped

	for g := int64(1); g <= 6; g++ {
		require.Len(t, seen[g], perGroup)
		for i, id := range seen[g] {
			assert.Equal(t, int64(i), id, "group %d out of order", g)
		}
	}

	assert.False(t, pool.Submit(context.Background(), domain.Message{Kind: domain.ScopeGroup, GroupID: 1}), "stopped pool refuses work")
}

func TestPoolTrySubmitNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	pool := NewPool(1, 1, func(context.Context, domain.Message) {
		started <- struct{}{}
		<-block
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(stopped)
	}()

	require.True(t, pool.TrySubmit(domain.Message{ID: 1}))
	<-started
	require.True(t, pool.TrySubmit(domain.Message{ID: 2}), "queue slot free")

	begin := time.Now()
	assert.False(t, pool.TrySubmit(domain.Message{ID: 3}), "queue full")
	assert.Less(t, time.Since(begin), 50*time.Millisecond)

	close(block)
	cancel()
	<-stopped
	assert.False(t, pool.TrySubmit(domain.Message{ID: 4}), "pool stopped")
}

func TestPoolSubmitHonorsContext(t *testing.T) {
	block := make(chan struct{})
	pool := NewPool(1, 0, func(context.Context, domain.Message) { <-block })

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(stopped)
	}()

	require.True(t, pool.Submit(context.Background(), domain.Message{ID: 1}))

	subCtx, subCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer subCancel()
	assert.False(t, pool.Submit(subCtx, domain.Message{ID: 2}), "full queue and expired context")

	close(block)
	cancel()
	<-stopped
}
