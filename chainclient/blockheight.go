package chainclient

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
)

// blockCountSource is the minimal surface PollingBlockHeightSource
// needs; BitcoindClient satisfies it.
type blockCountSource interface {
	GetBlockCount(ctx context.Context) (BlockHeight, error)
}

// PollingBlockHeightSource implements BlockHeightSource by polling
// get_block_count on an interval and fanning out strictly-increasing
// heights via an event.Feed, the same fan-out primitive the teacher
// uses for its own ChainHeadEvent (work/worker.go). spec.md §6 models
// the block-height source as a push stream; Bitcoin Core's RPC surface
// gives us only a poll, so this is the adapter between the two.
type PollingBlockHeightSource struct {
	client   blockCountSource
	interval time.Duration

	feed event.Feed

	mu     sync.Mutex
	last   BlockHeight
	known  bool
	quit   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewPollingBlockHeightSource constructs a source that polls client
// every interval.
func NewPollingBlockHeightSource(client *BitcoindClient, interval time.Duration) *PollingBlockHeightSource {
	return &PollingBlockHeightSource{
		client:   client,
		interval: interval,
		quit:     make(chan struct{}),
	}
}

// Start begins the polling loop; safe to call once.
func (s *PollingBlockHeightSource) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.quit:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.poll(ctx)
			}
		}
	}()
}

func (s *PollingBlockHeightSource) poll(ctx context.Context) {
	h, err := s.client.GetBlockCount(ctx)
	if err != nil {
		logger.Debug("get_block_count failed, will retry next tick", "err", err)
		return
	}

	s.mu.Lock()
	isNew := !s.known || h > s.last
	if isNew {
		s.last, s.known = h, true
	}
	s.mu.Unlock()

	if isNew {
		s.feed.Send(h)
	}
}

// Subscribe returns a channel of strictly-increasing block heights and
// a cancel func, satisfying chainclient.BlockHeightSource.
func (s *PollingBlockHeightSource) Subscribe() (<-chan BlockHeight, func()) {
	ch := make(chan BlockHeight, 16)
	sub := s.feed.Subscribe(ch)
	return ch, func() {
		sub.Unsubscribe()
		close(ch)
	}
}

// Stop ends the polling loop. Safe to call multiple times.
func (s *PollingBlockHeightSource) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.quit)
	s.wg.Wait()
}
