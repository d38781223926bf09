package scheduler

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/auctionhq/auctionhouse/internal/batch"
	"github.com/auctionhq/auctionhouse/internal/watchlist"
)

// TickInterval is how often phase boundaries are checked. Transitions are
// guarded by status, so the worst case is a transition landing one interval
// late.
const TickInterval = time.Minute

// Scheduler drives the batch state machine on a fixed ticker. One tick runs
// at a time; if a tick overruns the interval the next one is skipped rather
// than stacked.
type Scheduler struct {
	batches   *batch.Manager
	watchlist *watchlist.Service
	running   atomic.Bool
}

func New(batches *batch.Manager, wl *watchlist.Service) *Scheduler {
	return &Scheduler{batches: batches, watchlist: wl}
}

// Run blocks until ctx is canceled. An immediate tick fires on start so a
// restarted server catches up on any boundary it slept through.
func (s *Scheduler) Run(ctx context.Context) {
	s.batches.SchedulerEnabled.Store(true)
	log.Printf("[scheduler] started, interval %s", TickInterval)

	s.tick(ctx)
	t := time.NewTicker(TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[scheduler] stopped")
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		log.Printf("[scheduler] previous tick still running, skipping")
		return
	}
	defer s.running.Store(false)

	if err := s.batches.Tick(ctx); err != nil {
		log.Printf("[scheduler] tick: %v", err)
	}
	if err := s.watchlist.NotifyEndingSoon(ctx); err != nil {
		log.Printf("[scheduler] ending-soon check: %v", err)
	}
}
