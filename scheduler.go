// This file contains the background scheduler: a recurring timer that
// invokes the user background handler at a fixed interval, independent of
// any connection's lifecycle.
package webui

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// scheduler fires ticks on a fixed period. Ticks never overlap: the next
// firing waits for the previous tick to complete, and ticks missed while a
// tick overruns are coalesced by the underlying time.Ticker, which bounds
// resource use when the handler is slow.
type scheduler struct {
	interval time.Duration
	tick     func(ctx context.Context)
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
	startOne sync.Once
	stopOne  sync.Once
}

func newScheduler(parent context.Context, interval time.Duration, tick func(ctx context.Context), logger *slog.Logger) *scheduler {
	if interval <= 0 {
		interval = defaultBackgroundInterval
	}
	ctx, cancel := context.WithCancel(parent)

	return &scheduler{
		interval: interval,
		tick:     tick,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (s *scheduler) start() {
	s.startOne.Do(func() {
		s.started = true

		go s.run()
	})
}

func (s *scheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)

	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick(s.ctx)
		}
	}
}

// stop prevents any further tick from being initiated. A tick already in
// progress is allowed to finish; stop returns once the loop has exited.
func (s *scheduler) stop() {
	s.stopOne.Do(func() {
		s.cancel()

		if s.started {
			<-s.done
		}
	})
}
