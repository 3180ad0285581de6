package fleet

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"airline_scheduler/internal/ledger"
)

// Sweeper periodically marks scheduled flights whose departure has passed
// as completed.
type Sweeper struct {
	store    ledger.Store
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu     sync.Mutex
	ticker *time.Ticker
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(store ledger.Store, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{store: store, interval: interval, now: time.Now, logger: logger}
}

// SweepOnce completes departed flights and returns how many changed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error
		n, err = tx.CompleteDeparted(ctx, s.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("flights completed", zap.Int64("count", n))
	}
	return n, nil
}

// Start runs the ticker loop until Stop or ctx ends. A non-positive
// interval disables it.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		s.ticker = time.NewTicker(s.interval)
	} else {
		s.ticker.Reset(s.interval)
	}
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func(ctx context.Context, tick <-chan time.Time, done chan struct{}) {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick:
				if _, err := s.SweepOnce(ctx); err != nil {
					s.logger.Warn("completion sweep failed", zap.Error(err))
				}
			}
		}
	}(ctx, s.ticker.C, s.done)
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}
