package radio

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
)

// DefaultReplenishInterval is how often the queue depth is checked.
const DefaultReplenishInterval = 5 * time.Second

// Scheduler posts a replenishment tick on a fixed interval. The controller
// decides whether the tick leads to a fetch.
type Scheduler struct {
	tick     func()
	clock    clockwork.Clock
	interval time.Duration
	logger   *log.Logger
}

// NewScheduler creates a scheduler calling tick every interval.
func NewScheduler(tick func(), clock clockwork.Clock, interval time.Duration, logger *log.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultReplenishInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		tick:     tick,
		clock:    clock,
		interval: interval,
		logger:   logger.WithPrefix("scheduler"),
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug("replenishment scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.tick()
		}
	}
}
