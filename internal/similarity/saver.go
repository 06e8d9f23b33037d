package similarity

import (
	"log/slog"
	"sync"
	"time"
)

// saver coalesces index save requests: any number of requests inside
// the debounce window produce exactly one save. A save that fails is
// retried on the next window rather than surfaced.
type saver struct {
	save     func() error
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
}

func newSaver(save func() error, debounce time.Duration, logger *slog.Logger) *saver {
	return &saver{
		save:     save,
		debounce: debounce,
		logger:   logger,
	}
}

// Request schedules a save at the end of the current debounce window,
// starting one if none is open.
func (s *saver) Request() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending {
		return
	}
	s.pending = true
	s.timer = time.AfterFunc(s.debounce, s.fire)
}

func (s *saver) fire() {
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()

	if err := s.save(); err != nil {
		// Transient failures retry on the next debounce window.
		s.logger.Warn("debounced index save failed", slog.String("error", err.Error()))
		s.Request()
	}
}

// Flush runs any pending save immediately. Used on shutdown.
func (s *saver) Flush() {
	s.mu.Lock()
	wasPending := s.pending
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = false
	s.mu.Unlock()

	if wasPending {
		if err := s.save(); err != nil {
			s.logger.Warn("final index save failed", slog.String("error", err.Error()))
		}
	}
}
