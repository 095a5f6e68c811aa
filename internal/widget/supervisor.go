package widget

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Supervisor keeps the widget attached to a host it does not control: on
// a timer and whenever the host becomes visible again.
type Supervisor struct {
	interval  time.Duration
	remount   func()
	onVisible func()
	log       zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSupervisor(interval time.Duration, remount, onVisible func(), log zerolog.Logger) *Supervisor {
	return &Supervisor{interval: interval, remount: remount, onVisible: onVisible, log: log}
}

// Start runs the interval check until ctx ends or Close is called.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Supervisor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.remount()
		}
	}
}

// VisibilityChanged is called by the host; only becoming visible acts.
func (s *Supervisor) VisibilityChanged(visible bool) {
	if !visible {
		return
	}
	s.log.Debug().Msg("host visible, verifying widget")
	s.remount()
	s.onVisible()
}

// Close stops the interval check and waits for it to exit.
func (s *Supervisor) Close() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
