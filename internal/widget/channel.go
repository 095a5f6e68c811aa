package widget

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Delivery is a batch of new messages. First is set for the first
// non-empty batch of a session, which carries its history.
type Delivery struct {
	Messages []ChatMessage
	First    bool
}

// MessageChannel delivers incoming messages while started. Start and Stop
// are idempotent.
type MessageChannel interface {
	Start()
	Stop()
	OnMessage(handler func(Delivery))
	Active() bool
}

// PollingChannel polls the message endpoint on a fixed interval with a
// since cursor. Failures are logged and the next tick retries.
type PollingChannel struct {
	api      API
	session  func() string
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger
	parent   context.Context

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	cursor  string
	handler func(Delivery)
}

var _ MessageChannel = (*PollingChannel)(nil)

func NewPollingChannel(ctx context.Context, api API, session func() string, interval, timeout time.Duration, log zerolog.Logger) *PollingChannel {
	return &PollingChannel{
		api:      api,
		session:  session,
		interval: interval,
		timeout:  timeout,
		log:      log,
		parent:   ctx,
	}
}

func (p *PollingChannel) OnMessage(handler func(Delivery)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

func (p *PollingChannel) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(p.parent)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
}

func (p *PollingChannel) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
}

func (p *PollingChannel) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Wait blocks until the last started loop has exited.
func (p *PollingChannel) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Cursor is the created_at of the newest message delivered.
func (p *PollingChannel) Cursor() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Reset forgets the cursor, for when the session changes.
func (p *PollingChannel) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = ""
}

func (p *PollingChannel) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches and delivers messages newer than the cursor. A response
// is dropped if the cursor moved while it was in flight.
func (p *PollingChannel) PollOnce(ctx context.Context) error {
	sessionID := p.session()
	if sessionID == "" {
		return nil
	}
	since := p.Cursor()

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	msgs, err := p.api.Poll(reqCtx, sessionID, since)
	if err != nil {
		p.log.Debug().Err(err).Str("session_id", sessionID).Msg("poll failed")
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	p.mu.Lock()
	if p.cursor != since {
		p.mu.Unlock()
		return nil
	}
	for _, m := range msgs {
		if m.CreatedAt != "" {
			p.cursor = m.CreatedAt
		}
	}
	handler := p.handler
	p.mu.Unlock()

	if handler != nil {
		handler(Delivery{Messages: msgs, First: since == ""})
	}
	return nil
}
