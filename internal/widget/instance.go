package widget

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"agyntsynq/internal/entities"

	"github.com/rs/zerolog"
)

var (
	ErrProfileRequired = errors.New("lead form not completed")
	ErrNotStarted      = errors.New("widget not started")
)

// State is the widget's position in its state machine.
type State int

const (
	StateNoProfile State = iota
	StateAwaitingCapture
	StateIdle
	StateOpenPreSession
	StateOpenPolling
)

func (s State) String() string {
	switch s {
	case StateNoProfile:
		return "no_profile"
	case StateAwaitingCapture:
		return "awaiting_capture"
	case StateIdle:
		return "idle"
	case StateOpenPreSession:
		return "open_pre_session"
	case StateOpenPolling:
		return "open_polling"
	default:
		return "unknown"
	}
}

type Options struct {
	ChatbotID string
	API       API
	Storage   Storage
	View      View

	PollInterval      time.Duration
	SuperviseInterval time.Duration
	RequestTimeout    time.Duration
	ConfigAttempts    int
	// ConfigBackoff is multiplied by the failed attempt number.
	ConfigBackoff time.Duration

	Log zerolog.Logger
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.SuperviseInterval <= 0 {
		o.SuperviseInterval = 30 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.ConfigAttempts <= 0 {
		o.ConfigAttempts = 3
	}
	if o.ConfigBackoff <= 0 {
		o.ConfigBackoff = 2 * time.Second
	}
	if o.Storage == nil {
		o.Storage = NewMemoryStorage()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Instance is one mounted widget. It owns all mutable widget state; one
// mutex guards it, and the poll and supervisor loops are goroutines that
// stop with Close.
type Instance struct {
	opts  Options
	api   API
	view  View
	store *SessionStore
	log   zerolog.Logger

	mu            sync.Mutex
	started       bool
	sessionID     string
	visitor       *entities.VisitorProfile
	config        *entities.WidgetConfig
	configLoaded  bool
	isOpen        bool
	messages      []DisplayMessage
	pendingEchoes []string
	sendSeq       uint64
	appliedSeq    uint64

	ctx        context.Context
	cancel     context.CancelFunc
	channel    *PollingChannel
	supervisor *Supervisor
	background sync.WaitGroup
}

func New(opts Options) (*Instance, error) {
	if opts.ChatbotID == "" {
		return nil, errors.New("chatbot id is required")
	}
	if opts.API == nil || opts.View == nil {
		return nil, errors.New("api and view are required")
	}
	opts.defaults()
	log := opts.Log.With().Str("chatbot_id", opts.ChatbotID).Logger()
	store := NewSessionStore(opts.Storage, opts.ChatbotID, log)

	w := &Instance{
		opts:      opts,
		api:       opts.API,
		view:      opts.View,
		store:     store,
		log:       log,
		sessionID: store.SessionID(),
		visitor:   store.Visitor(),
	}
	return w, nil
}

// Start mounts the shell, loads the config in the background and begins
// supervising the mount.
func (w *Instance) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.channel = NewPollingChannel(w.ctx, w.api, w.SessionID, w.opts.PollInterval, w.opts.RequestTimeout, w.log)
	w.channel.OnMessage(w.deliver)
	w.supervisor = NewSupervisor(w.opts.SuperviseInterval, w.ensureMounted, w.onVisible, w.log)
	w.mountLocked()
	w.mu.Unlock()

	w.supervisor.Start(w.ctx)
	w.goBackground(w.LoadConfig)
}

// Close tears the widget down: both loops stop and in-flight requests
// are cancelled.
func (w *Instance) Close() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	cancel, channel, supervisor := w.cancel, w.channel, w.supervisor
	w.mu.Unlock()

	cancel()
	supervisor.Close()
	w.background.Wait()
	channel.Stop()
	channel.Wait()
}

// Flush waits for background requests (config, lead, sends) to finish.
func (w *Instance) Flush() {
	w.background.Wait()
}

func (w *Instance) goBackground(f func(ctx context.Context)) {
	w.background.Add(1)
	go func() {
		defer w.background.Done()
		f(w.ctx)
	}()
}

// VisibilityChanged forwards host visibility changes to the supervisor.
func (w *Instance) VisibilityChanged(visible bool) {
	w.mu.Lock()
	supervisor := w.supervisor
	w.mu.Unlock()
	if supervisor != nil {
		supervisor.VisibilityChanged(visible)
	}
}

func (w *Instance) ensureMounted() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.view.Mounted() {
		return
	}
	w.log.Info().Msg("widget shell missing, remounting")
	w.mountLocked()
}

// mountLocked builds the shell from current state.
func (w *Instance) mountLocked() {
	w.view.Mount()
	w.view.ApplyPresentation(presentationOf(w.config))
	if w.visitor != nil {
		w.view.ShowChat()
	} else {
		w.view.ShowLeadForm()
	}
	w.view.ClearMessages()
	for _, m := range w.messages {
		w.view.AppendMessage(m)
	}
	w.view.SetOpen(w.isOpen)
}

func (w *Instance) onVisible() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isOpen && w.sessionID != "" {
		w.channel.Start()
	}
}

// LoadConfig fetches the config, falling back to the cached copy and
// retrying with a linear backoff. Once resolved either way, an existing
// session gets its history and polling starts.
func (w *Instance) LoadConfig(ctx context.Context) {
	for attempt := 1; attempt <= w.opts.ConfigAttempts; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
		cfg, err := w.api.FetchConfig(reqCtx, w.opts.ChatbotID)
		cancel()
		if err == nil {
			w.applyFetchedConfig(*cfg)
			break
		}

		w.log.Warn().Err(err).Int("attempt", attempt).Msg("config load failed")
		if cached := w.store.Config(); cached != nil {
			w.applyConfig(*cached)
		}
		if attempt == w.opts.ConfigAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.opts.ConfigBackoff * time.Duration(attempt)):
		}
	}

	if ctx.Err() != nil {
		return
	}
	if w.SessionID() != "" {
		_ = w.channel.PollOnce(ctx)
		w.channel.Start()
	}
}

func (w *Instance) applyFetchedConfig(cfg entities.WidgetConfig) {
	w.store.SetConfig(cfg)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = &cfg
	w.view.ApplyPresentation(presentationOf(w.config))
	if w.configLoaded {
		return
	}
	w.configLoaded = true
	if strings.TrimSpace(cfg.WelcomeMessage) != "" && w.sessionID == "" && len(w.messages) == 0 {
		w.setPlaceholderLocked(cfg.WelcomeMessage)
	}
}

func (w *Instance) applyConfig(cfg entities.WidgetConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = &cfg
	w.view.ApplyPresentation(presentationOf(w.config))
}

func (w *Instance) setPlaceholderLocked(text string) {
	w.messages = []DisplayMessage{{Content: text, Sender: SenderBot, Placeholder: true}}
	w.view.ClearMessages()
	w.view.AppendMessage(w.messages[0])
}

// SubmitLead validates the form. A blank field rejects silently with
// entities.ErrIncompleteProfile; missing consent shows ConsentError and
// returns entities.ErrNoConsent. On success the chat opens at once and the
// backend is told in the background.
func (w *Instance) SubmitLead(form LeadForm) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return ErrNotStarted
	}
	p := form.profile(w.opts.Now())
	if err := checkLead(p); err != nil {
		if errors.Is(err, entities.ErrNoConsent) {
			w.view.ShowFormError(ConsentError)
		}
		w.mu.Unlock()
		return err
	}

	w.view.ShowFormError("")
	w.store.SetVisitor(p)
	w.visitor = &p
	w.view.ShowChat()
	welcome := ""
	if w.config != nil {
		welcome = w.config.WelcomeMessage
	}
	w.setPlaceholderLocked(personalWelcome(p.FirstName, welcome))
	w.view.FocusInput()
	req := LeadRequest{ChatbotID: w.opts.ChatbotID, SessionID: w.sessionID, VisitorInfo: p}
	w.mu.Unlock()

	w.goBackground(func(ctx context.Context) {
		reqCtx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
		defer cancel()
		sessionID, err := w.api.SubmitLead(reqCtx, req)
		if err != nil {
			w.log.Warn().Err(err).Msg("lead registration failed")
			return
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		w.adoptSessionLocked(sessionID)
	})
	return nil
}

// Send echoes text into the pane and posts it in the background. Responses
// older than one already applied are ignored so a slow reply cannot roll
// back the session or config.
func (w *Instance) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return ErrNotStarted
	}
	if w.visitor == nil {
		w.mu.Unlock()
		return ErrProfileRequired
	}
	echo := DisplayMessage{Content: text, Sender: SenderVisitor}
	w.messages = append(w.messages, echo)
	w.pendingEchoes = append(w.pendingEchoes, text)
	w.view.AppendMessage(echo)
	w.sendSeq++
	seq := w.sendSeq
	req := SendRequest{ChatbotID: w.opts.ChatbotID, SessionID: w.sessionID, Message: text}
	w.mu.Unlock()

	w.goBackground(func(ctx context.Context) {
		reqCtx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
		defer cancel()
		resp, err := w.api.Send(reqCtx, req)
		if err != nil {
			w.log.Warn().Err(err).Msg("send failed")
			return
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		if seq < w.appliedSeq {
			w.log.Debug().Uint64("seq", seq).Msg("ignoring stale send response")
			return
		}
		w.appliedSeq = seq
		if resp.Chatbot != nil {
			cfg := *resp.Chatbot
			w.store.SetConfig(cfg)
			w.config = &cfg
			w.view.ApplyPresentation(presentationOf(w.config))
		}
		w.adoptSessionLocked(resp.SessionID)
	})
	return nil
}

func (w *Instance) adoptSessionLocked(sessionID string) {
	if sessionID == "" {
		return
	}
	if sessionID != w.sessionID {
		w.sessionID = sessionID
		w.store.SetSessionID(sessionID)
		w.channel.Reset()
	}
	if w.isOpen {
		w.channel.Start()
	}
}

// deliver renders polled messages. The first batch of a session replaces
// whatever is in the pane; visitor messages already echoed are skipped.
func (w *Instance) deliver(d Delivery) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d.First {
		w.messages = nil
		w.pendingEchoes = nil
		w.view.ClearMessages()
	}
	for _, m := range d.Messages {
		sender := SenderBot
		if m.SenderType == entities.SenderVisitor {
			sender = SenderVisitor
			if w.consumeEchoLocked(m.Content) {
				continue
			}
		}
		dm := DisplayMessage{Content: m.Content, Sender: sender}
		w.messages = append(w.messages, dm)
		w.view.AppendMessage(dm)
	}
}

func (w *Instance) consumeEchoLocked(content string) bool {
	for i, e := range w.pendingEchoes {
		if e == content {
			w.pendingEchoes = append(w.pendingEchoes[:i], w.pendingEchoes[i+1:]...)
			return true
		}
	}
	return false
}

// SetOpen opens or closes the panel; polling follows.
func (w *Instance) SetOpen(open bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.isOpen = open
	w.view.SetOpen(open)
	if !open {
		w.channel.Stop()
		return
	}
	if w.sessionID != "" {
		w.channel.Start()
	}
	if w.visitor != nil {
		w.view.FocusInput()
	}
}

func (w *Instance) Toggle() {
	w.mu.Lock()
	open := !w.isOpen
	w.mu.Unlock()
	w.SetOpen(open)
}

func (w *Instance) SessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionID
}

func (w *Instance) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.visitor == nil && !w.started:
		return StateNoProfile
	case w.visitor == nil:
		return StateAwaitingCapture
	case !w.isOpen:
		return StateIdle
	case w.sessionID != "" && w.channel.Active():
		return StateOpenPolling
	default:
		return StateOpenPreSession
	}
}

// Polling reports whether the message channel is running.
func (w *Instance) Polling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.channel != nil && w.channel.Active()
}

// Cursor is the since value the next poll will send.
func (w *Instance) Cursor() string {
	w.mu.Lock()
	channel := w.channel
	w.mu.Unlock()
	if channel == nil {
		return ""
	}
	return channel.Cursor()
}

func (w *Instance) Messages() []DisplayMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]DisplayMessage(nil), w.messages...)
}

func (w *Instance) Presentation() Presentation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return presentationOf(w.config)
}
