package widget

import (
	"encoding/json"

	"agyntsynq/internal/entities"

	"github.com/rs/zerolog"
)

const keyPrefix = "agynt_widget_"

// SessionStore namespaces a widget's persisted state by chatbot id so
// several widgets can share one Storage. Reads never fail: missing,
// unreadable or corrupt values are reported as absent.
type SessionStore struct {
	storage Storage
	prefix  string
	log     zerolog.Logger
}

func NewSessionStore(storage Storage, chatbotID string, log zerolog.Logger) *SessionStore {
	return &SessionStore{storage: storage, prefix: keyPrefix + chatbotID + "_", log: log}
}

// Key returns the storage key of name, e.g. agynt_widget_<id>_session.
func (s *SessionStore) Key(name string) string {
	return s.prefix + name
}

func (s *SessionStore) get(name string) string {
	v, ok, err := s.storage.Get(s.Key(name))
	if err != nil {
		s.log.Warn().Err(err).Str("key", s.Key(name)).Msg("storage read failed")
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

func (s *SessionStore) set(name, value string) {
	if err := s.storage.Set(s.Key(name), value); err != nil {
		s.log.Warn().Err(err).Str("key", s.Key(name)).Msg("storage write failed")
	}
}

func (s *SessionStore) getJSON(name string, v interface{}) bool {
	raw := s.get(name)
	if raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.log.Debug().Err(err).Str("key", s.Key(name)).Msg("ignoring corrupt stored value")
		return false
	}
	return true
}

func (s *SessionStore) setJSON(name string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Warn().Err(err).Str("key", s.Key(name)).Msg("encode stored value")
		return
	}
	s.set(name, string(b))
}

func (s *SessionStore) SessionID() string {
	return s.get("session")
}

func (s *SessionStore) SetSessionID(id string) {
	s.set("session", id)
}

// Visitor returns the stored profile, or nil when there is none or it
// would not pass the lead form.
func (s *SessionStore) Visitor() *entities.VisitorProfile {
	var p entities.VisitorProfile
	if !s.getJSON("visitor", &p) {
		return nil
	}
	if checkLead(p) != nil {
		return nil
	}
	return &p
}

func (s *SessionStore) SetVisitor(p entities.VisitorProfile) {
	s.setJSON("visitor", p)
}

func (s *SessionStore) Config() *entities.WidgetConfig {
	var c entities.WidgetConfig
	if !s.getJSON("config", &c) {
		return nil
	}
	return &c
}

func (s *SessionStore) SetConfig(c entities.WidgetConfig) {
	s.setJSON("config", c)
}
