package infrastructure

import (
	"sync"
)

// SessionGuard serializes work per widget session so that messages of one
// session are stored and answered in arrival order.
type SessionGuard struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewSessionGuard() *SessionGuard {
	return &SessionGuard{locks: make(map[string]*sessionLock)}
}

// Lock blocks until the session is free and returns its unlock func.
// Entries are dropped once no caller holds or waits on them.
func (g *SessionGuard) Lock(sessionID string) func() {
	g.mu.Lock()
	l, ok := g.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		g.locks[sessionID] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, sessionID)
		}
		g.mu.Unlock()
	}
}

// Active returns the number of sessions currently held or awaited.
func (g *SessionGuard) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}
