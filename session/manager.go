package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kasuganosora/rpgmakermvmmo/charserver/cache"
	"go.uber.org/zap"
)

// Manager maintains the registry of accounts online at the front ends. The
// registry is fed by login and logout events; Kick publishes a kick event
// that the owning front end acts on.
type Manager struct {
	mu       sync.RWMutex
	sessions map[int32]*Session // accountID → session
	events   cache.PubSub
	logger   *zap.Logger
}

// NewManager creates an empty Manager publishing on events.
func NewManager(events cache.PubSub, logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[int32]*Session),
		events:   events,
		logger:   logger,
	}
}

// Follow subscribes to EventsChannel and applies login, logout and kick
// events to the registry until ctx ends.
func (m *Manager) Follow(ctx context.Context) error {
	ch, cancel, err := m.events.Subscribe(ctx, EventsChannel)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", EventsChannel, err)
	}
	go func() {
		defer func() {
			cancel()
			for range ch {
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					m.logger.Warn("session events closed")
					return
				}
				m.apply(msg.Payload)
			}
		}
	}()
	return nil
}

func (m *Manager) apply(payload string) {
	ev, err := ParseEvent(payload)
	if err != nil {
		m.logger.Warn("bad session event", zap.Error(err))
		return
	}
	switch ev.Kind {
	case EventLogin:
		m.Register(New(ev.AccountID, ev.Remote))
	case EventLogout, EventKick:
		if m.remove(ev.AccountID) {
			m.logger.Info("session ended",
				zap.Int32("account_id", ev.AccountID), zap.String("event", string(ev.Kind)))
		}
	}
}

// Register adds a session, replacing any previous one of the account.
func (m *Manager) Register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.sessions[s.AccountID]; ok && old != s {
		m.logger.Info("duplicate session displaced", zap.Int32("account_id", s.AccountID))
	}
	m.sessions[s.AccountID] = s
	m.logger.Info("session registered",
		zap.Int32("account_id", s.AccountID), zap.String("remote", s.Remote))
}

// Unregister removes s if it is still the account's current session.
func (m *Manager) Unregister(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.AccountID]; ok && cur == s {
		delete(m.sessions, s.AccountID)
		m.logger.Info("session unregistered", zap.Int32("account_id", s.AccountID))
	}
}

func (m *Manager) remove(accountID int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[accountID]
	delete(m.sessions, accountID)
	return ok
}

// Get returns the session for accountID, or nil if not found.
func (m *Manager) Get(accountID int32) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[accountID]
}

// IsOnline reports whether accountID has a session.
func (m *Manager) IsOnline(accountID int32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[accountID]
	return ok
}

// Kick removes the account's session and publishes a kick event so the
// front end holding the account disconnects it. The event is published
// even when the registry has no session for the account. online reports
// whether one was registered.
func (m *Manager) Kick(ctx context.Context, accountID int32) (online bool, err error) {
	online = m.remove(accountID)
	ev := Event{Kind: EventKick, AccountID: accountID}
	if err := m.events.Publish(ctx, EventsChannel, ev.String()); err != nil {
		m.logger.Error("publish kick", zap.Int32("account_id", accountID), zap.Error(err))
		return online, fmt.Errorf("publish kick %d: %w", accountID, err)
	}
	m.logger.Info("session kicked", zap.Int32("account_id", accountID), zap.Bool("online", online))
	return online, nil
}

// Count returns the number of sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot of all sessions ordered by account.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}
