package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/config"
)

const (
	defaultIdleTTL = 6 * time.Hour
	defaultSweep   = "@every 10m"
)

// Store keeps sessions in memory for the lifetime of the process.
type Store struct {
	registry *config.Registry
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[int64]*Session

	cron *cron.Cron
}

func NewStore(registry *config.Registry, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = defaultIdleTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		registry: registry,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
		sessions: make(map[int64]*Session),
	}
}

// Get returns the session of chatID without refreshing it.
func (s *Store) Get(chatID int64) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[chatID]
	return sess, ok
}

// GetOrCreate returns the session of chatID, creating an IDLE one with the
// current defaults when there is none. It marks the session as active.
func (s *Store) GetOrCreate(chatID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		sess = s.newSession(chatID)
		s.sessions[chatID] = sess
	}
	sess.lastSeen = s.now()
	return sess
}

// Renew replaces the session of chatID with a fresh one that captures the
// current defaults.
func (s *Store) Renew(chatID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.newSession(chatID)
	sess.lastSeen = s.now()
	s.sessions[chatID] = sess
	return sess
}

func (s *Store) newSession(chatID int64) *Session {
	return &Session{
		ChatID: chatID,
		State:  StateIdle,
		Config: s.registry.Current(),
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many
// were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := s.now().Add(-s.ttl)
	evicted := 0
	for chatID, sess := range s.sessions {
		if sess.lastSeen.Before(deadline) {
			delete(s.sessions, chatID)
			evicted++
		}
	}

	if evicted > 0 {
		s.logger.Info("idle sessions evicted",
			zap.Int("evicted", evicted),
			zap.Int("sessions_left", len(s.sessions)),
		)
	}

	return evicted
}

// Start runs Sweep on the cron schedule spec, for example "@every 10m".
func (s *Store) Start(spec string) error {
	if spec == "" {
		spec = defaultSweep
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("schedule session sweep %q: %w", spec, err)
	}
	c.Start()

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	s.logger.Info("session sweeper started", zap.String("schedule", spec), zap.Duration("idle_ttl", s.ttl))
	return nil
}

// Stop halts the sweeper and waits for a running sweep to finish.
func (s *Store) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
