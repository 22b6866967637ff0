// README: Keeps the in-memory session and its stored copies converged (1s poll plus cross-tab change events).
package storefront

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultSyncInterval = time.Second

// SessionSyncer owns the current session of one client. Auth changes are
// written through at once; a ticker rewrites the stored copies and a storage
// watcher adopts changes made by other tabs.
type SessionSyncer struct {
	store    *SessionStore
	watch    Watcher
	interval time.Duration

	mu        sync.Mutex
	current   *Session
	listeners []func(*Session)
}

func NewSessionSyncer(store *SessionStore, watch Watcher, interval time.Duration) *SessionSyncer {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &SessionSyncer{store: store, watch: watch, interval: interval}
}

// OnChange registers fn to run after the current session changes.
func (s *SessionSyncer) OnChange(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *SessionSyncer) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// Restore loads the stored session at startup.
func (s *SessionSyncer) Restore(ctx context.Context) (*Session, error) {
	sess, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.adopt(sess)
	return sess, nil
}

// SetSession is the auth state change path: sign-in, refresh or sign-out (nil).
func (s *SessionSyncer) SetSession(ctx context.Context, sess *Session) error {
	if err := s.store.Save(ctx, sess); err != nil {
		return err
	}
	s.adopt(sess)
	return nil
}

// Run polls until ctx is done.
func (s *SessionSyncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var changes <-chan string
	if s.watch != nil {
		changes = s.watch.Watch(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		case key, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			switch key {
			case PrimaryKey:
				s.follow(ctx)
			case BackupKey, SecondaryKey:
				s.resync(ctx)
			}
		}
	}
}

// tick rewrites the current session everywhere, or picks up a session some
// other tab stored while this one had none.
func (s *SessionSyncer) tick(ctx context.Context) {
	cur := s.Current()
	if cur == nil {
		s.resync(ctx)
		return
	}
	if exp, ok := cur.Expiry(); ok && !s.store.now().Before(exp) {
		if err := s.SetSession(ctx, nil); err != nil {
			log.Warn().Err(err).Str("component", "session").Msg("clearing expired session failed")
		}
		return
	}
	if err := s.store.Save(ctx, cur); err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("session write-back failed")
	}
}

// follow handles a primary key change made by another tab. A removed primary
// is a sign-out there, so the local backups must not bring the session back.
func (s *SessionSyncer) follow(ctx context.Context) {
	primary := s.store.locations[0]
	_, ok, err := primary.storage.Get(ctx, primary.key)
	if err != nil || ok {
		s.resync(ctx)
		return
	}
	if err := s.store.Clear(ctx); err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("clearing session after remote sign-out failed")
	}
	s.adopt(nil)
}

func (s *SessionSyncer) resync(ctx context.Context) {
	sess, err := s.store.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("session reload failed")
		return
	}
	s.adopt(sess)
}

func (s *SessionSyncer) adopt(sess *Session) {
	s.mu.Lock()
	if s.current.Same(sess) {
		s.current = sess
		s.mu.Unlock()
		return
	}
	s.current = sess
	listeners := append([]func(*Session){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(sess)
	}
}
