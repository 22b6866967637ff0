// README: Storefront session persistence across three storage locations with one read path and one write path.
package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const (
	PrimaryKey   = "livraison-auth-token"
	BackupKey    = "livraison-auth-token-backup"
	SecondaryKey = "livraison-auth-session"
)

// Session is the authenticated state the storefront keeps between loads.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	UserID       string `json:"user_id"`
	Email        string `json:"email,omitempty"`
	// ExpiresAt is unix seconds; zero means read exp from the access token.
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

// Expiry returns when the session stops being valid. ok is false when
// neither ExpiresAt nor an exp claim is present.
func (s Session) Expiry() (time.Time, bool) {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0), true
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (s Session) usable() bool {
	return s.AccessToken != "" && s.UserID != ""
}

func (s *Session) Same(o *Session) bool {
	if s == nil || o == nil {
		return s == nil && o == nil
	}
	return s.AccessToken == o.AccessToken && s.UserID == o.UserID
}

type location struct {
	name    string
	key     string
	storage Storage
}

// SessionStore writes the session to every location and reads from the
// first one holding a valid, unexpired session.
type SessionStore struct {
	locations []location
	now       func() time.Time
}

// NewSessionStore uses persistent for the primary and secondary keys and
// sessionScoped for the backup key.
func NewSessionStore(persistent, sessionScoped Storage) *SessionStore {
	return &SessionStore{
		locations: []location{
			{"primary", PrimaryKey, persistent},
			{"backup", BackupKey, sessionScoped},
			{"secondary", SecondaryKey, persistent},
		},
		now: time.Now,
	}
}

// Save writes sess to all three locations. A nil session clears them.
func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return s.Clear(ctx)
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	var errs []error
	for _, loc := range s.locations {
		if err := loc.storage.Set(ctx, loc.key, string(raw)); err != nil {
			errs = append(errs, err)
		}
	}
	// One surviving copy is enough to recover from.
	if len(errs) == len(s.locations) {
		return errors.Join(errs...)
	}
	return nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	var errs []error
	for _, loc := range s.locations {
		if err := loc.storage.Delete(ctx, loc.key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load recovers the session from the locations in priority order. Corrupt or
// incomplete entries count as absent. A session without any expiry is
// trusted; an expired one is purged from all locations and nil is returned. A recovered session is copied back to the
// locations that lacked it.
func (s *SessionStore) Load(ctx context.Context) (*Session, error) {
	for i, loc := range s.locations {
		raw, ok, err := loc.storage.Get(ctx, loc.key)
		if err != nil {
			log.Debug().Err(err).Str("component", "session").Str("location", loc.name).Msg("read failed")
			continue
		}
		if !ok || raw == "" {
			continue
		}
		var sess Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil || !sess.usable() {
			log.Debug().Str("component", "session").Str("location", loc.name).Msg("ignoring corrupt session")
			continue
		}
		if exp, ok := sess.Expiry(); ok && !s.now().Before(exp) {
			log.Info().Str("component", "session").Str("user_id", sess.UserID).Msg("session expired; purging")
			return nil, s.Clear(ctx)
		}
		s.heal(ctx, i, raw)
		return &sess, nil
	}
	return nil, nil
}

func (s *SessionStore) heal(ctx context.Context, from int, raw string) {
	for i, loc := range s.locations {
		if i == from {
			continue
		}
		cur, ok, err := loc.storage.Get(ctx, loc.key)
		if err == nil && ok && cur == raw {
			continue
		}
		if err := loc.storage.Set(ctx, loc.key, raw); err != nil {
			log.Debug().Err(err).Str("component", "session").Str("location", loc.name).Msg("heal failed")
		}
	}
}
