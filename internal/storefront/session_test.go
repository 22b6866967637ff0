package storefront

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func newTestStore(t *testing.T) (*SessionStore, *MemoryStorage, *MemoryStorage) {
	t.Helper()
	persistent, scoped := NewMemoryStorage(), NewMemoryStorage()
	return NewSessionStore(persistent, scoped), persistent, scoped
}

func TestSessionExpiryFromToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	sess := Session{AccessToken: signedToken(t, exp), UserID: "user-1"}

	got, ok := sess.Expiry()
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = Session{AccessToken: "opaque", UserID: "user-1"}.Expiry()
	assert.False(t, ok)

	explicit := Session{AccessToken: "opaque", UserID: "user-1", ExpiresAt: exp.Unix()}
	got, ok = explicit.Expiry()
	require.True(t, ok)
	assert.True(t, got.Equal(exp))
}

func TestSaveWritesAllLocations(t *testing.T) {
	ctx := context.Background()
	store, persistent, scoped := newTestStore(t)
	sess := &Session{AccessToken: signedToken(t, time.Now().Add(time.Hour)), UserID: "user-1"}

	require.NoError(t, store.Save(ctx, sess))

	for _, key := range []string{PrimaryKey, SecondaryKey} {
		_, ok, _ := persistent.Get(ctx, key)
		assert.True(t, ok, key)
	}
	_, ok, _ := scoped.Get(ctx, BackupKey)
	assert.True(t, ok)

	require.NoError(t, store.Save(ctx, nil))
	_, ok, _ = persistent.Get(ctx, PrimaryKey)
	assert.False(t, ok)
}

func TestLoadFallsBackAndHeals(t *testing.T) {
	ctx := context.Background()
	store, persistent, scoped := newTestStore(t)
	sess := Session{AccessToken: signedToken(t, time.Now().Add(time.Hour)), UserID: "user-1"}
	raw, err := json.Marshal(sess)
	require.NoError(t, err)

	require.NoError(t, persistent.Set(ctx, PrimaryKey, "{not json"))
	require.NoError(t, scoped.Set(ctx, BackupKey, string(raw)))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)

	healed, ok, _ := persistent.Get(ctx, PrimaryKey)
	require.True(t, ok)
	assert.Equal(t, string(raw), healed)
	healed, ok, _ = persistent.Get(ctx, SecondaryKey)
	require.True(t, ok)
	assert.Equal(t, string(raw), healed)
}

func TestLoadPrefersPrimary(t *testing.T) {
	ctx := context.Background()
	store, persistent, scoped := newTestStore(t)
	exp := time.Now().Add(time.Hour)
	primary, _ := json.Marshal(Session{AccessToken: signedToken(t, exp), UserID: "primary"})
	backup, _ := json.Marshal(Session{AccessToken: signedToken(t, exp), UserID: "backup"})

	require.NoError(t, persistent.Set(ctx, PrimaryKey, string(primary)))
	require.NoError(t, scoped.Set(ctx, BackupKey, string(backup)))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "primary", got.UserID)
}

func TestLoadPurgesExpiredSession(t *testing.T) {
	ctx := context.Background()
	store, persistent, scoped := newTestStore(t)
	sess := &Session{AccessToken: signedToken(t, time.Now().Add(time.Hour)), UserID: "user-1"}
	require.NoError(t, store.Save(ctx, sess))

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, key := range []string{PrimaryKey, SecondaryKey} {
		_, ok, _ := persistent.Get(ctx, key)
		assert.False(t, ok, key)
	}
	_, ok, _ := scoped.Get(ctx, BackupKey)
	assert.False(t, ok)
}

func TestLoadTreatsIncompleteEntriesAsAbsent(t *testing.T) {
	ctx := context.Background()
	store, persistent, scoped := newTestStore(t)

	require.NoError(t, persistent.Set(ctx, PrimaryKey, `{"user_id":"user-1"}`))
	require.NoError(t, scoped.Set(ctx, BackupKey, `{"access_token":"opaque"`))
	require.NoError(t, persistent.Set(ctx, SecondaryKey, `[]`))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLoadTrustsSessionWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	store, persistent, scoped := newTestStore(t)

	require.NoError(t, scoped.Set(ctx, BackupKey, `{"access_token":"opaque","user_id":"user-1"}`))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "opaque", got.AccessToken)

	_, ok, _ := persistent.Get(ctx, PrimaryKey)
	assert.True(t, ok)
}

func TestOpaqueSessionSurvivesReload(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)
	sess := &Session{AccessToken: "opaque", UserID: "user-1"}
	require.NoError(t, NewSessionSyncer(store, nil, 0).SetSession(ctx, sess))

	restored, err := NewSessionSyncer(store, nil, 0).Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, "user-1", restored.UserID)
}
