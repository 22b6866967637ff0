// README: Config loader tests (defaults, overrides, .env loading).
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.Presence.StaleAfter)
	assert.Equal(t, 10*time.Second, cfg.Notify.SinkTimeout)
	assert.False(t, cfg.FallbackPoint.IsZero())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LIVRAISON_HTTP_ADDR", ":9999")
	t.Setenv("LIVRAISON_PRESENCE_STALE_SECONDS", "45")
	t.Setenv("LIVRAISON_FALLBACK_LAT", "1.5")
	t.Setenv("LIVRAISON_FALLBACK_LNG", "2.5")
	t.Setenv("SMTP_PORT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, 45*time.Second, cfg.Presence.StaleAfter)
	assert.Equal(t, 1.5, cfg.FallbackPoint.Lat)
	assert.Equal(t, 2.5, cfg.FallbackPoint.Lng)
	assert.Equal(t, 587, cfg.Notify.SMTPPort)
}

func TestLoadRejectsNonPositiveStaleness(t *testing.T) {
	t.Setenv("LIVRAISON_PRESENCE_STALE_SECONDS", "0")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("WHATSAPP_WEBHOOK_URL=http://sink.local/hook\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("WHATSAPP_WEBHOOK_URL") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://sink.local/hook", cfg.Notify.WhatsAppURL)
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
