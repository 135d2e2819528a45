package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mapsync/internal/session"
)

const fullConfig = `
domain: caltopo.com
map_id: ABC123
signed: true
credentials:
  id: CRED01
  key: c3VwZXItc2VjcmV0LWtleS1tYXRlcmlhbC0wMDAwMDA=
  account_id: ACCT9
default_blocking: true
coord_check: modify
sync:
  interval: 3s
  since_skew: 250ms
retry_backoff: 2s
journal: /var/lib/mapsync/journal.db
log_level: debug
`

func TestLoad_FullFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	sc := cfg.SessionConfig()
	assert.Equal(t, "caltopo.com", sc.Domain)
	assert.Equal(t, "ABC123", sc.MapID)
	assert.True(t, sc.Signed)
	assert.Equal(t, "CRED01", sc.ID)
	assert.Equal(t, "ACCT9", sc.AccountID)
	assert.True(t, sc.DefaultBlocking)
	assert.Equal(t, session.CoordCheckModify, sc.CoordCheck)
	assert.True(t, sc.Sync, "sync defaults to enabled")
	assert.Equal(t, 3*time.Second, sc.SyncInterval)
	assert.Equal(t, 250*time.Millisecond, sc.SinceSkew)
	assert.Equal(t, 2*time.Second, sc.RetryBackoff)
	assert.Zero(t, sc.RequestTimeout)

	assert.Equal(t, "/var/lib/mapsync/journal.db", cfg.Journal)
	assert.Equal(t, "DEBUG", cfg.Level().String())
}

func TestParse_SyncDisabled(t *testing.T) {
	cfg, err := Parse([]byte("domain: localhost:8080\nscheme: http\nsync:\n  enabled: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.SessionConfig().Sync)
	assert.Equal(t, "INFO", cfg.Level().String())
}

func TestParse_CredentialsFromEnv(t *testing.T) {
	t.Setenv(EnvID, "ENVID")
	t.Setenv(EnvKey, "a2V5")

	cfg, err := Parse([]byte("domain: caltopo.com\nsigned: true\n"))
	require.NoError(t, err)
	assert.Equal(t, "ENVID", cfg.Credentials.ID)
	assert.Equal(t, "a2V5", cfg.Credentials.Key)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing domain", "map_id: ABC\n"},
		{"unknown key", "domain: caltopo.com\nmapid: ABC\n"},
		{"bad map id", "domain: caltopo.com\nmap_id: not-valid!\n"},
		{"bad coord check", "domain: caltopo.com\ncoord_check: fix\n"},
		{"bad duration", "domain: caltopo.com\nretry_backoff: soon\n"},
		{"number as duration", "domain: caltopo.com\nsync:\n  interval: 5\n"},
		{"zero api version", "domain: caltopo.com\napi_version: 0\n"},
		{"signed without key", "domain: caltopo.com\nsigned: true\ncredentials:\n  id: X\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvID, "")
			t.Setenv(EnvKey, "")

			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
