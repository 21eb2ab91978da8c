package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")
	t.Setenv("MEDIBOOK_STORE", "")
	t.Setenv("MEDIBOOK_STORE_PATH", "")
	t.Setenv("MEDIBOOK_API_URL", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5000", cfg.APIURL)
	require.Equal(t, 30*time.Second, cfg.RequestTimeout)
	require.Equal(t, StoreFile, cfg.Store)
	require.Equal(t, "credentials.json", filepath.Base(cfg.StorePath))
	require.Equal(t, "medibook", filepath.Base(filepath.Dir(cfg.StorePath)))
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medibook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_url: https://api.clinic.example
request_timeout: 5s
store: sqlite
rate_limit: 60
watch: true
`), 0o600))

	t.Setenv(ConfigFileEnv, path)
	t.Setenv("MEDIBOOK_API_URL", "")
	t.Setenv("MEDIBOOK_STORE", "")
	t.Setenv("MEDIBOOK_STORE_PATH", "")
	t.Setenv("MEDIBOOK_REQUEST_TIMEOUT", "12")
	t.Setenv("MEDIBOOK_RATE_LIMIT", "")
	t.Setenv("MEDIBOOK_WATCH", "nonsense")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "https://api.clinic.example", cfg.APIURL)
	require.Equal(t, 12*time.Second, cfg.RequestTimeout, "env wins over the file")
	require.Equal(t, StoreSQLite, cfg.Store)
	require.Equal(t, "credentials.db", filepath.Base(cfg.StorePath))
	require.Equal(t, 60, cfg.RateLimit)
	require.True(t, cfg.Watch, "unparseable env keeps the file value")
}

func TestLoadConfigBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medibook.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_url: [unterminated"), 0o600))
	t.Setenv(ConfigFileEnv, path)

	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestGetEnvDurationOrDefault(t *testing.T) {
	cases := map[string]time.Duration{
		"":      time.Minute,
		"90s":   90 * time.Second,
		"2":     2 * time.Second,
		"never": time.Minute,
	}
	for value, want := range cases {
		t.Setenv("MEDIBOOK_TEST_DURATION", value)
		require.Equal(t, want, getEnvDurationOrDefault("MEDIBOOK_TEST_DURATION", time.Minute), value)
	}
}
