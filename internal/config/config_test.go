package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoad_DefaultFileIsRead(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultPath), []byte("store:\n  path: cards.db\n"), 0o600))
	t.Chdir(dir)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "cards.db", cfg.Store.Path)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_Layering(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
store:
  path: from-file.db
study:
  daily_new_limit: 5
sync:
  remote: gist
  gist:
    id: abc123
    timeout: 5s
`)
	t.Setenv("TRUEMASTERY_STORE__PATH", "from-env.db")
	t.Setenv("TRUEMASTERY_SYNC__GIST__TOKEN", "secret")
	t.Setenv("TRUEMASTERY_STUDY__DAILY_NEW_LIMIT", "7")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--db", "from-flag.db", "--user", "dana"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "untouched keys keep defaults")
	assert.Equal(t, "from-flag.db", cfg.Store.Path)
	assert.Equal(t, 7, cfg.Study.DailyNewLimit)
	assert.Equal(t, "dana", cfg.Sync.UserID)
	assert.Equal(t, RemoteGist, cfg.Sync.Remote)
	assert.Equal(t, "abc123", cfg.Sync.Gist.ID)
	assert.Equal(t, "secret", cfg.Sync.Gist.Token)
	assert.Equal(t, 5*time.Second, cfg.Sync.Gist.Timeout)
	assert.Equal(t, "https://api.github.com", cfg.Sync.Gist.APIURL)
	assert.NoError(t, cfg.Sync.Validate())
}

func TestLoad_UnsetFlagsDoNotOverride(t *testing.T) {
	path := writeFile(t, "server:\n  addr: \":9000\"\n")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestLoad_LogSettingsAreCaseInsensitive(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TRUEMASTERY_LOG__LEVEL", "DEBUG")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--log-format", "JSON"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"log level", "log:\n  level: loud\n"},
		{"log format", "log:\n  format: xml\n"},
		{"limit below unlimited", "study:\n  daily_new_limit: -2\n"},
		{"remote kind", "sync:\n  remote: ftp\n"},
		{"empty store path", "store:\n  path: \"\"\n"},
		{"gist api url", "sync:\n  gist:\n    api_url: not a url\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content), nil)
			assert.Error(t, err)
		})
	}
}

func TestSyncConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SyncConfig)
		wantErr string
	}{
		{"git without url", func(s *SyncConfig) {}, "git.url"},
		{"git with url", func(s *SyncConfig) { s.Git.URL = "https://example.com/r.git" }, ""},
		{"gist without id", func(s *SyncConfig) { s.Remote = RemoteGist }, "gist.id"},
		{"gist with id", func(s *SyncConfig) { s.Remote = RemoteGist; s.Gist.ID = "g" }, ""},
		{"http without endpoint", func(s *SyncConfig) { s.Remote = RemoteHTTP }, "http.endpoint"},
		{"http with endpoint", func(s *SyncConfig) {
			s.Remote = RemoteHTTP
			s.HTTP.Endpoint = "http://localhost:8080/api/cloud-sync"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default().Sync
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
