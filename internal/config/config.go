// Package config loads the application configuration from defaults, an
// optional YAML file, TRUEMASTERY_* environment variables and command-line
// flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/aheige321/true-mastery/internal/domain"
	"github.com/aheige321/true-mastery/internal/remote"
)

const (
	// DefaultPath is read when no config file is named. It may be absent.
	DefaultPath = "truemastery.yaml"

	// EnvPrefix starts every environment override. A double underscore
	// separates nesting levels: TRUEMASTERY_SYNC__GIST__TOKEN sets
	// sync.gist.token.
	EnvPrefix = "TRUEMASTERY_"
)

// Remote kinds.
const (
	RemoteGit  = "git"
	RemoteGist = "gist"
	RemoteHTTP = "http"
)

// Config holds all application configuration.
type Config struct {
	Log    LogConfig    `koanf:"log"`
	Store  StoreConfig  `koanf:"store"`
	Study  StudyConfig  `koanf:"study"`
	Sync   SyncConfig   `koanf:"sync"`
	Server ServerConfig `koanf:"server"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type StoreConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type StudyConfig struct {
	// DailyNewLimit seeds the limit when the replica's settings carry none.
	DailyNewLimit int `koanf:"daily_new_limit" validate:"gte=-1"`
}

type SyncConfig struct {
	UserID string     `koanf:"user_id" validate:"required"`
	Remote string     `koanf:"remote" validate:"oneof=git gist http"`
	Git    GitConfig  `koanf:"git"`
	Gist   GistConfig `koanf:"gist"`
	HTTP   HTTPConfig `koanf:"http"`
}

type GitConfig struct {
	URL       string `koanf:"url"`
	Branch    string `koanf:"branch"`
	Directory string `koanf:"directory"`
	Username  string `koanf:"username"`
	Token     string `koanf:"token"`
}

type GistConfig struct {
	ID      string        `koanf:"id"`
	Token   string        `koanf:"token"`
	APIURL  string        `koanf:"api_url" validate:"omitempty,url"`
	Timeout time.Duration `koanf:"timeout" validate:"gte=0"`
}

type HTTPConfig struct {
	Endpoint string        `koanf:"endpoint" validate:"omitempty,url"`
	Timeout  time.Duration `koanf:"timeout" validate:"gte=0"`
}

type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Log:   LogConfig{Level: "info", Format: "text"},
		Store: StoreConfig{Path: "truemastery.db"},
		Study: StudyConfig{DailyNewLimit: domain.DefaultDailyNewLimit},
		Sync: SyncConfig{
			UserID: remote.DefaultUserID,
			Remote: RemoteGit,
			Git:    GitConfig{Branch: "main", Directory: ".truemastery-remote", Username: "git"},
			Gist:   GistConfig{APIURL: "https://api.github.com", Timeout: 30 * time.Second},
			HTTP:   HTTPConfig{Timeout: 30 * time.Second},
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"db":          "store.path",
	"log-level":   "log.level",
	"log-format":  "log.format",
	"user":        "sync.user_id",
	"remote":      "sync.remote",
	"daily-limit": "study.daily_new_limit",
	"addr":        "server.addr",
}

// RegisterFlags adds the global flags Load understands to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	def := Default()
	flags.StringP("config", "c", "", "path to a YAML config file (default "+DefaultPath+" if present)")
	flags.String("db", def.Store.Path, "path to the SQLite database file")
	flags.String("log-level", def.Log.Level, "log level: debug, info, warn or error")
	flags.String("log-format", def.Log.Format, "log format: text or json")
	flags.String("user", def.Sync.UserID, "tenant key in the remote replica")
	flags.String("remote", def.Sync.Remote, "remote kind: git, gist or http")
	flags.Int("daily-limit", def.Study.DailyNewLimit, "default daily new-card limit, -1 for unlimited")
	flags.String("addr", def.Server.Addr, "listen address for serve")
}

// Load builds the configuration. An empty path means DefaultPath, which may
// be missing; a named file must exist. flags may be nil; only flags the
// user set override earlier layers.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		flagKey := func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKey), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks field ranges. The remote location is checked separately
// by SyncConfig.Validate so commands that never sync work without one.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Validate checks that the selected remote has its location configured.
// Tokens are not checked here; a missing one surfaces as remote.ErrAuth
// when syncing.
func (s SyncConfig) Validate() error {
	if err := validateSync.Struct(s); err != nil {
		return fmt.Errorf("invalid sync config: %w", err)
	}
	return nil
}

var (
	validate     = newValidator()
	validateSync = newValidator()
)

func init() {
	validateSync.RegisterStructValidation(validateRemote, SyncConfig{})
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("koanf")
	})
	return v
}

func validateRemote(sl validator.StructLevel) {
	s := sl.Current().Interface().(SyncConfig)
	switch s.Remote {
	case RemoteGit:
		if s.Git.URL == "" {
			sl.ReportError(s.Git.URL, "git.url", "URL", "required_if", "remote git")
		}
	case RemoteGist:
		if s.Gist.ID == "" {
			sl.ReportError(s.Gist.ID, "gist.id", "ID", "required_if", "remote gist")
		}
	case RemoteHTTP:
		if s.HTTP.Endpoint == "" {
			sl.ReportError(s.HTTP.Endpoint, "http.endpoint", "Endpoint", "required_if", "remote http")
		}
	}
}
