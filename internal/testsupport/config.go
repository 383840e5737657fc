package testsupport

import (
	"path/filepath"
	"testing"

	"autocheck/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ProfilePath = filepath.Join(base, "data", "profile.json")
	cfgVal.Paths.HistoryDB = filepath.Join(base, "data", "history.db")
	cfgVal.Paths.APIBind = ""
	cfgVal.CheckIn.BaseURL = "http://127.0.0.1:1"
	cfgVal.CheckIn.RetryBackoffMS = 0
	cfgVal.Schedule.WatchProfile = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithBaseURL points the check-in client at url, typically an httptest server.
func WithBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.CheckIn.BaseURL = url
	}
}

// WithWeComAPI points the notification provider at url.
func WithWeComAPI(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.WeCom.APIBaseURL = url
	}
}

// WithAPIBind enables the HTTP status API on addr.
func WithAPIBind(addr, token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIBind = addr
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// WithProfileWatch enables the fsnotify profile watcher.
func WithProfileWatch() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Schedule.WatchProfile = true
	}
}
