package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/aiga-lab/mnemosyne/pkg/cli/config"
	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
)

func TestLogger_Configure(t *testing.T) {
	t.Run("configures with defaults", func(t *testing.T) {
		cfg := config.NewLoggerForTest("info", "console", "stdout")
		closer, err := cfg.Configure()
		gt.NoError(t, err).Required()
		closer()
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		cfg := config.NewLoggerForTest("verbose", "console", "stdout")
		_, err := cfg.Configure()
		gt.Error(t, err)
	})

	t.Run("rejects unknown format", func(t *testing.T) {
		cfg := config.NewLoggerForTest("info", "xml", "stdout")
		_, err := cfg.Configure()
		gt.Error(t, err)
	})

	t.Run("writes to a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.log")
		cfg := config.NewLoggerForTest("debug", "json", path)
		closer, err := cfg.Configure()
		gt.NoError(t, err).Required()
		closer()

		_, err = os.Stat(path)
		gt.NoError(t, err)
	})
}

func TestAssistant_Configure(t *testing.T) {
	t.Run("valid budgets produce options", func(t *testing.T) {
		cfg := config.NewAssistantForTest("", 2000, 1500, 1000, 4000, 5)
		opts, err := cfg.Configure()
		gt.NoError(t, err).Required()
		gt.Bool(t, len(opts) > 0).True()
	})

	t.Run("rejects non-positive budget", func(t *testing.T) {
		cfg := config.NewAssistantForTest("", 0, 1500, 1000, 4000, 5)
		_, err := cfg.Configure()
		gt.Error(t, err)
	})

	t.Run("rejects non-positive summary interval", func(t *testing.T) {
		cfg := config.NewAssistantForTest("", 2000, 1500, 1000, 4000, 0)
		_, err := cfg.Configure()
		gt.Error(t, err)
	})

	t.Run("loads routing config from TOML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "routing.toml")
		body := `
priority = ["calendar", "gmail"]

[[vocabulary]]
service = "gmail"
cues = ["inbox", "unread"]
`
		gt.NoError(t, os.WriteFile(path, []byte(body), 0644)).Required()

		cfg := config.NewAssistantForTest(path, 2000, 1500, 1000, 4000, 5)
		opts, err := cfg.Configure()
		gt.NoError(t, err).Required()
		gt.Bool(t, len(opts) > 0).True()
	})

	t.Run("budget table in file overrides flags", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.toml")
		body := `
[budget]
conversation = 3000
user_memory = 2000
summary = 1500
total = 6000
`
		gt.NoError(t, os.WriteFile(path, []byte(body), 0644)).Required()

		cfg := config.NewAssistantForTest(path, 2000, 1500, 1000, 4000, 5)
		opts, err := cfg.Configure()
		gt.NoError(t, err).Required()
		gt.Bool(t, len(opts) > 0).True()
	})

	t.Run("rejects invalid budget in file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.toml")
		body := `
[budget]
conversation = -1
user_memory = 2000
summary = 1500
total = 6000
`
		gt.NoError(t, os.WriteFile(path, []byte(body), 0644)).Required()

		cfg := config.NewAssistantForTest(path, 2000, 1500, 1000, 4000, 5)
		_, err := cfg.Configure()
		gt.Error(t, err)
	})

	t.Run("rejects unknown service in routing config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "routing.toml")
		body := `
[[vocabulary]]
service = "spotify"
cues = ["playlist"]
`
		gt.NoError(t, os.WriteFile(path, []byte(body), 0644)).Required()

		cfg := config.NewAssistantForTest(path, 2000, 1500, 1000, 4000, 5)
		_, err := cfg.Configure()
		gt.Error(t, err)
	})

	t.Run("rejects missing routing config file", func(t *testing.T) {
		cfg := config.NewAssistantForTest("/no/such/file.toml", 2000, 1500, 1000, 4000, 5)
		_, err := cfg.Configure()
		gt.Error(t, err)
	})
}

func TestIntegrations_Configure(t *testing.T) {
	t.Run("returns token for configured service", func(t *testing.T) {
		cfg := config.NewIntegrationsForTest("gmail-token", "", "", "", "gh-token")
		tokens := cfg.Configure()

		token, err := tokens.Token(t.Context(), "user-1", types.ServiceGmail)
		gt.NoError(t, err).Required()
		gt.Value(t, token).Equal("gmail-token")

		token, err = tokens.Token(t.Context(), "user-1", types.ServiceGitHub)
		gt.NoError(t, err).Required()
		gt.Value(t, token).Equal("gh-token")
	})

	t.Run("reports unconfigured service as not connected", func(t *testing.T) {
		cfg := config.NewIntegrationsForTest("gmail-token", "", "", "", "")
		tokens := cfg.Configure()

		_, err := tokens.Token(t.Context(), "user-1", types.ServiceNotion)
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, interfaces.ErrNotConnected)).True()
	})
}

func TestGemini_Configure(t *testing.T) {
	t.Run("requires project ID", func(t *testing.T) {
		cfg := config.NewGeminiForTest("", "us-central1")
		_, err := cfg.Configure(t.Context())
		gt.Error(t, err)
	})

	t.Run("returns flags", func(t *testing.T) {
		cfg := config.NewGeminiForTest("", "")
		flags := cfg.Flags()
		gt.Value(t, len(flags)).Equal(2)
	})
}
