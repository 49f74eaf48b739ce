package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Source{})
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, 7860, cfg.Server.Port)
	require.EqualValues(t, 50<<20, cfg.Server.MaxUploadBytes)
	require.Equal(t, 10*time.Minute, cfg.Server.WriteTimeout)
	require.Equal(t, "bundled", cfg.Engine.Kind)
	require.Equal(t, "large-v3", cfg.Engine.Model)
	require.True(t, cfg.Engine.AutoDownload)
	require.Equal(t, "auto", cfg.Engine.Language)
	require.Equal(t, "whisper-1", cfg.Engine.OpenAI.Model)
	require.False(t, cfg.Audio.SilenceGate)
	require.Equal(t, -65.0, cfg.Audio.SilenceThresholdDBFS)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
server:
  port: 9000
  host: 0.0.0.0
engine:
  kind: openai
  model: small
  openai:
    base_url: http://localhost:8000/v1
audio:
  silence_gate: true
`), 0o644))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("VOXSCRIBE_ENGINE_OPENAI_API_KEY=from-dotenv\n"), 0o644))

	t.Setenv("VOXSCRIBE_SERVER_PORT", "9100")
	t.Setenv("VOXSCRIBE_ENGINE_LANGUAGE", "ur")
	t.Cleanup(func() { _ = os.Unsetenv("VOXSCRIBE_ENGINE_OPENAI_API_KEY") })

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("server.port", 7860, "")
	flags.String("engine.model", "large-v3", "")
	flags.Bool("unrelated", false, "")
	flags.Bool("gate", false, "")
	flags.Float64("threshold", -65, "")
	require.NoError(t, flags.Parse([]string{"--server.port=9200", "--threshold=-50"}))

	cfg, err := Load(Source{
		ConfigFile: configFile,
		EnvFile:    envFile,
		Flags:      flags,
		FlagKeys:   map[string]string{"gate": "audio.silence_gate", "threshold": "audio.silence_threshold_dbfs"},
	})
	require.NoError(t, err)

	require.Equal(t, 9200, cfg.Server.Port, "changed flag beats env and file")
	require.Equal(t, "0.0.0.0", cfg.Server.Host, "file beats default")
	require.Equal(t, "small", cfg.Engine.Model, "unchanged flag does not shadow file")
	require.Equal(t, "ur", cfg.Engine.Language, "env beats default")
	require.Equal(t, "openai", cfg.Engine.Kind)
	require.Equal(t, "from-dotenv", cfg.Engine.OpenAI.APIKey)
	require.Equal(t, "http://localhost:8000/v1", cfg.Engine.OpenAI.BaseURL)
	require.True(t, cfg.Audio.SilenceGate, "unchanged mapped flag does not shadow file")
	require.Equal(t, -50.0, cfg.Audio.SilenceThresholdDBFS, "mapped flag overrides default")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("VOXSCRIBE_ENGINE_KIND", "vosk")

	_, err := Load(Source{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid configuration")
	require.Contains(t, err.Error(), "Kind")
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Parallel()

	_, err := Load(Source{ConfigFile: filepath.Join(t.TempDir(), "missing.yml")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "read config file")
}

func TestValidateRejectsPositiveSilenceThreshold(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server: ServerConfig{Port: 80, MaxUploadBytes: 1},
		Engine: EngineConfig{Kind: "bundled"},
		Audio:  AudioConfig{SilenceThresholdDBFS: 3},
	}
	require.Error(t, cfg.Validate())

	cfg.Audio.SilenceThresholdDBFS = -40
	require.NoError(t, cfg.Validate())
}

func TestDefaultsMatchLoadWithoutSources(t *testing.T) {
	t.Parallel()

	defaults := Defaults()
	require.Equal(t, 7860, defaults.Server.Port)
	require.Equal(t, "large-v3", defaults.Engine.Model)
	require.NoError(t, defaults.Validate())
}
