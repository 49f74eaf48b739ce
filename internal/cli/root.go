package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fmueller/voxscribe/internal/config"
	"github.com/fmueller/voxscribe/internal/logging"
	"github.com/fmueller/voxscribe/internal/platform"
	"github.com/fmueller/voxscribe/internal/server"
	"github.com/fmueller/voxscribe/internal/version"
	"github.com/fmueller/voxscribe/internal/whisper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"verbose":                "log.verbose",
	"json":                   "log.json",
	"log-output":             "log.output",
	"engine":                 "engine.kind",
	"model":                  "engine.model",
	"model-dir":              "engine.model_dir",
	"language":               "engine.language",
	"auto-download":          "engine.auto_download",
	"openai-base-url":        "engine.openai.base_url",
	"openai-model":           "engine.openai.model",
	"silence-gate":           "audio.silence_gate",
	"silence-threshold-dbfs": "audio.silence_threshold_dbfs",
	"temp-dir":               "audio.temp_dir",
	"host":                   "server.host",
	"port":                   "server.port",
	"max-upload-bytes":       "server.max_upload_bytes",
}

type appState struct {
	configFile string
	envFile    string
	noProgress bool

	cfg    config.Config
	logger *zap.Logger

	engineFn func(ctx context.Context) (whisper.Engine, error)
	serveFn  func(ctx context.Context, srv *server.Server) error
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&appState{})
}

func newRootCmd(app *appState) *cobra.Command {
	app.cfg = config.Defaults()
	if app.engineFn == nil {
		app.engineFn = app.buildEngine
	}
	if app.serveFn == nil {
		app.serveFn = func(ctx context.Context, srv *server.Server) error { return srv.Run(ctx) }
	}

	cmd := &cobra.Command{
		Use:           "voxscribe",
		Short:         "Transcribe speech from the browser with automatic language detection",
		Long:          "voxscribe serves a small web page that records or uploads audio and shows\nthe transcript, the detected language and a status line.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.initialize(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	defaults := app.cfg
	flags := cmd.PersistentFlags()
	flags.StringVar(&app.configFile, "config", "", "Path to a YAML config file")
	flags.StringVar(&app.envFile, "env-file", "", "Path to a .env file (default ./.env when present)")
	flags.BoolVar(&app.noProgress, "no-progress", false, "Disable progress indicators")
	bindLoggingFlags(flags, defaults)
	bindEngineFlags(flags, defaults)
	bindAudioFlags(flags, defaults)
	bindServerFlags(cmd.Flags(), defaults)

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newLanguagesCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(flags *pflag.FlagSet, defaults config.Config) {
	flags.Bool("verbose", defaults.Log.Verbose, "Enable verbose logs")
	flags.Bool("json", defaults.Log.JSON, "Enable JSON logging")
	flags.String("log-output", defaults.Log.Output, "Log destination: stderr, stdout or a file path")
}

func bindEngineFlags(flags *pflag.FlagSet, defaults config.Config) {
	flags.String("engine", defaults.Engine.Kind, "Transcription engine: bundled|openai")
	flags.String("model", defaults.Engine.Model, "Model name or model file path (bundled engine)")
	flags.String("model-dir", defaults.Engine.ModelDir, "Directory where models are stored")
	flags.String("language", defaults.Engine.Language, "Language hint (auto|en|ur|...); auto detects")
	flags.Bool("auto-download", defaults.Engine.AutoDownload, "Automatically download missing models")
	flags.String("openai-base-url", defaults.Engine.OpenAI.BaseURL, "Base URL of an OpenAI-compatible API")
	flags.String("openai-model", defaults.Engine.OpenAI.Model, "Model name for the OpenAI-compatible API")
}

func bindAudioFlags(flags *pflag.FlagSet, defaults config.Config) {
	flags.Bool("silence-gate", defaults.Audio.SilenceGate, "Answer near-silent clips with no speech without running the engine")
	flags.Float64("silence-threshold-dbfs", defaults.Audio.SilenceThresholdDBFS, "Silence gate threshold in dBFS")
	flags.String("temp-dir", defaults.Audio.TempDir, "Directory for staged audio (default system temp dir)")
}

func bindServerFlags(flags *pflag.FlagSet, defaults config.Config) {
	flags.String("host", defaults.Server.Host, "Address to listen on")
	flags.Int("port", defaults.Server.Port, "Port to listen on")
	flags.Int64("max-upload-bytes", defaults.Server.MaxUploadBytes, "Maximum request body size in bytes")
}

// initialize resolves configuration and builds the logger before any
// command runs.
func (a *appState) initialize(flags *pflag.FlagSet) error {
	configFile, err := platform.ResolveConfigFile(a.configFile)
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.Source{
		ConfigFile: configFile,
		EnvFile:    a.envFile,
		Flags:      flags,
		FlagKeys:   flagKeys,
	})
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Verbose: cfg.Log.Verbose, JSON: cfg.Log.JSON, Output: cfg.Log.Output})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	if configFile != "" {
		logger.Debug("loaded config file", zap.String("path", configFile))
	}
	return nil
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.cfg.Engine.ModelDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
