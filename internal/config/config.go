// Package config loads voxscribe settings from defaults, an optional YAML
// file, a .env file, VOXSCRIBE_* environment variables and bound CLI flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "VOXSCRIBE"

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Engine EngineConfig `mapstructure:"engine"`
	Audio  AudioConfig  `mapstructure:"audio"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" validate:"gt=0"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

type EngineConfig struct {
	Kind         string       `mapstructure:"kind" validate:"oneof=bundled openai"`
	Model        string       `mapstructure:"model"`
	ModelDir     string       `mapstructure:"model_dir"`
	AutoDownload bool         `mapstructure:"auto_download"`
	Language     string       `mapstructure:"language"`
	OpenAI       OpenAIConfig `mapstructure:"openai"`
}

type OpenAIConfig struct {
	BaseURL    string `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max_retries" validate:"gte=0"`
}

type AudioConfig struct {
	TempDir              string  `mapstructure:"temp_dir"`
	SilenceGate          bool    `mapstructure:"silence_gate"`
	SilenceThresholdDBFS float64 `mapstructure:"silence_threshold_dbfs" validate:"lte=0"`
}

type LogConfig struct {
	Verbose bool   `mapstructure:"verbose"`
	JSON    bool   `mapstructure:"json"`
	Output  string `mapstructure:"output"`
}

// Source names the optional files to read and the flags that override them.
type Source struct {
	ConfigFile string
	EnvFile    string
	Flags      *pflag.FlagSet
	// FlagKeys maps flag names to config keys; unmapped flags bind by name.
	FlagKeys map[string]string
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 7860)
	v.SetDefault("server.max_upload_bytes", 50<<20)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("engine.kind", "bundled")
	v.SetDefault("engine.model", "large-v3")
	v.SetDefault("engine.model_dir", "")
	v.SetDefault("engine.auto_download", true)
	v.SetDefault("engine.language", "auto")
	v.SetDefault("engine.openai.base_url", "")
	v.SetDefault("engine.openai.api_key", "")
	v.SetDefault("engine.openai.model", "whisper-1")
	v.SetDefault("engine.openai.max_retries", 2)

	v.SetDefault("audio.temp_dir", "")
	v.SetDefault("audio.silence_gate", false)
	v.SetDefault("audio.silence_threshold_dbfs", -65.0)

	v.SetDefault("log.verbose", false)
	v.SetDefault("log.json", false)
	v.SetDefault("log.output", "stderr")
}

// Load resolves the configuration. Flags in src.Flags are bound to config
// keys, so --model mapped to engine.model overrides the YAML key
// engine.model. Flags left unset on the command line do not shadow lower
// layers.
func Load(src Source) (Config, error) {
	v := viper.New()
	SetDefaults(v)

	if src.ConfigFile != "" {
		v.SetConfigFile(src.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", src.ConfigFile, err)
		}
	}

	if err := loadEnvFile(src.EnvFile); err != nil {
		return Config{}, err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if src.Flags != nil {
		var bindErr error
		src.Flags.VisitAll(func(f *pflag.Flag) {
			key := f.Name
			if mapped, ok := src.FlagKeys[f.Name]; ok {
				key = mapped
			}
			if bindErr != nil || !isKnownKey(v, key) {
				return
			}
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			messages := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				messages = append(messages, fmt.Sprintf("%s fails %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// loadEnvFile loads an explicit .env path, or ./.env when present. Variables
// already set in the environment win.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("load env file .env: %w", err)
		}
	}
	return nil
}

func isKnownKey(v *viper.Viper, key string) bool {
	for _, known := range v.AllKeys() {
		if known == key {
			return true
		}
	}
	return false
}

// Defaults returns the configuration with no file, env or flag applied.
func Defaults() Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}
