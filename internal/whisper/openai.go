package whisper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

const (
	OpenAIEngineName = "openai"

	defaultOpenAIModel = "whisper-1"
)

// OpenAIConfig points the engine at OpenAI or any server exposing the same
// /audio/transcriptions endpoint.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
}

type OpenAIEngine struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAIEngine(cfg OpenAIConfig, logger *zap.Logger) *OpenAIEngine {
	if logger == nil {
		logger = zap.NewNop()
	}

	requestOpts := make([]option.RequestOption, 0, 3)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if strings.TrimSpace(cfg.APIKey) != "" {
		requestOpts = append(requestOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.MaxRetries >= 0 {
		requestOpts = append(requestOpts, option.WithMaxRetries(cfg.MaxRetries))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIEngine{
		client: openai.NewClient(requestOpts...),
		model:  model,
		logger: logger,
	}
}

func (e *OpenAIEngine) Name() string { return OpenAIEngineName }

func (e *OpenAIEngine) Transcribe(ctx context.Context, req TranscriptionRequest) (Transcript, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Transcript{}, errors.New("audio path is required")
	}

	file, err := os.Open(req.AudioPath)
	if err != nil {
		return Transcript{}, fmt.Errorf("open staged audio: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	params := openai.AudioTranscriptionNewParams{
		File:           file,
		Model:          openai.AudioModel(e.model),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	}
	if lang := SanitizeLanguage(req.Language); lang != "auto" {
		params.Language = openai.String(lang)
	}

	e.logger.Debug("requesting transcription", zap.String("model", e.model), zap.String("language", SanitizeLanguage(req.Language)))
	response, err := e.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return Transcript{}, fmt.Errorf("openai transcription: %w", err)
	}
	if response == nil {
		return Transcript{}, errors.New("openai transcription returned no response")
	}

	return Transcript{
		Text:     strings.TrimSpace(response.Text),
		Language: NormalizeLanguage(response.Language),
	}, nil
}
