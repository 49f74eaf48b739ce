package cli

import (
	"context"
	"fmt"

	"github.com/fmueller/voxscribe/internal/download"
	"github.com/fmueller/voxscribe/internal/platform"
	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/fmueller/voxscribe/internal/whisper"
	"go.uber.org/zap"
)

func (a *appState) newHandler(ctx context.Context) (*transcribe.Handler, error) {
	engine, err := a.engineFn(ctx)
	if err != nil {
		return nil, err
	}

	stagingDir, err := platform.ResolveStagingDir(a.cfg.Audio.TempDir)
	if err != nil {
		return nil, err
	}

	return transcribe.NewHandler(engine, transcribe.Options{
		Language:             a.cfg.Engine.Language,
		TempDir:              stagingDir,
		SilenceGate:          a.cfg.Audio.SilenceGate,
		SilenceThresholdDBFS: a.cfg.Audio.SilenceThresholdDBFS,
		Logger:               a.log(),
	})
}

func (a *appState) buildEngine(ctx context.Context) (whisper.Engine, error) {
	switch a.cfg.Engine.Kind {
	case whisper.OpenAIEngineName:
		openAI := a.cfg.Engine.OpenAI
		a.log().Info("using OpenAI-compatible transcription API", zap.String("model", openAI.Model), zap.String("base_url", openAI.BaseURL))
		return whisper.NewOpenAIEngine(whisper.OpenAIConfig{
			BaseURL:    openAI.BaseURL,
			APIKey:     openAI.APIKey,
			Model:      openAI.Model,
			MaxRetries: openAI.MaxRetries,
		}, a.log()), nil
	default:
		modelDir, err := a.modelStorageDir()
		if err != nil {
			return nil, err
		}
		resolved, err := whisper.ResolveModel(a.cfg.Engine.Model, modelDir)
		if err != nil {
			return nil, err
		}

		// whisper-cli is checked before any model download starts.
		engine, err := whisper.NewBundledEngine(resolved.Path, a.log())
		if err != nil {
			return nil, err
		}
		if err := a.ensureModelAvailable(ctx, resolved); err != nil {
			return nil, err
		}
		a.warnIfEnglishOnly(resolved)
		return engine, nil
	}
}

func (a *appState) ensureModelAvailable(ctx context.Context, resolved whisper.ResolvedModel) error {
	if !resolved.NeedsDownload {
		return nil
	}

	if !a.cfg.Engine.AutoDownload {
		return fmt.Errorf("model %q is missing at %s; run `voxscribe setup --model %s` or use --auto-download=true", resolved.Name, resolved.Path, resolved.Name)
	}

	a.log().Info("model not found, downloading", zap.String("model", resolved.Name), zap.Int("size_mb", resolved.SizeMB), zap.String("destination", resolved.Path))
	if err := download.DownloadFile(ctx, download.Options{
		URL:            resolved.URL,
		Destination:    resolved.Path,
		ExpectedSHA256: resolved.SHA256,
		ChecksumURL:    resolved.SHA256URL,
		Description:    "downloading " + resolved.Name,
		NoProgress:     a.noProgress,
		Logger:         a.log(),
	}); err != nil {
		return fmt.Errorf("download model %q: %w", resolved.Name, err)
	}
	return nil
}

func (a *appState) warnIfEnglishOnly(resolved whisper.ResolvedModel) {
	if resolved.EnglishOnly {
		a.log().Warn("model is English-only; every clip will be reported as English", zap.String("model", resolved.Path))
	}
}
