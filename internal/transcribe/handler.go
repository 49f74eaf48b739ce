package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fmueller/voxscribe/internal/audio"
	"github.com/fmueller/voxscribe/internal/logging"
	"github.com/fmueller/voxscribe/internal/whisper"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeNoSpeech     Outcome = "no_speech"
	OutcomeMissingInput Outcome = "missing_input"
	OutcomeError        Outcome = "error"
)

const (
	StatusSuccess      = "✅ Transcription successful!"
	StatusNoSpeech     = "🔍 No speech detected. Please speak clearly and try again."
	StatusMissingInput = "⚠️ Please record or upload audio first."
	statusErrorPrefix  = "❌ Error: "
)

const stagePattern = "voxscribe-*.wav"

var writeStagedWAV = audio.WriteWAV

// Result is what the UI renders: transcript, language label and status line.
type Result struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Status   string  `json:"status"`
	Outcome  Outcome `json:"outcome"`
	// DetectedLanguage is the raw code behind Language, set on success only.
	DetectedLanguage string `json:"detected_language,omitempty"`
}

func MissingInputResult() Result {
	return Result{Status: StatusMissingInput, Outcome: OutcomeMissingInput}
}

func NoSpeechResult() Result {
	return Result{Status: StatusNoSpeech, Outcome: OutcomeNoSpeech}
}

func ErrorResult(err error) Result {
	description := "unknown error"
	if err != nil {
		description = err.Error()
	}
	return Result{Status: statusErrorPrefix + description, Outcome: OutcomeError}
}

type Options struct {
	// Language is passed to the engine as a hint; "auto" lets it detect.
	Language string
	// TempDir holds staged audio; empty means os.TempDir().
	TempDir string
	// SilenceGate answers near-silent clips with no-speech without calling
	// the engine.
	SilenceGate          bool
	SilenceThresholdDBFS float64
	Logger               *zap.Logger
}

// Handler turns one captured clip into a Result. It keeps no per-request
// state and is safe for concurrent use.
type Handler struct {
	engine whisper.Engine
	opts   Options
}

func NewHandler(engine whisper.Engine, opts Options) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("transcription engine is required")
	}
	opts.Language = whisper.SanitizeLanguage(opts.Language)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Handler{engine: engine, opts: opts}, nil
}

func (h *Handler) EngineName() string {
	return h.engine.Name()
}

// Transcribe never fails: every problem is reported through the Result.
// A nil buffer means the caller supplied no audio.
func (h *Handler) Transcribe(ctx context.Context, buf *audio.Buffer) (result Result) {
	log := logging.FromContext(ctx, h.opts.Logger)
	if buf == nil {
		log.Info("transcription requested without audio")
		return MissingInputResult()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("transcription panicked", zap.Any("panic", r))
			result = ErrorResult(fmt.Errorf("%v", r))
		}
	}()

	started := time.Now()
	log.Info("transcribing...",
		zap.String("engine", h.engine.Name()),
		zap.Int("sample_rate", buf.SampleRate),
		zap.Int("channels", buf.Channels),
		zap.Duration("audio", buf.Duration()),
	)

	transcript, err := h.run(ctx, log, buf)
	if err != nil {
		log.Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return ErrorResult(err)
	}

	if whisper.IsBlankTranscript(transcript.Text) {
		log.Info("no speech detected", zap.Duration("elapsed", time.Since(started)))
		return NoSpeechResult()
	}

	code := strings.TrimSpace(transcript.Language)
	if code == "" {
		code = whisper.UnknownLanguage
	}

	log.Info("transcription finished", zap.Duration("elapsed", time.Since(started)), zap.String("language", code))
	return Result{
		Text:             strings.TrimSpace(transcript.Text),
		Language:         LanguageLabel(code),
		Status:           StatusSuccess,
		Outcome:          OutcomeSuccess,
		DetectedLanguage: code,
	}
}

func (h *Handler) run(ctx context.Context, log *zap.Logger, buf *audio.Buffer) (whisper.Transcript, error) {
	staged, err := os.CreateTemp(h.opts.TempDir, stagePattern)
	if err != nil {
		return whisper.Transcript{}, fmt.Errorf("create staging file: %w", err)
	}
	path := staged.Name()
	defer func() {
		if err := staged.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			log.Warn("failed to close staged audio", zap.String("path", path), zap.Error(err))
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove staged audio", zap.String("path", path), zap.Error(err))
		}
	}()

	if err := writeStagedWAV(staged, buf); err != nil {
		return whisper.Transcript{}, fmt.Errorf("stage audio: %w", err)
	}
	if err := staged.Close(); err != nil {
		return whisper.Transcript{}, fmt.Errorf("close staged audio: %w", err)
	}

	if h.opts.SilenceGate {
		if silent, metrics := audio.IsSilent(buf, h.opts.SilenceThresholdDBFS); silent {
			log.Info(
				"audio considered silent; skipping transcription",
				zap.Float64("rms_dbfs", metrics.RMSdBFS),
				zap.Float64("peak_dbfs", metrics.PeakdBFS),
				zap.Float64("threshold_dbfs", h.opts.SilenceThresholdDBFS),
			)
			return whisper.Transcript{}, nil
		}
	}

	return h.engine.Transcribe(ctx, whisper.TranscriptionRequest{
		AudioPath: path,
		Language:  h.opts.Language,
	})
}
