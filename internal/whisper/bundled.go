package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fmueller/voxscribe/internal/platform"
	"go.uber.org/zap"
)

const (
	BundledEngineName = "bundled"
	WhisperPathEnv    = "VOXSCRIBE_WHISPER_PATH"
)

type BundledEngine struct {
	Executable string
	ModelPath  string
	Logger     *zap.Logger
}

func NewBundledEngine(modelPath string, logger *zap.Logger) (*BundledEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("model path is required")
	}

	if override := strings.TrimSpace(os.Getenv(WhisperPathEnv)); override != "" {
		if err := ensureExecutable(override); err != nil {
			return nil, fmt.Errorf("%s is not executable: %w", WhisperPathEnv, err)
		}
		return &BundledEngine{Executable: override, ModelPath: modelPath, Logger: logger}, nil
	}

	selfExe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve voxscribe executable path: %w", err)
	}

	whisperExe, err := ResolveBundledEnginePath(selfExe)
	if err != nil {
		return nil, err
	}

	return &BundledEngine{Executable: whisperExe, ModelPath: modelPath, Logger: logger}, nil
}

func ResolveBundledEnginePath(selfExecutable string) (string, error) {
	for _, candidate := range EnginePathCandidates(selfExecutable) {
		if err := ensureExecutable(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("bundled whisper engine not found near %s; install whisper-cli at ../libexec/whisper/%s or set %s", selfExecutable, engineBinaryName(), WhisperPathEnv)
}

func EnginePathCandidates(selfExecutable string) []string {
	binDir := filepath.Dir(selfExecutable)
	engineName := engineBinaryName()
	hostTarget := platform.CurrentRuntime().Target()

	return []string{
		filepath.Join(binDir, "..", "libexec", "whisper", engineName),
		filepath.Join(binDir, "libexec", "whisper", engineName),
		filepath.Join(binDir, "packaging", "whisper", hostTarget, engineName),
		filepath.Join(binDir, engineName),
	}
}

func (b *BundledEngine) Name() string { return BundledEngineName }

func (b *BundledEngine) Transcribe(ctx context.Context, req TranscriptionRequest) (Transcript, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Transcript{}, errors.New("audio path is required")
	}
	if strings.TrimSpace(b.ModelPath) == "" {
		return Transcript{}, errors.New("model path is required")
	}

	if err := ensureExecutable(b.Executable); err != nil {
		return Transcript{}, fmt.Errorf("bundled whisper engine missing or not executable: %w", err)
	}

	outDir, err := os.MkdirTemp("", "voxscribe-whisper-*")
	if err != nil {
		return Transcript{}, fmt.Errorf("create whisper output directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(outDir); err != nil {
			b.log().Warn("failed to remove whisper output", zap.String("dir", outDir), zap.Error(err))
		}
	}()

	outBase := filepath.Join(outDir, "transcript")
	args := []string{
		"-m", b.ModelPath,
		"-f", req.AudioPath,
		"-nt", "-np",
		"-oj", "-of", outBase,
		"-l", SanitizeLanguage(req.Language),
	}

	cmd := exec.CommandContext(ctx, b.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	b.log().Debug("running whisper engine", zap.String("engine", b.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		errText := strings.TrimSpace(stderr.String())
		if isMissingSharedLibraryError(errText) {
			return Transcript{}, fmt.Errorf("bundled whisper engine at %s is missing required shared libraries (%s); rebuild whisper-cli with BUILD_SHARED_LIBS=OFF", b.Executable, errText)
		}
		if isIllegalInstructionError(errText) || isIllegalInstructionError(err.Error()) {
			return Transcript{}, fmt.Errorf("bundled whisper engine crashed with an illegal CPU instruction; " +
				"your CPU may lack required instruction set extensions; " +
				"set " + WhisperPathEnv + " to a whisper-cli binary built for your CPU")
		}
		return Transcript{}, fmt.Errorf("whisper transcribe failed: %w (%s)", err, errText)
	}

	content, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return Transcript{}, fmt.Errorf("read whisper output: %w", err)
	}

	return parseJSONOutput(content)
}

func (b *BundledEngine) log() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

// jsonOutput is the subset of whisper-cli's --output-json document we read.
type jsonOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseJSONOutput(content []byte) (Transcript, error) {
	var out jsonOutput
	if err := json.Unmarshal(content, &out); err != nil {
		return Transcript{}, fmt.Errorf("decode whisper output: %w", err)
	}

	var text strings.Builder
	for _, segment := range out.Transcription {
		if IsBlankTranscript(segment.Text) {
			continue
		}
		text.WriteString(segment.Text)
	}

	return Transcript{
		Text:     strings.TrimSpace(text.String()),
		Language: NormalizeLanguage(out.Result.Language),
	}, nil
}

func engineBinaryName() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	patterns := []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	}

	for _, pattern := range patterns {
		if strings.Contains(value, pattern) {
			return true
		}
	}

	return false
}

func isIllegalInstructionError(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "illegal instruction")
}
