package whisper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/fmueller/voxscribe/internal/platform"
	"github.com/stretchr/testify/require"
)

func TestResolveBundledEnginePathFindsLibexecSibling(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	binDir := filepath.Join(root, "bin")
	engineDir := filepath.Join(root, "libexec", "whisper")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	require.NoError(t, os.MkdirAll(engineDir, 0o755))

	self := filepath.Join(binDir, "voxscribe")
	require.NoError(t, os.WriteFile(self, []byte(""), 0o755))

	enginePath := filepath.Join(engineDir, engineBinaryName())
	require.NoError(t, os.WriteFile(enginePath, []byte(""), 0o755))

	resolved, err := ResolveBundledEnginePath(self)
	require.NoError(t, err)
	require.Equal(t, enginePath, resolved)
}

func TestResolveBundledEnginePathMissing(t *testing.T) {
	t.Parallel()

	self := filepath.Join(t.TempDir(), "bin", "voxscribe")
	require.NoError(t, os.MkdirAll(filepath.Dir(self), 0o755))
	require.NoError(t, os.WriteFile(self, []byte(""), 0o755))

	_, err := ResolveBundledEnginePath(self)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bundled whisper engine not found")
}

func TestResolveBundledEnginePathFindsPackagingPathForLocalDev(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	self := filepath.Join(root, "voxscribe")
	require.NoError(t, os.WriteFile(self, []byte(""), 0o755))

	targetDir := filepath.Join(root, "packaging", "whisper", platform.CurrentRuntime().Target())
	require.NoError(t, os.MkdirAll(targetDir, 0o755))
	enginePath := filepath.Join(targetDir, engineBinaryName())
	require.NoError(t, os.WriteFile(enginePath, []byte(""), 0o755))

	resolved, err := ResolveBundledEnginePath(self)
	require.NoError(t, err)
	require.Equal(t, enginePath, resolved)
}

func TestIsMissingSharedLibraryError(t *testing.T) {
	t.Parallel()

	require.True(t, isMissingSharedLibraryError("error while loading shared libraries: libwhisper.so.1: cannot open shared object file"))
	require.True(t, isMissingSharedLibraryError("dyld: Library not loaded: @rpath/libwhisper.dylib"))
	require.False(t, isMissingSharedLibraryError("some other runtime error"))
}

func TestIsIllegalInstructionError(t *testing.T) {
	t.Parallel()

	require.True(t, isIllegalInstructionError("signal: illegal instruction (core dumped)"))
	require.True(t, isIllegalInstructionError("signal: illegal instruction"))
	require.False(t, isIllegalInstructionError("some other runtime error"))
	require.False(t, isIllegalInstructionError(""))
}

func TestParseJSONOutputJoinsSegmentsAndNormalizesLanguage(t *testing.T) {
	t.Parallel()

	transcript, err := parseJSONOutput([]byte(`{
		"result": {"language": "en"},
		"transcription": [
			{"text": " hello"},
			{"text": " [BLANK_AUDIO]"},
			{"text": " world "}
		]
	}`))
	require.NoError(t, err)
	require.Equal(t, "hello world", transcript.Text)
	require.Equal(t, "en", transcript.Language)
}

func TestParseJSONOutputMissingLanguage(t *testing.T) {
	t.Parallel()

	transcript, err := parseJSONOutput([]byte(`{"transcription": []}`))
	require.NoError(t, err)
	require.Empty(t, transcript.Text)
	require.Equal(t, UnknownLanguage, transcript.Language)
}

func TestParseJSONOutputMalformed(t *testing.T) {
	t.Parallel()

	_, err := parseJSONOutput([]byte("not json"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode whisper output")
}

func TestBundledEngineTranscribeRunsWhisperCLI(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine stub requires a POSIX shell")
	}

	dir := t.TempDir()
	argsLog := filepath.Join(dir, "args.log")
	script := fmt.Sprintf(`#!/bin/sh
echo "$@" > %q
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -of) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
printf '%%s' '{"result":{"language":"ur"},"transcription":[{"text":" سلام "}]}' > "$out.json"
`, argsLog)
	engine := &BundledEngine{
		Executable: writeEngineStub(t, dir, script),
		ModelPath:  filepath.Join(dir, "ggml-tiny.bin"),
	}

	transcript, err := engine.Transcribe(context.Background(), TranscriptionRequest{AudioPath: filepath.Join(dir, "in.wav")})
	require.NoError(t, err)
	require.Equal(t, "سلام", transcript.Text)
	require.Equal(t, "ur", transcript.Language)

	logged, err := os.ReadFile(argsLog)
	require.NoError(t, err)
	require.Contains(t, string(logged), "-l auto")
	require.Contains(t, string(logged), "-oj")

	fields := strings.Fields(string(logged))
	for i, field := range fields {
		if field == "-of" {
			_, statErr := os.Stat(filepath.Dir(fields[i+1]))
			require.True(t, os.IsNotExist(statErr), "whisper output directory should be removed")
		}
	}
}

func TestBundledEngineTranscribeReportsStderr(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine stub requires a POSIX shell")
	}

	dir := t.TempDir()
	engine := &BundledEngine{
		Executable: writeEngineStub(t, dir, "#!/bin/sh\necho 'failed to load model' >&2\nexit 3\n"),
		ModelPath:  filepath.Join(dir, "ggml-tiny.bin"),
	}

	_, err := engine.Transcribe(context.Background(), TranscriptionRequest{AudioPath: filepath.Join(dir, "in.wav")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "whisper transcribe failed")
	require.Contains(t, err.Error(), "failed to load model")
}

func TestBundledEngineTranscribeRequiresPaths(t *testing.T) {
	t.Parallel()

	engine := &BundledEngine{Executable: "/bin/true"}
	_, err := engine.Transcribe(context.Background(), TranscriptionRequest{})
	require.EqualError(t, err, "audio path is required")

	_, err = engine.Transcribe(context.Background(), TranscriptionRequest{AudioPath: "a.wav"})
	require.EqualError(t, err, "model path is required")
}

func TestNewBundledEngineUsesEnvOverride(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bit check is POSIX only")
	}

	stub := writeEngineStub(t, t.TempDir(), "#!/bin/sh\nexit 0\n")
	t.Setenv(WhisperPathEnv, stub)

	engine, err := NewBundledEngine("/models/ggml-tiny.bin", nil)
	require.NoError(t, err)
	require.Equal(t, stub, engine.Executable)
	require.Equal(t, BundledEngineName, engine.Name())
}

func writeEngineStub(t *testing.T, dir, script string) string {
	t.Helper()

	path := filepath.Join(dir, engineBinaryName())
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}
