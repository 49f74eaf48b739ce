package cli

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fmueller/voxscribe/internal/whisper"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	return runAppCommand(t, &appState{}, args)
}

func runAppCommand(t *testing.T, app *appState, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := newRootCmd(app)
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetContext(context.Background())
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

type stubEngine struct {
	mu         sync.Mutex
	calls      int
	transcript whisper.Transcript
	err        error
}

func (s *stubEngine) Name() string { return "stub" }

func (s *stubEngine) Transcribe(context.Context, whisper.TranscriptionRequest) (whisper.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.transcript, s.err
}

func (s *stubEngine) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func appWithEngine(engine whisper.Engine) *appState {
	return &appState{
		engineFn: func(context.Context) (whisper.Engine, error) { return engine, nil },
	}
}

func writeTestWAV(t *testing.T, samples []int16) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, makePCM16WAVForTest(samples, 16000, 1), 0o644))
	return path
}

func toneSamples(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		if (i/20)%2 == 0 {
			samples[i] = 8000
		} else {
			samples[i] = -8000
		}
	}
	return samples
}

func makePCM16WAVForTest(samples []int16, sampleRate int, channels int) []byte {
	bytesPerSample := 2
	dataSize := len(samples) * bytesPerSample
	fmtChunkSize := 16
	riffSize := 4 + (8 + fmtChunkSize) + (8 + dataSize)

	out := make([]byte, 12+8+fmtChunkSize+8+dataSize)
	off := 0

	copy(out[off:], []byte("RIFF"))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(riffSize))
	off += 4
	copy(out[off:], []byte("WAVE"))
	off += 4

	copy(out[off:], []byte("fmt "))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(fmtChunkSize))
	off += 4
	binary.LittleEndian.PutUint16(out[off:], 1)
	off += 2
	binary.LittleEndian.PutUint16(out[off:], uint16(channels))
	off += 2
	binary.LittleEndian.PutUint32(out[off:], uint32(sampleRate))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(sampleRate*channels*bytesPerSample))
	off += 4
	binary.LittleEndian.PutUint16(out[off:], uint16(channels*bytesPerSample))
	off += 2
	binary.LittleEndian.PutUint16(out[off:], 16)
	off += 2

	copy(out[off:], []byte("data"))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(dataSize))
	off += 4

	for _, s := range samples {
		binary.LittleEndian.PutUint16(out[off:], uint16(s))
		off += 2
	}

	return out
}
