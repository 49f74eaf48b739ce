package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fmueller/voxscribe/internal/audio"
	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/spf13/cobra"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// ErrTranscriptionFailed is returned after an error outcome has been printed.
var ErrTranscriptionFailed = errors.New("transcription failed")

func newTranscribeCmd(app *appState) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe a WAV file",
		Long:  "Transcribe a WAV file with the same handler the web UI uses and print the\ntranscript, the detected language and the status line.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatText && format != formatJSON {
				return fmt.Errorf("unsupported format %q (use %s or %s)", format, formatText, formatJSON)
			}

			result, err := app.transcribeFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if err := writeResult(cmd.OutOrStdout(), result, format); err != nil {
				return err
			}

			switch result.Outcome {
			case transcribe.OutcomeError:
				return ErrTranscriptionFailed
			case transcribe.OutcomeNoSpeech:
				app.log().Warn(noSpeechHint())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", formatText, "Output format: text|json")
	return cmd
}

func (a *appState) transcribeFile(ctx context.Context, audioPath string) (transcribe.Result, error) {
	audioPath = filepath.Clean(audioPath)
	f, err := os.Open(audioPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return transcribe.Result{}, fmt.Errorf("audio file not found: %w", err)
		}
		return transcribe.Result{}, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	buf, err := audio.DecodeWAV(f)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("read %s: %w", audioPath, err)
	}

	handler, err := a.newHandler(ctx)
	if err != nil {
		return transcribe.Result{}, err
	}

	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	result := handler.Transcribe(ctx, buf)
	stopSpinner()
	return result, nil
}

func writeResult(w io.Writer, result transcribe.Result, format string) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		return enc.Encode(result)
	}

	if result.Text != "" {
		if _, err := fmt.Fprintln(w, result.Text); err != nil {
			return err
		}
	}
	if result.Language != "" {
		if _, err := fmt.Fprintln(w, result.Language); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, result.Status)
	return err
}

func noSpeechHint() string {
	return "No speech detected. Check that the recording is not muted and try again."
}
