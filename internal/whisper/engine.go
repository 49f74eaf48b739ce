package whisper

import (
	"context"
	"strings"
)

// UnknownLanguage is reported when an engine does not return a language.
const UnknownLanguage = "unknown"

const blankAudioToken = "[BLANK_AUDIO]"

type TranscriptionRequest struct {
	AudioPath string
	Language  string
}

type Transcript struct {
	Text     string
	Language string
}

type Engine interface {
	Name() string
	Transcribe(ctx context.Context, req TranscriptionRequest) (Transcript, error)
}

// IsBlankTranscript reports whether text carries no speech, including the
// marker whisper.cpp emits for silent input.
func IsBlankTranscript(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}

	return strings.EqualFold(trimmed, blankAudioToken)
}

func SanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}
