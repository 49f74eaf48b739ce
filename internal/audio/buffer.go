package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrMalformedBuffer = errors.New("malformed audio buffer")

// Encoding describes how raw sample values supplied by a client are scaled.
type Encoding string

const (
	EncodingFloat Encoding = "float"
	EncodingInt16 Encoding = "int16"
)

// Buffer is a captured audio clip: interleaved samples normalized to [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   int
	Samples    []float64
}

func NewMono(sampleRate int, samples []float64) (*Buffer, error) {
	buf := &Buffer{SampleRate: sampleRate, Channels: 1, Samples: samples}
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	return buf, nil
}

// NewFrames interleaves a frames x channels matrix. Every frame must have the
// same number of channels.
func NewFrames(sampleRate int, frames [][]float64) (*Buffer, error) {
	if len(frames) == 0 {
		return NewMono(sampleRate, nil)
	}

	channels := len(frames[0])
	if channels == 0 {
		return nil, fmt.Errorf("%w: frame 0 has no channels", ErrMalformedBuffer)
	}

	samples := make([]float64, 0, len(frames)*channels)
	for i, frame := range frames {
		if len(frame) != channels {
			return nil, fmt.Errorf("%w: frame %d has %d channels, expected %d", ErrMalformedBuffer, i, len(frame), channels)
		}
		samples = append(samples, frame...)
	}

	buf := &Buffer{SampleRate: sampleRate, Channels: channels, Samples: samples}
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	return buf, nil
}

// Scale converts client-supplied values to normalized samples in place.
func Scale(values []float64, enc Encoding) ([]float64, error) {
	switch enc {
	case "", EncodingFloat:
		return values, nil
	case EncodingInt16:
		for i, v := range values {
			values[i] = v / 32768.0
		}
		return values, nil
	default:
		return nil, fmt.Errorf("unsupported sample encoding %q", enc)
	}
}

func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrMalformedBuffer)
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive (got %d)", ErrMalformedBuffer, b.SampleRate)
	}
	if b.Channels <= 0 {
		return fmt.Errorf("%w: channel count must be positive (got %d)", ErrMalformedBuffer, b.Channels)
	}
	if len(b.Samples)%b.Channels != 0 {
		return fmt.Errorf("%w: %d samples do not divide into %d channels", ErrMalformedBuffer, len(b.Samples), b.Channels)
	}
	for i, s := range b.Samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: sample %d is not finite", ErrMalformedBuffer, i)
		}
	}
	return nil
}

func (b *Buffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}
