package audio

import (
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

const (
	wavFormatPCM  = 1
	stagingDepth  = 16
	pcm16MaxValue = 32767
)

// WriteWAV encodes buf as 16-bit PCM WAV. The writer is not closed.
func WriteWAV(w io.WriteSeeker, buf *Buffer) error {
	if err := buf.Validate(); err != nil {
		return err
	}

	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		data[i] = toPCM16(s)
	}

	enc := wav.NewEncoder(w, buf.SampleRate, stagingDepth, buf.Channels, wavFormatPCM)
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: buf.Channels, SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: stagingDepth,
	}); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// DecodeWAV reads an integer PCM WAV stream into a normalized Buffer.
func DecodeWAV(r io.ReadSeeker) (*Buffer, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return nil, ErrInvalidWAV
	}

	if err := validateFormat(d.WavAudioFormat, d.BitDepth); err != nil {
		return nil, err
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read wav data: %w", err)
	}

	samples := make([]float64, len(pcm.Data))
	for i, v := range pcm.Data {
		samples[i] = normalizePCM(v, d.BitDepth)
	}

	buf := &Buffer{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		Samples:    samples,
	}
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	return buf, nil
}

func validateFormat(audioFormat, bitsPerSample uint16) error {
	if audioFormat != wavFormatPCM {
		return ErrUnsupportedWAV
	}

	switch bitsPerSample {
	case 8, 16, 24, 32:
		return nil
	default:
		return ErrUnsupportedWAV
	}
}

func normalizePCM(v int, bitsPerSample uint16) float64 {
	switch bitsPerSample {
	case 8:
		return (float64(v) - 128.0) / 128.0
	case 16:
		return float64(v) / 32768.0
	case 24:
		return float64(v) / 8388608.0
	default:
		return float64(v) / 2147483648.0
	}
}

func toPCM16(sample float64) int {
	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}
	return int(math.Round(sample * pcm16MaxValue))
}
