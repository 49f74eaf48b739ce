package server

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fmueller/voxscribe/internal/audio"
	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/gin-gonic/gin"
)

const (
	serviceName    = "voxscribe"
	audioFormField = "audio"
)

//go:embed static/index.html
var indexHTML []byte

var errNoAudio = errors.New("no audio supplied")

// transcribeRequest carries browser-captured samples. Samples is either a
// flat mono array or a frames x channels matrix.
type transcribeRequest struct {
	SampleRate int             `json:"sample_rate"`
	Samples    json.RawMessage `json:"samples"`
	Encoding   audio.Encoding  `json:"encoding"`
}

func (s *Server) registerRoutes() {
	s.engine.GET("/", s.handleIndex)
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	api.POST("/transcribe", s.handleTranscribe)
	api.GET("/languages", s.handleLanguages)
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"engine":    s.transcriber.EngineName(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLanguages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"languages": transcribe.Languages()})
}

func (s *Server) handleTranscribe(c *gin.Context) {
	ctx := c.Request.Context()

	buf, err := decodeAudio(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, errNoAudio):
			c.JSON(http.StatusOK, s.transcriber.Transcribe(ctx, nil))
		case errors.As(err, &tooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, transcribe.ErrorResult(fmt.Errorf("audio exceeds the %d byte upload limit", tooLarge.Limit)))
		default:
			c.JSON(http.StatusBadRequest, transcribe.ErrorResult(err))
		}
		return
	}

	c.JSON(http.StatusOK, s.transcriber.Transcribe(ctx, buf))
}

func decodeAudio(c *gin.Context) (*audio.Buffer, error) {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil, errNoAudio
	}

	switch contentType := c.ContentType(); contentType {
	case gin.MIMEJSON:
		return decodeJSONSamples(c)
	case gin.MIMEMultipartPOSTForm:
		return decodeMultipartWAV(c)
	case "audio/wav", "audio/wave", "audio/x-wav":
		return decodeRawWAV(c.Request.Body)
	default:
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}
}

func decodeJSONSamples(c *gin.Context) (*audio.Buffer, error) {
	var req transcribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errNoAudio
		}
		return nil, fmt.Errorf("decode request: %w", err)
	}

	raw := bytes.TrimSpace(req.Samples)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errNoAudio
	}

	var mono []float64
	if err := json.Unmarshal(raw, &mono); err == nil {
		scaled, err := audio.Scale(mono, req.Encoding)
		if err != nil {
			return nil, err
		}
		return audio.NewMono(req.SampleRate, scaled)
	}

	var frames [][]float64
	if err := json.Unmarshal(raw, &frames); err != nil {
		return nil, fmt.Errorf("%w: samples must be numbers or rows of numbers", audio.ErrMalformedBuffer)
	}
	for i, frame := range frames {
		scaled, err := audio.Scale(frame, req.Encoding)
		if err != nil {
			return nil, err
		}
		frames[i] = scaled
	}
	return audio.NewFrames(req.SampleRate, frames)
}

func decodeMultipartWAV(c *gin.Context) (*audio.Buffer, error) {
	header, err := c.FormFile(audioFormField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, errNoAudio
	}
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	if header.Size == 0 {
		return nil, errNoAudio
	}
	return audio.DecodeWAV(file)
}

func decodeRawWAV(body io.Reader) (*audio.Buffer, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, errNoAudio
	}
	return audio.DecodeWAV(bytes.NewReader(data))
}
