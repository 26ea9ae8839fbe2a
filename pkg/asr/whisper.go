package asr

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/realtime-ai/patientbot/pkg/trace"
)

// WhisperConfig configures the OpenAI Whisper provider.
type WhisperConfig struct {
	APIKey  string
	BaseURL string // optional OpenAI-compatible endpoint
	Model   string // defaults to whisper-1
}

// WhisperProvider implements the Provider interface using OpenAI's Whisper API.
// It is stateless and safe for concurrent use by many calls.
type WhisperProvider struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewWhisperProvider creates a new OpenAI Whisper ASR provider.
func NewWhisperProvider(cfg WhisperConfig, logger *zap.Logger) (*WhisperProvider, error) {
	if cfg.APIKey == "" {
		return nil, &Error{
			Code:    ErrCodeInvalidConfig,
			Message: "OpenAI API key is required",
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
		logger.Info("whisper using custom base url", zap.String("base_url", cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}

	return &WhisperProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		logger: logger.With(zap.String("component", "whisper")),
	}, nil
}

// Name returns the provider name.
func (w *WhisperProvider) Name() string {
	return "openai-whisper"
}

// Recognize performs speech recognition on a complete audio segment.
func (w *WhisperProvider) Recognize(ctx context.Context, audio io.Reader, audioConfig AudioConfig, config RecognitionConfig) (*RecognitionResult, error) {
	audioData, err := io.ReadAll(audio)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeInvalidAudio,
			Message: "failed to read audio data",
			Err:     err,
		}
	}

	if len(audioData) == 0 {
		return nil, &Error{
			Code:    ErrCodeInvalidAudio,
			Message: "audio data is empty",
		}
	}

	// Whisper wants a file container, raw PCM gets a WAV header
	fileBytes := audioData
	if audioConfig.Encoding == "pcm" || audioConfig.Encoding == "" {
		fileBytes = convertPCMToWAV(audioData, audioConfig)
	}

	req := openai.AudioRequest{
		Model:    config.Model,
		FilePath: "audio.wav", // Filename hint for API
		Reader:   bytes.NewReader(fileBytes),
		Prompt:   config.Prompt,
		Language: config.Language,
	}
	if req.Model == "" {
		req.Model = w.model
	}
	if config.Temperature > 0 {
		req.Temperature = config.Temperature
	}

	ctx, span := trace.InstrumentSTTRequest(ctx, w.Name(), len(audioData))
	defer span.End()

	startTime := time.Now()
	resp, err := w.client.CreateTranscription(ctx, req)
	if err != nil {
		trace.RecordError(span, err)
		return nil, &Error{
			Code:    ErrCodeProviderError,
			Message: "Whisper API request failed",
			Err:     err,
		}
	}

	return &RecognitionResult{
		Text:      strings.TrimSpace(resp.Text),
		Language:  config.Language,
		Duration:  time.Since(startTime),
		Timestamp: time.Now(),
		Metadata: map[string]interface{}{
			"model": req.Model,
		},
	}, nil
}

// Close releases any resources held by the provider.
func (w *WhisperProvider) Close() error {
	return nil
}

// convertPCMToWAV wraps raw PCM audio data in a canonical 44-byte WAV header.
func convertPCMToWAV(pcmData []byte, config AudioConfig) []byte {
	var buf bytes.Buffer

	channels := config.Channels
	if channels == 0 {
		channels = 1
	}
	bitsPerSample := config.BitsPerSample
	if bitsPerSample == 0 {
		bitsPerSample = 16
	}

	// RIFF header
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcmData)))
	buf.WriteString("WAVE")

	// fmt sub-chunk
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(config.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(config.SampleRate*channels*bitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	// data sub-chunk
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcmData)))
	buf.Write(pcmData)

	return buf.Bytes()
}
