// Package asr provides a unified interface for Automatic Speech Recognition (ASR) systems.
// It abstracts batch recognition providers (OpenAI Whisper today) so the call relay
// can transcribe one buffered turn of narrowband telephone audio at a time.
package asr

import (
	"context"
	"io"
	"time"
)

// RecognitionResult represents the output of speech recognition.
type RecognitionResult struct {
	// Text is the recognized text
	Text string

	// Language detected or used for recognition
	Language string

	// Duration of the recognition request
	Duration time.Duration

	// Timestamp when recognition completed
	Timestamp time.Time

	// Additional provider-specific metadata
	Metadata map[string]interface{}
}

// AudioConfig specifies the audio format for recognition.
type AudioConfig struct {
	// SampleRate in Hz (e.g., 8000, 16000)
	SampleRate int

	// Channels (1 for mono, 2 for stereo)
	Channels int

	// Encoding format ("pcm" for raw 16-bit linear, otherwise passed through as a file)
	Encoding string

	// BitsPerSample (e.g., 16)
	BitsPerSample int
}

// RecognitionConfig contains settings for speech recognition.
type RecognitionConfig struct {
	// Language code (e.g., "en"), empty for auto-detection
	Language string

	// Model to use (provider-specific, e.g., "whisper-1" for OpenAI)
	Model string

	// Prompt or context to guide the recognition (if supported)
	Prompt string

	// Temperature for sampling (OpenAI Whisper specific, 0.0-1.0)
	Temperature float32
}

// Provider is the main interface for ASR systems.
type Provider interface {
	// Name returns the provider name (e.g., "openai-whisper")
	Name() string

	// Recognize performs speech recognition on a complete audio segment.
	Recognize(ctx context.Context, audio io.Reader, audioConfig AudioConfig, config RecognitionConfig) (*RecognitionResult, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Error types for ASR operations
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeInvalidConfig
	ErrCodeInvalidAudio
	ErrCodeNetworkError
	ErrCodeProviderError
)
