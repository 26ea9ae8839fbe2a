package tts

import (
	"context"
)

// AudioFormat defines the audio format configuration
type AudioFormat struct {
	SampleRate int    // Sample rate in Hz (e.g., 24000)
	Channels   int    // Number of audio channels (1 for mono)
	MediaType  string // MIME type (e.g., "audio/pcm")
	Encoding   string // Audio encoding format (e.g., "pcm_s16le")
}

// SynthesizeRequest represents a request to synthesize speech
type SynthesizeRequest struct {
	Text  string  // Text to synthesize
	Voice string  // Voice ID or name
	Speed float64 // Playback speed multiplier, 0 means provider default
}

// SynthesizeResponse represents the response from speech synthesis
type SynthesizeResponse struct {
	AudioData   []byte      // Raw audio data
	AudioFormat AudioFormat // Format of the audio data
}

// TTSProvider defines the interface that all TTS services must implement
type TTSProvider interface {
	// Name returns the name of the TTS provider (e.g., "openai")
	Name() string

	// Synthesize converts text to speech
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error)

	// GetDefaultVoice returns the default voice for this provider
	GetDefaultVoice() string

	// ValidateConfig validates the provider's configuration
	ValidateConfig() error
}
