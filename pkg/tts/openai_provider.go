package tts

import (
	"context"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/realtime-ai/patientbot/pkg/trace"
)

const (
	openAIDefaultModel      = openai.TTSModel1
	openAIDefaultVoice      = openai.VoiceNova
	openAIDefaultSampleRate = 24000
)

// OpenAIConfig configures the OpenAI speech provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional OpenAI-compatible endpoint
	Model   string // "tts-1" or "tts-1-hd"
	Voice   string
}

// OpenAITTSProvider implements TTSProvider for OpenAI's speech endpoint.
// Audio is always requested as raw 24kHz 16-bit little-endian PCM.
type OpenAITTSProvider struct {
	apiKey string
	model  string
	voice  string
	client *openai.Client
}

// NewOpenAITTSProvider creates a new OpenAI TTS provider
func NewOpenAITTSProvider(cfg OpenAIConfig) *OpenAITTSProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = string(openAIDefaultModel)
	}
	voice := cfg.Voice
	if voice == "" {
		voice = string(openAIDefaultVoice)
	}

	return &OpenAITTSProvider{
		apiKey: cfg.APIKey,
		model:  model,
		voice:  voice,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// Name returns the provider name
func (p *OpenAITTSProvider) Name() string {
	return "openai"
}

// Synthesize converts text to speech using the OpenAI speech API
func (p *OpenAITTSProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}

	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}
	speed := req.Speed
	if speed == 0 {
		speed = 1.0
	}

	ctx, span := trace.InstrumentTTSRequest(ctx, p.Name(), voice, req.Text)
	defer span.End()

	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
		Speed:          speed,
	})
	if err != nil {
		trace.RecordError(span, err)
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Close()

	audioData, err := io.ReadAll(resp)
	if err != nil {
		trace.RecordError(span, err)
		return nil, fmt.Errorf("failed to read speech response: %w", err)
	}

	return &SynthesizeResponse{
		AudioData: audioData,
		AudioFormat: AudioFormat{
			SampleRate: openAIDefaultSampleRate,
			Channels:   1,
			MediaType:  "audio/pcm",
			Encoding:   "pcm_s16le",
		},
	}, nil
}

// GetDefaultVoice returns the configured voice
func (p *OpenAITTSProvider) GetDefaultVoice() string {
	return p.voice
}

// ValidateConfig validates the provider configuration
func (p *OpenAITTSProvider) ValidateConfig() error {
	if p.apiKey == "" {
		return fmt.Errorf("OpenAI API key is not set. Please set OPENAI_API_KEY environment variable")
	}
	return nil
}
