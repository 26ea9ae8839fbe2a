package asr

import (
	"bytes"
	"context"

	"github.com/realtime-ai/patientbot/pkg/audio"
)

// MinTranscribeBytes is the shortest μ-law buffer worth sending (~100ms at 8kHz).
const MinTranscribeBytes = 800

// NarrowbandTranscriber adapts a Provider to Twilio audio: it takes raw 8kHz μ-law
// bytes, expands them to 16-bit PCM and asks the provider for a transcript.
type NarrowbandTranscriber struct {
	provider Provider
	config   RecognitionConfig
}

// NewNarrowbandTranscriber wraps provider with the given recognition settings.
func NewNarrowbandTranscriber(provider Provider, config RecognitionConfig) *NarrowbandTranscriber {
	return &NarrowbandTranscriber{provider: provider, config: config}
}

// Transcribe returns the text spoken in mulaw. Buffers shorter than
// MinTranscribeBytes yield an empty transcript without a provider call.
func (t *NarrowbandTranscriber) Transcribe(ctx context.Context, mulaw []byte) (string, error) {
	if len(mulaw) < MinTranscribeBytes {
		return "", nil
	}

	pcm := audio.MuLawToPCM(mulaw)
	result, err := t.provider.Recognize(ctx, bytes.NewReader(pcm), AudioConfig{
		SampleRate:    audio.NarrowbandSampleRate,
		Channels:      1,
		Encoding:      "pcm",
		BitsPerSample: 16,
	}, t.config)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}
