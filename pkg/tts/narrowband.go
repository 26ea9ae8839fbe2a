package tts

import (
	"context"
	"fmt"
	"strings"

	"github.com/realtime-ai/patientbot/pkg/audio"
)

// NarrowbandSynthesizer turns text into Twilio-ready 8kHz μ-law audio using a
// PCM-producing provider.
type NarrowbandSynthesizer struct {
	provider TTSProvider
}

// NewNarrowbandSynthesizer wraps provider.
func NewNarrowbandSynthesizer(provider TTSProvider) *NarrowbandSynthesizer {
	return &NarrowbandSynthesizer{provider: provider}
}

// Synthesize returns μ-law audio for text. Blank text yields no audio and no call.
func (s *NarrowbandSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	resp, err := s.provider.Synthesize(ctx, &SynthesizeRequest{Text: text})
	if err != nil {
		return nil, err
	}
	if len(resp.AudioData) == 0 {
		return nil, nil
	}
	if resp.AudioFormat.Encoding != "" && resp.AudioFormat.Encoding != "pcm_s16le" {
		return nil, fmt.Errorf("unsupported synthesis encoding %q", resp.AudioFormat.Encoding)
	}

	rate := resp.AudioFormat.SampleRate
	if rate == 0 {
		rate = audio.SynthesisSampleRate
	}
	return audio.PCMToNarrowband(resp.AudioData, rate)
}
