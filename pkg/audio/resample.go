package audio

import (
	"fmt"
)

// Sample rates used across the call relay.
const (
	NarrowbandSampleRate = 8000  // Twilio μ-law rate
	SynthesisSampleRate  = 24000 // OpenAI TTS pcm output rate
	BytesPerSample       = 2     // 16-bit linear PCM
)

// MalformedAudioError reports a PCM buffer whose shape cannot hold whole samples.
type MalformedAudioError struct {
	Op     string
	Length int
}

func (e *MalformedAudioError) Error() string {
	return fmt.Sprintf("%s: malformed audio buffer of %d bytes (16-bit PCM needs an even length)", e.Op, e.Length)
}

// ResampleLinear converts 16-bit mono PCM between sample rates by nearest-neighbour
// selection over uniformly spaced source indices.
//
// The output holds floor(n*toRate/fromRate) samples; sample i is taken from source
// index floor(i*(n-1)/(m-1)), so the first and last source samples are always kept.
func ResampleLinear(pcm []byte, fromRate, toRate int) ([]byte, error) {
	if len(pcm)%BytesPerSample != 0 {
		return nil, &MalformedAudioError{Op: "resample", Length: len(pcm)}
	}
	if fromRate <= 0 {
		return nil, fmt.Errorf("invalid input sample rate: %d", fromRate)
	}
	if toRate <= 0 {
		return nil, fmt.Errorf("invalid output sample rate: %d", toRate)
	}
	if fromRate == toRate {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out, nil
	}

	n := len(pcm) / BytesPerSample
	m := int(int64(n) * int64(toRate) / int64(fromRate))
	out := make([]byte, m*BytesPerSample)
	if m == 0 {
		return out, nil
	}

	for i := 0; i < m; i++ {
		src := 0
		if m > 1 {
			src = int(int64(i) * int64(n-1) / int64(m-1))
		}
		out[i*2] = pcm[src*2]
		out[i*2+1] = pcm[src*2+1]
	}
	return out, nil
}

// PCMToNarrowband downsamples 16-bit PCM at sampleRate to 8kHz and μ-law encodes it.
func PCMToNarrowband(pcm []byte, sampleRate int) ([]byte, error) {
	resampled, err := ResampleLinear(pcm, sampleRate, NarrowbandSampleRate)
	if err != nil {
		return nil, err
	}
	return PCMToMuLaw(resampled)
}

// PCM24kToMuLaw8k converts synthesized speech (24kHz 16-bit) to Twilio narrowband audio.
func PCM24kToMuLaw8k(pcm []byte) ([]byte, error) {
	return PCMToNarrowband(pcm, SynthesisSampleRate)
}
