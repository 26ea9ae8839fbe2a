package audio

import (
	"encoding/base64"
)

// WireFrameSize is one Twilio media unit: 320 μ-law bytes, 20ms at 8kHz.
const WireFrameSize = 320

// ToWireFrames splits encoded audio into frameSize chunks and base64 encodes each
// one for a Twilio media payload. The final frame may be shorter. A non-positive
// frameSize selects WireFrameSize.
func ToWireFrames(encoded []byte, frameSize int) []string {
	if frameSize <= 0 {
		frameSize = WireFrameSize
	}

	frames := make([]string, 0, (len(encoded)+frameSize-1)/frameSize)
	for start := 0; start < len(encoded); start += frameSize {
		end := start + frameSize
		if end > len(encoded) {
			end = len(encoded)
		}
		frames = append(frames, base64.StdEncoding.EncodeToString(encoded[start:end]))
	}
	return frames
}
