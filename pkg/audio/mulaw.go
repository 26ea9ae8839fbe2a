// Package audio provides audio processing utilities.
//
// mulaw.go implements μ-law (G.711) audio codec conversions.
// μ-law is the standard audio encoding for telephone systems in North America and Japan,
// and the only encoding Twilio Media Streams carries (8kHz, 8-bit, mono).
//
// Features:
//   - μ-law to Linear PCM (16-bit signed, little-endian) conversion
//   - Linear PCM to μ-law conversion
//   - Decode lookup table built once at package init
//
// Reference: ITU-T G.711

package audio

// MuLaw codec constants
const (
	MuLawBias      = 0x84  // Bias for 16-bit linear code (decode side)
	MuLawBias14    = 0x21  // Bias for 14-bit linear code (encode side, MuLawBias >> 2)
	MuLawClip      = 32635 // Maximum linear magnitude before companding
	MuLawSegShift  = 4
	MuLawSegMask   = 0x70
	MuLawQuantMask = 0x0f
	MuLawSignBit   = 0x80
)

// muLawDecompressTable maps every μ-law byte to its 16-bit signed PCM value.
var muLawDecompressTable = buildMuLawTable()

// muLawSegmentEnd holds the upper bound of each segment on the biased 14-bit scale.
var muLawSegmentEnd = [8]int32{0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF, 0x1FFF}

func buildMuLawTable() [256]int16 {
	var table [256]int16
	for i := 0; i < 256; i++ {
		table[i] = expandMuLaw(byte(i))
	}
	return table
}

// expandMuLaw computes the linear value of a μ-law byte from the companding law.
func expandMuLaw(u byte) int16 {
	u = ^u
	exponent := int32(u&MuLawSegMask) >> MuLawSegShift
	mantissa := int32(u & MuLawQuantMask)
	sample := (((mantissa << 3) + MuLawBias) << exponent) - MuLawBias
	if u&MuLawSignBit != 0 {
		sample = -sample
	}
	if sample > 32767 {
		sample = 32767
	} else if sample < -32768 {
		sample = -32768
	}
	return int16(sample)
}

// MuLawDecode converts a single μ-law byte to a 16-bit signed PCM sample.
func MuLawDecode(mulaw byte) int16 {
	return muLawDecompressTable[mulaw]
}

// MuLawEncode converts a 16-bit signed PCM sample to μ-law.
func MuLawEncode(pcm int16) byte {
	mag := int32(pcm)
	var sign byte
	if mag < 0 {
		sign = MuLawSignBit
		mag = -mag
	}
	if mag > MuLawClip {
		mag = MuLawClip
	}
	mag = (mag >> 2) + MuLawBias14

	segment := 7
	for i, end := range muLawSegmentEnd {
		if mag <= end {
			segment = i
			break
		}
	}

	mantissa := byte(mag>>(segment+1)) & MuLawQuantMask
	return ^(sign | byte(segment)<<MuLawSegShift | mantissa)
}

// MuLawDecodeBuf converts μ-law encoded bytes to 16-bit signed PCM.
// Output buffer must be 2x the size of input (2 bytes per sample).
func MuLawDecodeBuf(mulaw []byte, pcm []byte) {
	for i, b := range mulaw {
		sample := muLawDecompressTable[b]
		pcm[i*2] = byte(sample)
		pcm[i*2+1] = byte(sample >> 8)
	}
}

// MuLawEncodeBuf converts 16-bit signed PCM to μ-law encoded bytes.
// Output buffer must be half the size of input.
func MuLawEncodeBuf(pcm []byte, mulaw []byte) {
	numSamples := len(pcm) / 2
	for i := 0; i < numSamples; i++ {
		sample := int16(pcm[i*2]) | (int16(pcm[i*2+1]) << 8)
		mulaw[i] = MuLawEncode(sample)
	}
}

// MuLawToPCM converts μ-law encoded audio to 16-bit signed PCM.
// Returns a new slice containing the PCM data.
func MuLawToPCM(mulaw []byte) []byte {
	pcm := make([]byte, len(mulaw)*2)
	MuLawDecodeBuf(mulaw, pcm)
	return pcm
}

// PCMToMuLaw converts 16-bit signed PCM audio to μ-law.
// An odd-length buffer is rejected rather than truncated.
func PCMToMuLaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, &MalformedAudioError{Op: "mulaw encode", Length: len(pcm)}
	}
	mulaw := make([]byte, len(pcm)/2)
	MuLawEncodeBuf(pcm, mulaw)
	return mulaw, nil
}
