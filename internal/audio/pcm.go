package audio

import (
	"encoding/binary"
	"math"
)

// BytesPerSample is the width of one PCM16 mono sample.
const BytesPerSample = 2

// Float32ToPCM16 converts samples in [-1, 1] to little-endian signed 16-bit
// PCM, clipping anything outside the range.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		v = math.Max(-32768, math.Min(32767, v))
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(int16(v)))
	}
	return out
}

// PCM16ToFloat32 converts little-endian signed 16-bit PCM to samples in
// [-1, 1). A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/BytesPerSample)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

// bytesToFloat32 decodes the little-endian float32 frames malgo hands to
// device callbacks.
func bytesToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// float32ToBytes is the inverse of bytesToFloat32.
func float32ToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}
