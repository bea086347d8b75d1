package audio

// PCM conversion between the normalized float32 samples the capture and
// playback engines work with and the 16-bit signed little-endian wire format.

const (
	// SampleRate is the fixed capture and playback rate in Hz.
	SampleRate = 16000
	// FrameSamples is the number of samples per outbound capture frame.
	FrameSamples = 1024
)

// EncodePCM16 converts normalized samples to 16-bit signed little-endian PCM.
// Samples outside [-1, 1) saturate at the int16 range rather than wrapping.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// DecodePCM16 converts 16-bit signed little-endian PCM to normalized samples.
// A trailing odd byte is dropped.
func DecodePCM16(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(data[i*2]) | int16(data[i*2+1])<<8
		out[i] = float32(v) / 32768
	}
	return out
}
