package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// BytesPerSample is the width of one 16-bit PCM sample.
const BytesPerSample = 2

// Blob is one encoded audio payload ready for transport framing: base64 data
// plus the MIME type that declares its encoding.
type Blob struct {
	// MIMEType declares sample format, rate and channel count, e.g.
	// "audio/pcm;rate=16000".
	MIMEType string

	// Data is the base64-encoded payload.
	Data string
}

// Bytes decodes the base64 payload of b.
func (b Blob) Bytes() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b.Data)
	if err != nil {
		return nil, fmt.Errorf("audio: blob: %w", err)
	}
	return raw, nil
}

// PCMMIMEType returns the transport tag for mono s16le PCM at sampleRate.
func PCMMIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// EncodePCM16 converts float samples to little-endian signed 16-bit PCM.
// Samples are clamped to [-1, 1] and rounded; negative values scale by 32768
// and positive values by 32767 so that both rails are reachable.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(floatToInt16(s)))
	}
	return out
}

// NewPCMBlob encodes a mono capture frame as a base64 PCM blob tagged with
// sampleRate.
func NewPCMBlob(samples []float32, sampleRate int) Blob {
	return Blob{
		MIMEType: PCMMIMEType(sampleRate),
		Data:     base64.StdEncoding.EncodeToString(EncodePCM16(samples)),
	}
}

// DecodePCM16 converts little-endian s16 PCM to float samples in [-1, 1],
// mirroring the scaling of [EncodePCM16]. A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/BytesPerSample)
	for i := range out {
		out[i] = int16ToFloat(int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:])))
	}
	return out
}

func int16ToFloat(v int16) float32 {
	if v < 0 {
		return float32(v) / 32768
	}
	return float32(v) / 32767
}

func floatToInt16(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	if s >= 1 {
		return math.MaxInt16
	}
	if s <= -1 {
		return math.MinInt16
	}
	if s < 0 {
		return int16(math.Round(float64(s) * 32768))
	}
	return int16(math.Round(float64(s) * 32767))
}
