package audio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"
	"sync"

	"github.com/go-audio/wav"
	"layeh.com/gopus"
)

// ErrDecode is returned (wrapped) when an inbound payload cannot be turned into
// a playable buffer.
var ErrDecode = errors.New("audio: decode failed")

// DefaultOutputRate is the sample rate assumed for raw PCM payloads that do not
// carry a rate parameter. The live service streams 24 kHz mono s16le.
const DefaultOutputRate = 24000

const (
	opusSampleRate = 48000
	// opusMaxFrame is the largest Opus frame (120 ms) in samples per channel.
	opusMaxFrame = opusSampleRate * 120 / 1000
)

// Decoder turns inbound encoded audio payloads into playable [Buffer] values
// at a fixed target format. Supported MIME types:
//
//   - audio/pcm, audio/l16: raw little-endian s16; "rate" and "channels"
//     parameters are honoured
//   - audio/wav, audio/x-wav, audio/wave: RIFF WAVE, any integer bit depth
//   - audio/opus: a single Opus packet
//
// A Decoder is safe for concurrent use.
type Decoder struct {
	target Format

	mu   sync.Mutex
	opus *gopus.Decoder
	conv Converter
}

// NewDecoder returns a Decoder producing buffers in the target format. A zero
// field in target keeps the source value for that field.
func NewDecoder(target Format) *Decoder {
	return &Decoder{target: target, conv: Converter{Target: target}}
}

// Target returns the output format of d.
func (d *Decoder) Target() Format { return d.target }

// Decode base64-decodes payload and decodes it according to mimeType. All
// failures wrap [ErrDecode].
func (d *Decoder) Decode(payload, mimeType string) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %w", ErrDecode, err)
	}
	return d.DecodeBytes(raw, mimeType)
}

// DecodeBytes decodes an already base64-decoded payload.
func (d *Decoder) DecodeBytes(raw []byte, mimeType string) (*Buffer, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	mediaType, params, err := parseMIME(mimeType)
	if err != nil {
		return nil, fmt.Errorf("%w: mime type %q: %w", ErrDecode, mimeType, err)
	}

	var buf *Buffer
	switch mediaType {
	case "audio/pcm", "audio/l16", "audio/raw":
		buf, err = decodeRawPCM(raw, params)
	case "audio/wav", "audio/x-wav", "audio/wave":
		buf, err = decodeWAV(raw)
	case "audio/opus":
		buf, err = d.decodeOpus(raw)
	default:
		err = fmt.Errorf("unsupported mime type %q", mediaType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if buf.Frames() == 0 {
		return nil, fmt.Errorf("%w: no samples in payload", ErrDecode)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conv.Convert(buf), nil
}

// parseMIME accepts a missing media type as raw PCM.
func parseMIME(mimeType string) (string, map[string]string, error) {
	if strings.TrimSpace(mimeType) == "" {
		return "audio/pcm", map[string]string{}, nil
	}
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "", nil, err
	}
	return strings.ToLower(mediaType), params, nil
}

func decodeRawPCM(raw []byte, params map[string]string) (*Buffer, error) {
	rate := DefaultOutputRate
	if v, ok := params["rate"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid rate parameter %q", v)
		}
		rate = n
	}
	channels := 1
	if v, ok := params["channels"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid channels parameter %q", v)
		}
		channels = n
	}
	if len(raw)%BytesPerSample != 0 {
		return nil, fmt.Errorf("odd payload length %d", len(raw))
	}
	samples := DecodePCM16(raw)
	return &Buffer{SampleRate: rate, Channels: Deinterleave(samples, channels)}, nil
}

func decodeWAV(raw []byte) (*Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("invalid wav: %w", err)
		}
		return nil, errors.New("invalid wav")
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	depth := int(dec.BitDepth)
	if depth <= 0 || depth > 32 {
		return nil, fmt.Errorf("unsupported wav bit depth %d", depth)
	}
	channels := int(dec.NumChans)
	if channels <= 0 {
		channels = 1
	}

	scale := float32(int64(1) << (depth - 1))
	interleaved := make([]float32, len(pcm.Data))
	for i, v := range pcm.Data {
		if depth == 8 {
			// 8-bit WAV is unsigned.
			v -= 128
		}
		interleaved[i] = clampUnit(float32(v) / scale)
	}
	return &Buffer{SampleRate: int(dec.SampleRate), Channels: Deinterleave(interleaved, channels)}, nil
}

func (d *Decoder) decodeOpus(packet []byte) (*Buffer, error) {
	d.mu.Lock()
	if d.opus == nil {
		dec, err := gopus.NewDecoder(opusSampleRate, 1)
		if err != nil {
			d.mu.Unlock()
			return nil, fmt.Errorf("create opus decoder: %w", err)
		}
		d.opus = dec
	}
	pcm, err := d.opus.Decode(packet, opusMaxFrame, false)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("opus: %w", err)
	}
	samples := make([]float32, len(pcm))
	for i, v := range pcm {
		samples[i] = int16ToFloat(v)
	}
	return &Buffer{SampleRate: opusSampleRate, Channels: [][]float32{samples}}, nil
}

func clampUnit(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
