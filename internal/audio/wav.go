// Package audio handles the voice samples submitted during enrollment and
// login. Samples travel as 16-bit little-endian mono PCM in a WAV container.
package audio

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	formatPCM     = 1
	bitsPerSample = 16
	// DefaultSampleRate is used when callers encode with a non-positive rate.
	DefaultSampleRate = 16000

	MinSampleRate = 8000
	MaxSampleRate = 48000
)

var (
	ErrNotWAV            = errors.New("sample is not a RIFF/WAVE stream")
	ErrUnsupportedFormat = errors.New("sample must be 16-bit PCM mono at 8-48 kHz")
	ErrMissingData       = errors.New("sample has no data chunk")
)

// Sample is a decoded voice recording.
type Sample struct {
	SampleRate int
	PCM        []byte
}

// Duration reports how long the recording plays.
func (s Sample) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	frames := len(s.PCM) / (bitsPerSample / 8)
	return time.Duration(frames) * time.Second / time.Duration(s.SampleRate)
}

// Fingerprint is a stable short digest of the PCM payload, used to derive
// voice profile references.
func (s Sample) Fingerprint() string {
	sum := sha256.Sum256(s.PCM)
	return hex.EncodeToString(sum[:8])
}

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	le := binary.LittleEndian

	buf.WriteString("RIFF")
	buf.Write(le.AppendUint32(nil, uint32(36+len(pcm))))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	buf.Write(le.AppendUint32(nil, 16))
	buf.Write(le.AppendUint16(nil, formatPCM))
	buf.Write(le.AppendUint16(nil, 1))
	buf.Write(le.AppendUint32(nil, uint32(sampleRate)))
	buf.Write(le.AppendUint32(nil, uint32(sampleRate*bitsPerSample/8)))
	buf.Write(le.AppendUint16(nil, bitsPerSample/8))
	buf.Write(le.AppendUint16(nil, bitsPerSample))

	buf.WriteString("data")
	buf.Write(le.AppendUint32(nil, uint32(len(pcm))))
	buf.Write(pcm)
	return buf.Bytes()
}

// ParseWAVPCM16LE decodes a WAV stream produced by EncodeWAVPCM16LE or any
// recorder emitting 16-bit PCM mono. Unknown chunks are skipped.
func ParseWAVPCM16LE(raw []byte) (Sample, error) {
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return Sample{}, ErrNotWAV
	}
	r := bytes.NewReader(raw[12:])
	var (
		sampleRate int
		sawFormat  bool
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Sample{}, ErrMissingData
			}
			return Sample{}, err
		}
		id := string(hdr[0:4])
		size := int(binary.LittleEndian.Uint32(hdr[4:8]))
		if size < 0 || size > r.Len() {
			size = r.Len()
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return Sample{}, fmt.Errorf("read %q chunk: %w", id, err)
		}
		// Chunks are word aligned.
		if size%2 == 1 && r.Len() > 0 {
			_, _ = r.ReadByte()
		}

		switch id {
		case "fmt ":
			if len(body) < 16 {
				return Sample{}, ErrUnsupportedFormat
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			channels := binary.LittleEndian.Uint16(body[2:4])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != formatPCM || channels != 1 || bits != bitsPerSample {
				return Sample{}, ErrUnsupportedFormat
			}
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			if sampleRate < MinSampleRate || sampleRate > MaxSampleRate {
				return Sample{}, ErrUnsupportedFormat
			}
			sawFormat = true
		case "data":
			if !sawFormat {
				return Sample{}, ErrUnsupportedFormat
			}
			return Sample{SampleRate: sampleRate, PCM: body}, nil
		}
	}
}

// Silence returns d worth of zeroed PCM16LE frames at sampleRate.
func Silence(d time.Duration, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	frames := int(d * time.Duration(sampleRate) / time.Second)
	return make([]byte, frames*bitsPerSample/8)
}
