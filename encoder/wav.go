package encoder

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const WAVHeaderSize = 44

var ErrInvalidWAV = errors.New("invalid wav data")

// WAVInfo is the subset of the canonical header needed to read the payload back.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	NumSamples    int
}

// Duration in seconds.
func (i WAVInfo) Duration() float64 {
	if i.SampleRate == 0 {
		return 0
	}
	return float64(i.NumSamples) / float64(i.SampleRate)
}

// EncodeWAV returns a canonical RIFF/WAVE container: 16-bit PCM, mono,
// 44-byte header followed by little-endian samples. Output depends only on
// the input, so repeated calls are byte-identical.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	return EncodePCM16(ToPCM16(samples), sampleRate)
}

// EncodePCM16 wraps already-quantized mono samples in the canonical container.
func EncodePCM16(pcm []int16, sampleRate int) []byte {
	dataBytes := len(pcm) * 2

	buf := make([]byte, WAVHeaderSize+dataBytes)
	le := binary.LittleEndian

	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], uint32(36+dataBytes))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16)
	le.PutUint16(buf[20:22], 1) // PCM
	le.PutUint16(buf[22:24], Channels)
	le.PutUint32(buf[24:28], uint32(sampleRate))
	le.PutUint32(buf[28:32], uint32(sampleRate*2))
	le.PutUint16(buf[32:34], 2)
	le.PutUint16(buf[34:36], BitsPerSample)

	copy(buf[36:40], "data")
	le.PutUint32(buf[40:44], uint32(dataBytes))

	for i, s := range pcm {
		le.PutUint16(buf[WAVHeaderSize+i*2:], uint16(s))
	}
	return buf
}

// ParseWAVHeader validates the canonical header and reports its contents.
func ParseWAVHeader(data []byte) (WAVInfo, error) {
	if len(data) < WAVHeaderSize {
		return WAVInfo{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidWAV, len(data), WAVHeaderSize)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVInfo{}, fmt.Errorf("%w: missing RIFF/WAVE tags", ErrInvalidWAV)
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return WAVInfo{}, fmt.Errorf("%w: unexpected chunk layout", ErrInvalidWAV)
	}

	le := binary.LittleEndian
	if format := le.Uint16(data[20:22]); format != 1 {
		return WAVInfo{}, fmt.Errorf("%w: audio format %d is not PCM", ErrInvalidWAV, format)
	}
	info := WAVInfo{
		Channels:      int(le.Uint16(data[22:24])),
		SampleRate:    int(le.Uint32(data[24:28])),
		BitsPerSample: int(le.Uint16(data[34:36])),
	}
	if info.BitsPerSample != BitsPerSample {
		return WAVInfo{}, fmt.Errorf("%w: %d bits per sample", ErrInvalidWAV, info.BitsPerSample)
	}
	if info.Channels < 1 {
		return WAVInfo{}, fmt.Errorf("%w: %d channels", ErrInvalidWAV, info.Channels)
	}

	dataBytes := int(le.Uint32(data[40:44]))
	if WAVHeaderSize+dataBytes > len(data) {
		return WAVInfo{}, fmt.Errorf("%w: data chunk claims %d bytes, have %d", ErrInvalidWAV, dataBytes, len(data)-WAVHeaderSize)
	}
	info.NumSamples = dataBytes / (2 * info.Channels)
	return info, nil
}

// DecodeWAV parses a canonical WAV produced by EncodeWAV and returns its PCM payload.
func DecodeWAV(data []byte) (WAVInfo, []int16, error) {
	info, err := ParseWAVHeader(data)
	if err != nil {
		return WAVInfo{}, nil, err
	}
	n := info.NumSamples * info.Channels
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(data[WAVHeaderSize+i*2:]))
	}
	return info, pcm, nil
}
