package encoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func sine(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.6 * math.Sin(2*math.Pi*440*float64(i)/SampleRate))
	}
	return out
}

func TestEncodeWAVHeader(t *testing.T) {
	samples := sine(1000)
	wav := EncodeWAV(samples, SampleRate)

	if len(wav) != WAVHeaderSize+2000 {
		t.Fatalf("len = %d, want %d", len(wav), WAVHeaderSize+2000)
	}

	le := binary.LittleEndian
	checks := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"riff size", le.Uint32(wav[4:8]), 36 + 2000},
		{"fmt size", le.Uint32(wav[16:20]), 16},
		{"format", uint32(le.Uint16(wav[20:22])), 1},
		{"channels", uint32(le.Uint16(wav[22:24])), 1},
		{"sample rate", le.Uint32(wav[24:28]), SampleRate},
		{"byte rate", le.Uint32(wav[28:32]), SampleRate * 2},
		{"block align", uint32(le.Uint16(wav[32:34])), 2},
		{"bits", uint32(le.Uint16(wav[34:36])), 16},
		{"data size", le.Uint32(wav[40:44]), 2000},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	for _, tag := range []struct {
		off  int
		want string
	}{{0, "RIFF"}, {8, "WAVE"}, {12, "fmt "}, {36, "data"}} {
		if got := string(wav[tag.off : tag.off+4]); got != tag.want {
			t.Errorf("tag at %d = %q, want %q", tag.off, got, tag.want)
		}
	}
}

func TestWAVRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 4096, 4096*3 + 17} {
		info, pcm, err := DecodeWAV(EncodeWAV(sine(n), SampleRate))
		if err != nil {
			t.Fatalf("n=%d: DecodeWAV: %v", n, err)
		}
		if info.NumSamples != n {
			t.Errorf("n=%d: NumSamples = %d", n, info.NumSamples)
		}
		if info.SampleRate != SampleRate {
			t.Errorf("n=%d: SampleRate = %d", n, info.SampleRate)
		}
		if len(pcm) != n {
			t.Errorf("n=%d: len(pcm) = %d", n, len(pcm))
		}
	}
}

func TestEncodeWAVDeterministic(t *testing.T) {
	samples := sine(5000)
	a := EncodeWAV(samples, SampleRate)
	b := EncodeWAV(samples, SampleRate)
	if !bytes.Equal(a, b) {
		t.Error("repeated encodes differ")
	}
}

func TestToPCM16Scaling(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{1.7, 32767},
		{-3, -32768},
		{0.5, 16383},
		{-0.5, -16384},
	}
	for _, tt := range tests {
		got := ToPCM16([]float32{tt.in})[0]
		if got != tt.want {
			t.Errorf("ToPCM16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseWAVHeaderRejects(t *testing.T) {
	good := EncodeWAV(sine(10), SampleRate)

	truncated := good[:20]
	badTag := append([]byte(nil), good...)
	copy(badTag[0:4], "RIFX")
	shortData := append([]byte(nil), good[:WAVHeaderSize+4]...)

	for name, data := range map[string][]byte{
		"truncated":  truncated,
		"bad tag":    badTag,
		"short data": shortData,
	} {
		if _, err := ParseWAVHeader(data); !errors.Is(err, ErrInvalidWAV) {
			t.Errorf("%s: err = %v, want ErrInvalidWAV", name, err)
		}
	}
}
