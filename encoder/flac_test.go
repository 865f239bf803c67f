package encoder

import (
	"bytes"
	"testing"
)

func TestFlacEncoderEmpty(t *testing.T) {
	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close on empty encoder: %v", err)
	}
	if enc.TotalFrames() != 0 {
		t.Errorf("TotalFrames = %d, want 0", enc.TotalFrames())
	}
	if len(enc.Bytes()) == 0 {
		t.Error("expected non-empty FLAC output (at least header)")
	}
}

func TestFlacEncoderPartialBlock(t *testing.T) {
	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}

	partial := make([]int16, BlockSize/4)
	for i := range partial {
		partial[i] = int16(i % 1000)
	}

	if err := enc.EncodeBlock(partial); err != nil {
		t.Fatalf("EncodeBlock partial: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if enc.TotalFrames() != uint64(len(partial)) {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), len(partial))
	}
}

func TestCompressWAVRoundTrip(t *testing.T) {
	wav := EncodeWAV(sine(BlockSize*2+100), SampleRate)

	packed, err := CompressWAV(wav)
	if err != nil {
		t.Fatalf("CompressWAV: %v", err)
	}
	if len(packed) < 4 || string(packed[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}

	restored, err := DecompressToWAV(packed)
	if err != nil {
		t.Fatalf("DecompressToWAV: %v", err)
	}
	if !bytes.Equal(restored, wav) {
		t.Errorf("restored WAV differs: %d bytes vs %d", len(restored), len(wav))
	}
}

func TestCompressWAVRejectsGarbage(t *testing.T) {
	if _, err := CompressWAV([]byte("not a wav")); err == nil {
		t.Error("expected error for garbage input")
	}
}
