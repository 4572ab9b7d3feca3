package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	gowav "github.com/go-audio/wav"
)

func TestConcatenateOrder(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{4, 5}

	got := Concatenate([][]byte{a, b})
	want := []byte{1, 2, 3, 4, 5}
	if !bytes.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestConcatenateEmpty(t *testing.T) {
	if got := Concatenate(nil); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
	if got := Concatenate([][]byte{{}, {7}, {}}); !bytes.Equal(got, []byte{7}) {
		t.Errorf("expected [7], got %v", got)
	}
}

func TestToWAVHeader(t *testing.T) {
	pcm := make([]byte, 300)
	out := ToWAV(pcm, 24000, 1)

	if len(out) != 44+300 {
		t.Fatalf("expected %d bytes, got %d", 44+300, len(out))
	}

	if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint32(out[4:8]); got != 36+300 {
		t.Errorf("ChunkSize: expected %d, got %d", 36+300, got)
	}
	if got := binary.LittleEndian.Uint16(out[20:22]); got != 1 {
		t.Errorf("format tag: expected 1 (PCM), got %d", got)
	}
	if got := binary.LittleEndian.Uint16(out[22:24]); got != 1 {
		t.Errorf("channels: expected 1, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(out[24:28]); got != 24000 {
		t.Errorf("sample rate: expected 24000, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(out[28:32]); got != 48000 {
		t.Errorf("ByteRate: expected 48000, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(out[32:34]); got != 2 {
		t.Errorf("BlockAlign: expected 2, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(out[34:36]); got != 16 {
		t.Errorf("BitsPerSample: expected 16, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != 300 {
		t.Errorf("Subchunk2Size: expected 300, got %d", got)
	}
}

// TestToWAVDecodable verifies the produced container against a real WAV
// decoder, not just our own header fields.
func TestToWAVDecodable(t *testing.T) {
	pcm := make([]byte, 8)
	for i, v := range []int16{100, -100, 32000, -32000} {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}

	dec := gowav.NewDecoder(bytes.NewReader(ToWAV(pcm, 24000, 1)))
	dec.ReadInfo()
	if dec.Err() != nil {
		t.Fatalf("decoder rejected container: %v", dec.Err())
	}
	if dec.SampleRate != 24000 {
		t.Errorf("decoded sample rate: expected 24000, got %d", dec.SampleRate)
	}
	if dec.NumChans != 1 {
		t.Errorf("decoded channels: expected 1, got %d", dec.NumChans)
	}
	if dec.BitDepth != 16 {
		t.Errorf("decoded bit depth: expected 16, got %d", dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("failed to read samples: %v", err)
	}
	want := []int{100, -100, 32000, -32000}
	if len(buf.Data) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(buf.Data))
	}
	for i, w := range want {
		if buf.Data[i] != w {
			t.Errorf("sample %d: expected %d, got %d", i, w, buf.Data[i])
		}
	}
}

// stubEncoder records the block sizes it receives and emits one fake frame
// per block plus a tail frame on flush.
type stubEncoder struct {
	blocks  []int
	flushed bool
}

func (s *stubEncoder) EncodeBlock(samples []int16) ([]byte, error) {
	s.blocks = append(s.blocks, len(samples))
	return []byte(fmt.Sprintf("F%d", len(s.blocks))), nil
}

func (s *stubEncoder) Flush() ([]byte, error) {
	s.flushed = true
	return []byte("T"), nil
}

func TestToMP3Blocks(t *testing.T) {
	// 2.5 blocks worth of samples
	pcm := make([]byte, (BlockSamples*2+500)*2)

	enc := &stubEncoder{}
	out, err := ToMP3(pcm, enc)
	if err != nil {
		t.Fatalf("ToMP3 failed: %v", err)
	}

	wantBlocks := []int{BlockSamples, BlockSamples, 500}
	if len(enc.blocks) != len(wantBlocks) {
		t.Fatalf("expected %d blocks, got %v", len(wantBlocks), enc.blocks)
	}
	for i, w := range wantBlocks {
		if enc.blocks[i] != w {
			t.Errorf("block %d: expected %d samples, got %d", i, w, enc.blocks[i])
		}
	}
	if !enc.flushed {
		t.Error("encoder was not flushed")
	}
	if string(out) != "F1F2F3T" {
		t.Errorf("frames assembled out of order: %q", out)
	}
}

func TestToMP3NoEncoder(t *testing.T) {
	if _, err := ToMP3(make([]byte, 4), nil); err != ErrEncoderUnavailable {
		t.Errorf("expected ErrEncoderUnavailable, got %v", err)
	}
}

func TestToMP3UnalignedPCM(t *testing.T) {
	if _, err := ToMP3(make([]byte, 3), &stubEncoder{}); err == nil {
		t.Error("expected error for unaligned pcm")
	}
}
