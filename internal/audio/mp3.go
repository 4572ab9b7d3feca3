package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// BlockSamples is the number of PCM samples fed to the encoder per block,
// matching the MPEG-1 Layer III frame size.
const BlockSamples = 1152

// ErrEncoderUnavailable is returned when no MP3 frame encoder can be
// constructed (e.g. the ffmpeg binary is not installed). WAV export has no
// such dependency and cannot fail this way.
var ErrEncoderUnavailable = errors.New("mp3 encoder unavailable")

// FrameEncoder encodes blocks of 16-bit PCM samples into MP3 frames.
// EncodeBlock may return nil bytes when the encoder is still buffering;
// Flush drains everything that remains.
type FrameEncoder interface {
	EncodeBlock(samples []int16) ([]byte, error)
	Flush() ([]byte, error)
}

// ToMP3 reinterprets pcm as 16-bit signed little-endian samples, feeds them
// through enc in BlockSamples-sized blocks, flushes the encoder, and
// concatenates all emitted frames.
func ToMP3(pcm []byte, enc FrameEncoder) ([]byte, error) {
	if enc == nil {
		return nil, ErrEncoderUnavailable
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned to 16-bit samples (%d bytes)", len(pcm))
	}

	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}

	var frames [][]byte
	for start := 0; start < len(samples); start += BlockSamples {
		end := start + BlockSamples
		if end > len(samples) {
			end = len(samples)
		}
		frame, err := enc.EncodeBlock(samples[start:end])
		if err != nil {
			return nil, fmt.Errorf("encode block at sample %d: %w", start, err)
		}
		if len(frame) > 0 {
			frames = append(frames, frame)
		}
	}

	tail, err := enc.Flush()
	if err != nil {
		return nil, fmt.Errorf("flush encoder: %w", err)
	}
	if len(tail) > 0 {
		frames = append(frames, tail)
	}

	return Concatenate(frames), nil
}
