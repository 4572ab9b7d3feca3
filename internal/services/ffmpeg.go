package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"

	"github.com/enzocage/audiobook-forge/internal/audio"
)

// ---------------------------------------------------------------------------
// FFmpegService
// Provides MP3 frame encoding by piping raw s16le PCM through ffmpeg's
// libmp3lame. The binary is an external precondition: when it is missing,
// encoder construction fails with audio.ErrEncoderUnavailable and only the
// MP3 export path is affected — WAV export never touches ffmpeg.
// ---------------------------------------------------------------------------

type FFmpegService struct {
	binary string
}

func NewFFmpegService() *FFmpegService {
	return &FFmpegService{binary: "ffmpeg"}
}

// NewMP3Encoder starts an ffmpeg process that consumes raw PCM blocks on
// stdin and emits MP3 frames on stdout. The returned encoder satisfies
// audio.FrameEncoder; callers must Flush it to terminate the process.
func (s *FFmpegService) NewMP3Encoder(ctx context.Context, sampleRate, channels, bitrateKbps int) (audio.FrameEncoder, error) {
	path, err := exec.LookPath(s.binary)
	if err != nil {
		return nil, fmt.Errorf("%s not found in PATH: %w", s.binary, audio.ErrEncoderUnavailable)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-i", "pipe:0",
		"-b:a", fmt.Sprintf("%dk", bitrateKbps),
		"-f", "mp3",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	log.Printf("[FFmpeg] MP3 encoder started (rate=%d, channels=%d, bitrate=%dk)", sampleRate, channels, bitrateKbps)

	enc := &mp3Encoder{
		cmd:    cmd,
		stdin:  stdin,
		stderr: &stderr,
		done:   make(chan struct{}),
	}
	go enc.drain(stdout)

	return enc, nil
}

// mp3Encoder adapts a running ffmpeg process to the audio.FrameEncoder
// contract. A single goroutine drains stdout so stdin writes never deadlock
// against a full pipe.
type mp3Encoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	done   chan struct{}

	mu      sync.Mutex
	out     bytes.Buffer
	readErr error
}

func (e *mp3Encoder) drain(stdout io.Reader) {
	defer close(e.done)
	buf := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			e.mu.Lock()
			e.out.Write(buf[:n])
			e.mu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				e.mu.Lock()
				e.readErr = err
				e.mu.Unlock()
			}
			return
		}
	}
}

// EncodeBlock writes one block of samples to the encoder and returns any
// frames that have been emitted so far. ffmpeg buffers internally, so nil
// output for a given block is normal.
func (e *mp3Encoder) EncodeBlock(samples []int16) ([]byte, error) {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}

	if _, err := e.stdin.Write(raw); err != nil {
		return nil, fmt.Errorf("write to ffmpeg: %w (stderr: %s)", err, e.stderr.String())
	}

	return e.take(), nil
}

// Flush closes the input stream, waits for ffmpeg to exit, and returns all
// remaining frames.
func (e *mp3Encoder) Flush() ([]byte, error) {
	if err := e.stdin.Close(); err != nil {
		return nil, fmt.Errorf("close ffmpeg stdin: %w", err)
	}

	<-e.done
	if err := e.cmd.Wait(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w (stderr: %s)", err, e.stderr.String())
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.readErr != nil {
		return nil, fmt.Errorf("read ffmpeg output: %w", e.readErr)
	}

	rest := make([]byte, e.out.Len())
	copy(rest, e.out.Bytes())
	e.out.Reset()
	return rest, nil
}

func (e *mp3Encoder) take() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.out.Len() == 0 {
		return nil
	}
	taken := make([]byte, e.out.Len())
	copy(taken, e.out.Bytes())
	e.out.Reset()
	return taken
}
