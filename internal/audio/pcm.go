// Package audio assembles raw 16-bit PCM buffers into playable artifacts.
// Concatenation and WAV packaging are pure functions so the worker can
// rebuild a preview artifact after every completed chunk.
package audio

// Concatenate joins PCM buffers in order into a single buffer,
// byte-for-byte, with no gaps and no resampling.
func Concatenate(buffers [][]byte) []byte {
	total := 0
	for _, b := range buffers {
		total += len(b)
	}

	out := make([]byte, 0, total)
	for _, b := range buffers {
		out = append(out, b...)
	}
	return out
}
