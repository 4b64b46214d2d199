package audio

// FrameBytes is the size in bytes of one 20ms frame of 16kHz mono signed-16-bit
// PCM: 320 samples * 2 bytes/sample.
const (
	FrameDurationMs = 20
	FrameSampleRate = 16000
	FrameSamples    = FrameSampleRate * FrameDurationMs / 1000
	FrameBytes      = FrameSamples * 2
)

// Framer slices a continuous PCM stream into fixed-size [FrameBytes] frames,
// padding the final partial frame with zeros. It is used once per TTS
// segment and discarded; it holds no state beyond the current segment's
// leftover bytes.
type Framer struct {
	pending []byte
}

// Push appends pcm to the framer's internal buffer and returns every
// complete frame that can be extracted. Leftover bytes are retained for the
// next call to Push or Flush.
func (f *Framer) Push(pcm []byte) [][]byte {
	f.pending = append(f.pending, pcm...)
	var frames [][]byte
	for len(f.pending) >= FrameBytes {
		frame := make([]byte, FrameBytes)
		copy(frame, f.pending[:FrameBytes])
		frames = append(frames, frame)
		f.pending = f.pending[FrameBytes:]
	}
	return frames
}

// Flush returns the final, zero-padded frame built from any leftover bytes,
// or nil if nothing is pending. Resets the framer's internal state.
func (f *Framer) Flush() []byte {
	if len(f.pending) == 0 {
		return nil
	}
	frame := make([]byte, FrameBytes)
	copy(frame, f.pending)
	f.pending = nil
	return frame
}
