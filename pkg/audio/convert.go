package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format is a sample rate and channel count pair describing a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatConverter converts AudioFrames to Target, resampling and/or
// remixing channels as needed. It logs the first mismatch and the first
// corrupt frame it sees, then stays quiet for the rest of its lifetime.
// One converter belongs to a single stream; do not share across goroutines.
type FormatConverter struct {
	Target Format

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns frame adjusted to c.Target. A frame whose format already
// matches the target is returned unmodified (no allocation). A frame with an
// odd byte count cannot be interpreted as 16-bit PCM and is dropped — the
// returned frame carries c.Target's format with nil data so callers can
// detect the drop without a second type.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio: dropping frame with odd byte count",
				"bytes", len(frame.Data),
				"sampleRate", frame.SampleRate,
				"channels", frame.Channels,
			)
		})
		return AudioFrame{
			SampleRate: c.Target.SampleRate,
			Channels:   c.Target.Channels,
			Timestamp:  frame.Timestamp,
		}
	}

	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio: converting mismatched frame format",
			"from", formatString(frame.SampleRate, frame.Channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	pcm, rate, channels := frame.Data, frame.SampleRate, frame.Channels

	// Resample before remixing channels so a mono->stereo source never pays
	// for resampling twice as many samples as it needs to.
	if rate != c.Target.SampleRate {
		if channels == 1 {
			pcm = ResampleMono16(pcm, rate, c.Target.SampleRate)
		} else {
			pcm = ResampleStereo16(pcm, rate, c.Target.SampleRate)
		}
		rate = c.Target.SampleRate
	}

	if channels != c.Target.Channels {
		switch {
		case channels == 1 && c.Target.Channels == 2:
			pcm = MonoToStereo(pcm)
		case channels == 2 && c.Target.Channels == 1:
			pcm = StereoToMono(pcm)
		}
		channels = c.Target.Channels
	}

	return AudioFrame{Data: pcm, SampleRate: rate, Channels: channels, Timestamp: frame.Timestamp}
}

// ConvertStream applies a FormatConverter to every frame read from in,
// dropping frames Convert rejects (e.g. odd byte count), and closes the
// returned channel once in is drained and closed. The output channel shares
// in's buffer capacity.
func ConvertStream(in <-chan AudioFrame, target Format) <-chan AudioFrame {
	out := make(chan AudioFrame, cap(in))
	go func() {
		defer close(out)
		conv := FormatConverter{Target: target}
		for frame := range in {
			converted := conv.Convert(frame)
			if len(converted.Data) == 0 {
				continue
			}
			out <- converted
		}
	}()
	return out
}

// MonoToStereo duplicates each little-endian int16 mono sample into an L+R
// stereo pair. Any trailing odd byte is dropped rather than padded.
func MonoToStereo(pcm []byte) []byte {
	samples := len(pcm) / 2
	out := make([]byte, samples*4)
	for i := 0; i < samples; i++ {
		lo, hi := pcm[i*2], pcm[i*2+1]
		j := i * 4
		out[j], out[j+1] = lo, hi
		out[j+2], out[j+3] = lo, hi
	}
	return out
}

// StereoToMono averages the L and R channel of each stereo frame (4 bytes)
// using 32-bit arithmetic to avoid overflow, clamping the result back into
// the int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2
		switch {
		case avg > 32767:
			avg = 32767
		case avg < -32768:
			avg = -32768
		}
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 linearly resamples little-endian int16 mono PCM from
// srcRate to dstRate. Non-positive rates or a srcRate == dstRate pair return
// pcm unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		s0 := int16(pcm[idx*2]) | int16(pcm[idx*2+1])<<8
		s1 := s0
		if idx+1 < srcSamples {
			s1 = int16(pcm[(idx+1)*2]) | int16(pcm[(idx+1)*2+1])<<8
		}

		sample := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(sample)
		out[i*2+1] = byte(sample >> 8)
	}
	return out
}

// ResampleStereo16 linearly resamples little-endian int16 interleaved
// stereo PCM (4 bytes per frame) from srcRate to dstRate. Non-positive rates
// or a srcRate == dstRate pair return pcm unchanged.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 4 {
		return pcm
	}
	srcFrames := len(pcm) / 4
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*4)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		l0 := int16(pcm[idx*4]) | int16(pcm[idx*4+1])<<8
		r0 := int16(pcm[idx*4+2]) | int16(pcm[idx*4+3])<<8
		l1, r1 := l0, r0
		if idx+1 < srcFrames {
			l1 = int16(pcm[(idx+1)*4]) | int16(pcm[(idx+1)*4+1])<<8
			r1 = int16(pcm[(idx+1)*4+2]) | int16(pcm[(idx+1)*4+3])<<8
		}

		lOut := int16(float64(l0)*(1-frac) + float64(l1)*frac)
		rOut := int16(float64(r0)*(1-frac) + float64(r1)*frac)

		out[i*4] = byte(lOut)
		out[i*4+1] = byte(lOut >> 8)
		out[i*4+2] = byte(rOut)
		out[i*4+3] = byte(rOut >> 8)
	}
	return out
}

func formatString(rate, channels int) string {
	ch := "mono"
	switch {
	case channels == 2:
		ch = "stereo"
	case channels > 2:
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
