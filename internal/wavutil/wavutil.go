// Package wavutil wraps raw PCM16 samples in a minimal WAV container for
// transcription backends that require a file upload rather than a raw byte
// stream, and unwraps WAV responses synthesis backends send back. The
// stdlib has no WAV codec, so this is written by hand rather than pulled in
// as a dependency for a few dozen lines of header math.
package wavutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encode wraps pcm (little-endian int16 samples) in a RIFF/WAVE container.
func Encode(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("wavutil: invalid sample rate %d or channel count %d", sampleRate, channels)
	}

	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// Format is a WAV "fmt " chunk's sample rate, channel count and bit depth.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Decode parses a RIFF/WAVE container's "fmt " and "data" chunks, returning
// the raw PCM payload and the format it actually carries. Callers must not
// assume the result matches any particular target rate, channel count, or
// bit depth — a WAV's header describes whatever the source actually wrote,
// which routinely differs from what a downstream consumer wants.
func Decode(data []byte) ([]byte, Format, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("wavutil: not a RIFF/WAVE file")
	}

	var (
		format   Format
		pcm      []byte
		haveFmt  bool
		haveData bool
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := binary.LittleEndian.Uint32(data[pos+4 : pos+8])
		pos += 8
		if pos+int(size) > len(data) {
			return nil, Format{}, fmt.Errorf("wavutil: truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, Format{}, fmt.Errorf("wavutil: fmt chunk too short (%d bytes)", size)
			}
			chunk := data[pos : pos+int(size)]
			format = Format{
				Channels:      int(binary.LittleEndian.Uint16(chunk[2:4])),
				SampleRate:    int(binary.LittleEndian.Uint32(chunk[4:8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(chunk[14:16])),
			}
			haveFmt = true
		case "data":
			pcm = data[pos : pos+int(size)]
			haveData = true
		}

		pos += int(size)
		if size%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}

	if !haveFmt {
		return nil, Format{}, fmt.Errorf("wavutil: no fmt chunk found")
	}
	if !haveData {
		return nil, Format{}, fmt.Errorf("wavutil: no data chunk found")
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, Format{}, fmt.Errorf("wavutil: fmt chunk has invalid sample rate %d or channel count %d", format.SampleRate, format.Channels)
	}
	return pcm, format, nil
}
