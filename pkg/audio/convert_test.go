package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/voxstream/coordinator/pkg/audio"
)

func pcm16(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func samples16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func assertSamples(t *testing.T, got, want []int16) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMonoToStereo(t *testing.T) {
	got := samples16(audio.MonoToStereo(pcm16([]int16{100, 200, 300})))
	assertSamples(t, got, []int16{100, 100, 200, 200, 300, 300})
}

func TestMonoToStereo_DropsTrailingOddByte(t *testing.T) {
	pcm := []byte{0x64, 0x00, 0xC8, 0x00, 0xFF} // two complete samples + one junk byte
	got := samples16(audio.MonoToStereo(pcm))
	assertSamples(t, got, []int16{100, 100, 200, 200})
}

func TestStereoToMono(t *testing.T) {
	stereo := pcm16([]int16{100, 200, -100, -200})
	got := samples16(audio.StereoToMono(stereo))
	assertSamples(t, got, []int16{150, -150})
}

func TestStereoToMono_ClampsOnOverflow(t *testing.T) {
	stereo := pcm16([]int16{32767, 32767})
	got := samples16(audio.StereoToMono(stereo))
	assertSamples(t, got, []int16{32767})
}

func TestResampleMono16_SameRateIsNoOp(t *testing.T) {
	pcm := pcm16([]int16{100, 200, 300})
	out := audio.ResampleMono16(pcm, 48000, 48000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResampleMono16_Upsample3x(t *testing.T) {
	pcm := pcm16([]int16{1000, 2000})
	out := samples16(audio.ResampleMono16(pcm, 16000, 48000))
	if len(out) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(out))
	}
	if out[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", out[0])
	}
	if last := out[len(out)-1]; last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestResampleMono16_Downsample3x(t *testing.T) {
	pcm := pcm16([]int16{100, 200, 300, 400, 500, 600})
	out := samples16(audio.ResampleMono16(pcm, 48000, 16000))
	if len(out) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(out))
	}
}

func TestResampleMono16_NonPositiveRatesAreNoOps(t *testing.T) {
	pcm := pcm16([]int16{100, 200})
	for _, rates := range [][2]int{{0, 48000}, {48000, 0}, {-1, 48000}} {
		out := audio.ResampleMono16(pcm, rates[0], rates[1])
		if len(out) != len(pcm) {
			t.Errorf("rates %v: expected unchanged output, got len %d", rates, len(out))
		}
	}
}

func TestResampleStereo16_Upsample3x(t *testing.T) {
	pcm := pcm16([]int16{100, 200, 300, 400})
	out := samples16(audio.ResampleStereo16(pcm, 16000, 48000))
	if len(out) != 12 {
		t.Fatalf("expected 12 samples, got %d", len(out))
	}
}

func TestResampleStereo16_NonPositiveRatesAreNoOps(t *testing.T) {
	pcm := pcm16([]int16{100, 200, 300, 400})
	for _, rates := range [][2]int{{0, 48000}, {48000, 0}} {
		out := audio.ResampleStereo16(pcm, rates[0], rates[1])
		if len(out) != len(pcm) {
			t.Errorf("rates %v: expected unchanged output, got len %d", rates, len(out))
		}
	}
}

func TestFormatConverter_MatchingFormatIsZeroAlloc(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 2}}
	frame := audio.AudioFrame{Data: pcm16([]int16{100, 200}), SampleRate: 48000, Channels: 2}
	result := conv.Convert(frame)
	if &result.Data[0] != &frame.Data[0] {
		t.Error("expected the same backing slice when source already matches target")
	}
}

func TestFormatConverter_MonoToStereo(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 2}}
	frame := audio.AudioFrame{Data: pcm16([]int16{100, 200, 300}), SampleRate: 48000, Channels: 1}
	result := conv.Convert(frame)
	assertSamples(t, samples16(result.Data), []int16{100, 100, 200, 200, 300, 300})
	if result.SampleRate != 48000 || result.Channels != 2 {
		t.Errorf("unexpected format: %dHz %dch", result.SampleRate, result.Channels)
	}
}

func TestFormatConverter_FullConversion(t *testing.T) {
	// 22050Hz mono in, 48000Hz stereo out: both resampling and remixing apply.
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 2}}
	frame := audio.AudioFrame{Data: pcm16([]int16{1000, 2000}), SampleRate: 22050, Channels: 1}
	result := conv.Convert(frame)
	if result.SampleRate != 48000 || result.Channels != 2 {
		t.Fatalf("expected 48000Hz stereo, got %dHz %dch", result.SampleRate, result.Channels)
	}
	got := samples16(result.Data)
	if len(got) == 0 || len(got)%2 != 0 {
		t.Errorf("expected a non-empty even-length stereo sample set, got %d samples", len(got))
	}
}

func TestFormatConverter_OddByteCountIsDropped(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 1}}
	frame := audio.AudioFrame{Data: []byte{1, 2, 3}, SampleRate: 22050, Channels: 1}
	result := conv.Convert(frame)
	if len(result.Data) != 0 {
		t.Errorf("expected empty data for odd byte count, got %d bytes", len(result.Data))
	}
	if result.SampleRate != 48000 || result.Channels != 1 {
		t.Errorf("dropped frame should carry target format, got %dHz %dch", result.SampleRate, result.Channels)
	}
}

func TestFormatConverter_OddByteCountDroppedEvenWhenFormatsMatch(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 1}}
	frame := audio.AudioFrame{Data: []byte{1, 2, 3}, SampleRate: 48000, Channels: 1}
	result := conv.Convert(frame)
	if len(result.Data) != 0 {
		t.Errorf("expected empty data for odd byte count even when formats already match, got %d bytes", len(result.Data))
	}
}

func TestConvertStream(t *testing.T) {
	in := make(chan audio.AudioFrame, 3)
	out := audio.ConvertStream(in, audio.Format{SampleRate: 48000, Channels: 2})

	in <- audio.AudioFrame{Data: pcm16([]int16{100, 200}), SampleRate: 48000, Channels: 1} // needs remix
	in <- audio.AudioFrame{Data: []byte{1, 2, 3}, SampleRate: 48000, Channels: 1}          // dropped
	in <- audio.AudioFrame{Data: pcm16([]int16{500, 600, 700, 800}), SampleRate: 48000, Channels: 2}
	close(in)

	var results []audio.AudioFrame
	for frame := range out {
		results = append(results, frame)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 frames (odd-byte frame dropped), got %d", len(results))
	}
	assertSamples(t, samples16(results[0].Data), []int16{100, 100, 200, 200})
	assertSamples(t, samples16(results[1].Data), []int16{500, 600, 700, 800})
}
