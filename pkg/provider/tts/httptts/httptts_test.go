package httptts

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voxstream/coordinator/pkg/provider/tts"
)

// buildTestWAV constructs a minimal RIFF/WAVE byte slice at the given
// sample rate, channel count and bit depth, wrapping pcm verbatim.
func buildTestWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, 0, 44+len(pcm))
	le := binary.LittleEndian
	putU32 := func(v uint32) { var b [4]byte; le.PutUint32(b[:], v); buf = append(buf, b[:]...) }
	putU16 := func(v uint16) { var b [2]byte; le.PutUint16(b[:], v); buf = append(buf, b[:]...) }

	buf = append(buf, []byte("RIFF")...)
	putU32(uint32(36 + len(pcm)))
	buf = append(buf, []byte("WAVE")...)

	buf = append(buf, []byte("fmt ")...)
	putU32(16)
	putU16(1) // PCM
	putU16(uint16(channels))
	putU32(uint32(sampleRate))
	putU32(uint32(byteRate))
	putU16(uint16(blockAlign))
	putU16(uint16(bitsPerSample))

	buf = append(buf, []byte("data")...)
	putU32(uint32(len(pcm)))
	buf = append(buf, pcm...)

	return buf
}

func mono16(n int, value int16) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(value))
	}
	return buf
}

func TestSynthesize_ResamplesNonNativeRateToTarget(t *testing.T) {
	// 100 samples at 44100Hz mono should downsample to ~36 samples at 16kHz.
	pcm := mono16(100, 12345)
	wav := buildTestWAV(pcm, 44100, 1, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.Synthesize(context.Background(), "hello", tts.VoiceConfig{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	gotSamples := len(got) / 2
	if gotSamples < 30 || gotSamples > 42 {
		t.Errorf("resampled sample count = %d, want ~36 (16kHz from 44100Hz input)", gotSamples)
	}
}

func TestSynthesize_DownmixesStereoToMono(t *testing.T) {
	stereoPCM := make([]byte, 40) // 10 stereo frames at 16kHz
	for i := 0; i < 10; i++ {
		binary.LittleEndian.PutUint16(stereoPCM[i*4:], uint16(1000))
		binary.LittleEndian.PutUint16(stereoPCM[i*4+2:], uint16(3000))
	}
	wav := buildTestWAV(stereoPCM, 16000, 2, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.Synthesize(context.Background(), "hello", tts.VoiceConfig{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(got) != 20 { // 10 mono samples
		t.Fatalf("downmixed byte count = %d, want 20", len(got))
	}
	avg := int16(binary.LittleEndian.Uint16(got[0:2]))
	if avg != 2000 {
		t.Errorf("downmixed sample = %d, want 2000 (average of 1000 and 3000)", avg)
	}
}

func TestSynthesize_AlreadyNativeFormatPassesThroughUnchanged(t *testing.T) {
	pcm := mono16(50, 7777)
	wav := buildTestWAV(pcm, 16000, 1, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.Synthesize(context.Background(), "hello", tts.VoiceConfig{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(got) != string(pcm) {
		t.Error("native-format PCM should pass through unmodified")
	}
}

func TestSynthesize_RejectsUnsupportedBitDepth(t *testing.T) {
	wav := buildTestWAV(make([]byte, 8), 16000, 1, 8)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Synthesize(context.Background(), "hello", tts.VoiceConfig{}); err == nil {
		t.Fatal("expected error for 8-bit WAV payload")
	}
}

func TestSynthesize_SendsTextAndVoiceInRequestBody(t *testing.T) {
	wav := buildTestWAV(mono16(4, 1), 16000, 1, 16)

	var gotReq synthesizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Synthesize(context.Background(), "hello there", tts.VoiceConfig{VoiceID: "v1", Language: "en"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if gotReq.Text != "hello there" || gotReq.VoiceID != "v1" || gotReq.Language != "en" {
		t.Errorf("request body = %+v, want text/voice/language to be forwarded", gotReq)
	}
}

func TestSynthesize_ServerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "synthesis failed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Synthesize(context.Background(), "hello", tts.VoiceConfig{}); err == nil {
		t.Fatal("expected error on server failure")
	}
}

func TestNew_RejectsEmptyBaseURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestNew_WithOptions(t *testing.T) {
	p, err := New("http://localhost:9000", WithPath("/synthesize"), WithAPIKey("secret"), WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.path != "/synthesize" {
		t.Errorf("path = %q, want /synthesize", p.path)
	}
	if p.apiKey != "secret" {
		t.Errorf("apiKey = %q, want secret", p.apiKey)
	}
	if p.httpClient.Timeout != 5*time.Second {
		t.Errorf("httpClient.Timeout = %v, want 5s", p.httpClient.Timeout)
	}
}
