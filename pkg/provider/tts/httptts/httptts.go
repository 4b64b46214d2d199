// Package httptts implements [tts.Provider] against an HTTP synthesis
// endpoint that accepts JSON and returns a WAV file, the primary contract
// for the synthesis stage.
package httptts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voxstream/coordinator/internal/wavutil"
	"github.com/voxstream/coordinator/pkg/audio"
	"github.com/voxstream/coordinator/pkg/provider/tts"
)

const defaultPath = "/tts"

// targetFormat is the format [tts.Provider] promises its callers: 16kHz
// mono signed-16-bit PCM.
var targetFormat = audio.Format{SampleRate: 16000, Channels: 1}

// Provider implements tts.Provider over an HTTP synthesis endpoint that
// returns WAV-encoded audio.
type Provider struct {
	baseURL    string
	path       string
	apiKey     string
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithPath overrides the default request path ("/tts").
func WithPath(path string) Option {
	return func(p *Provider) { p.path = path }
}

// WithAPIKey sets a bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

// WithHTTPClient overrides the default http.Client, e.g. to set a timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// New constructs a Provider against baseURL, the scheme+host of the
// synthesis server.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("httptts: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    baseURL,
		path:       defaultPath,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type synthesizeRequest struct {
	Text     string `json:"text"`
	VoiceID  string `json:"voice_id,omitempty"`
	Language string `json:"language,omitempty"`
}

// Synthesize implements tts.Provider. The response body is a WAV file at
// whatever sample rate, channel count, and bit depth the synthesis backend
// produces; it is decoded, then normalized to 16kHz mono PCM16 before
// returning, matching the contract every tts.Provider promises.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceConfig) ([]byte, error) {
	reqBody, err := json.Marshal(synthesizeRequest{
		Text:     text,
		VoiceID:  voice.VoiceID,
		Language: voice.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("httptts: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("httptts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httptts: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httptts: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httptts: server returned %d: %s", resp.StatusCode, body)
	}

	pcm, format, err := wavutil.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("httptts: decode wav: %w", err)
	}
	if format.BitsPerSample != 16 {
		return nil, fmt.Errorf("httptts: unsupported bit depth %d (only 16-bit PCM is supported)", format.BitsPerSample)
	}

	conv := audio.FormatConverter{Target: targetFormat}
	converted := conv.Convert(audio.AudioFrame{Data: pcm, SampleRate: format.SampleRate, Channels: format.Channels})
	if len(converted.Data) == 0 {
		return nil, fmt.Errorf("httptts: synthesis response produced no usable audio")
	}
	return converted.Data, nil
}
