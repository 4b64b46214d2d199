// Package httpstt implements [stt.Provider] against an HTTP transcription
// endpoint that accepts a multipart file upload and returns JSON, the
// contract exposed by Whisper-compatible servers.
package httpstt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/voxstream/coordinator/internal/wavutil"
	"github.com/voxstream/coordinator/pkg/provider/stt"
)

const defaultPath = "/audio/transcriptions"

// Provider implements stt.Provider over a Whisper-style HTTP endpoint.
type Provider struct {
	baseURL    string
	path       string
	apiKey     string
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithPath overrides the default request path ("/audio/transcriptions").
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
// transcription server.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("httpstt: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    baseURL,
		path:       defaultPath,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type transcriptionResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Transcribe implements stt.Provider. audio must be PCM16 samples; it is
// wrapped in a WAV container before upload.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, cfg stt.StreamConfig) (stt.Transcript, error) {
	wav, err := wavutil.Encode(audio, cfg.SampleRate, cfg.Channels)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("httpstt: encode wav: %w", err)
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "window.wav")
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("httpstt: create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return stt.Transcript{}, fmt.Errorf("httpstt: write form file: %w", err)
	}
	if cfg.Language != "" {
		if err := mw.WriteField("language", cfg.Language); err != nil {
			return stt.Transcript{}, fmt.Errorf("httpstt: write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("httpstt: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.path, body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("httpstt: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("httpstt: request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("httpstt: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("httpstt: %w", &stt.StatusError{Code: resp.StatusCode, Body: string(respBody)})
	}

	var tr transcriptionResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return stt.Transcript{}, fmt.Errorf("httpstt: decode response: %w", err)
	}

	return stt.Transcript{Text: tr.Text, Confidence: tr.Confidence}, nil
}
