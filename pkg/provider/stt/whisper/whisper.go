// Package whisper provides an stt.Provider backed by a running whisper.cpp
// server (the `whisper-server` binary's /inference endpoint).
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/Mizu36/maddieply/pkg/audio"
	"github.com/Mizu36/maddieply/pkg/provider/stt"
)

// Option is a functional option for configuring the whisper Provider.
type Option func(*Provider)

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithLanguage sets the transcription language hint (e.g. "en").
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// Provider implements stt.Provider against a whisper.cpp server.
type Provider struct {
	baseURL    string
	language   string
	httpClient *http.Client
}

// New creates a Provider talking to the whisper server at baseURL
// (e.g. "http://127.0.0.1:8178").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("whisper: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Transcribe implements stt.Provider. The clip is sent as a WAV attachment to
// the server's /inference endpoint.
func (p *Provider) Transcribe(ctx context.Context, clip *audio.Clip) (string, error) {
	if clip == nil || len(clip.Samples) == 0 {
		return "", errors.New("whisper: empty clip")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "capture.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: build form: %w", err)
	}
	if err := audio.Encode(fw, clip); err != nil {
		return "", fmt.Errorf("whisper: encode clip: %w", err)
	}
	mw.WriteField("response_format", "json")
	if p.language != "" {
		mw.WriteField("language", p.language)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("whisper: inference failed: %s: %s", resp.Status, msg)
	}

	var out inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("whisper: server error: %s", out.Error)
	}
	return strings.TrimSpace(out.Text), nil
}

var _ stt.Provider = (*Provider)(nil)
