// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// HTTP synthesis endpoint. It implements the tts.Provider interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Mizu36/maddieply/pkg/audio"
	"github.com/Mizu36/maddieply/pkg/provider/tts"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_multilingual_v2"
	defaultOutputFmt = "pcm_22050"
)

// pcmRates maps the ElevenLabs PCM output formats to their sample rates.
var pcmRates = map[string]int{
	"pcm_16000": 16000,
	"pcm_22050": 22050,
	"pcm_24000": 24000,
	"pcm_44100": 44100,
}

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_multilingual_v2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the PCM output format (e.g., "pcm_22050").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithBaseURL overrides the API base URL, for tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// Provider implements tts.Provider backed by the ElevenLabs HTTP API.
type Provider struct {
	apiKey       string
	clipDir      string
	baseURL      string
	model        string
	outputFormat string
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider writing clips into clipDir. apiKey
// must be non-empty.
func New(apiKey, clipDir string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if err := os.MkdirAll(clipDir, 0o755); err != nil {
		return nil, fmt.Errorf("elevenlabs: clip dir: %w", err)
	}
	p := &Provider{
		apiKey:       apiKey,
		clipDir:      clipDir,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	if _, ok := pcmRates[p.outputFormat]; !ok {
		return nil, fmt.Errorf("elevenlabs: unsupported output format %q", p.outputFormat)
	}
	return p, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "elevenlabs" }

type synthesisRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize renders text through the HTTP endpoint. The endpoint returns
// headerless PCM for pcm_* output formats, which is wrapped into a WAV clip.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (string, error) {
	if voice.ID == "" {
		return "", errors.New("elevenlabs: voice.ID must not be empty")
	}

	body, err := json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: p.model,
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return "", fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", p.baseURL, voice.ID, p.outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("elevenlabs: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if quotaStatus(resp.StatusCode, string(msg)) {
			return "", fmt.Errorf("elevenlabs: %s: %w", resp.Status, tts.ErrQuotaExceeded)
		}
		return "", fmt.Errorf("elevenlabs: synthesis failed: %s: %s", resp.Status, msg)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	if len(pcm) == 0 {
		return "", errors.New("elevenlabs: empty audio response")
	}

	path := filepath.Join(p.clipDir, fmt.Sprintf("clip_%d.wav", time.Now().UnixNano()))
	if err := audio.WrapPCM16(path, pcm, pcmRates[p.outputFormat], 1); err != nil {
		return "", err
	}
	return path, nil
}

// quotaStatus recognises the quota responses: 429, or 401 with the
// quota_exceeded detail status ElevenLabs uses for spent character quotas.
func quotaStatus(code int, body string) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code == http.StatusUnauthorized && strings.Contains(body, "quota_exceeded")
}

var _ tts.Provider = (*Provider)(nil)
