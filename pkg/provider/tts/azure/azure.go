// Package azure provides an Azure Cognitive Services Speech TTS provider.
// It implements the tts.Provider interface and is typically configured as the
// backup behind ElevenLabs.
package azure

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Mizu36/maddieply/pkg/provider/tts"
)

const (
	endpointFmt = "https://%s.tts.speech.microsoft.com/cognitiveservices/v1"

	// outputFormat asks for a complete RIFF WAV, playable as-is.
	outputFormat = "riff-22050hz-16bit-mono-pcm"
)

// Option is a functional option for configuring the Azure Provider.
type Option func(*Provider)

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithEndpoint overrides the synthesis endpoint URL, for tests.
func WithEndpoint(url string) Option {
	return func(p *Provider) {
		p.endpoint = url
	}
}

// Provider implements tts.Provider backed by the Azure Speech REST API.
type Provider struct {
	key        string
	clipDir    string
	endpoint   string
	httpClient *http.Client
}

// New creates a new Azure Provider for the given region, writing clips into
// clipDir.
func New(key, region, clipDir string, opts ...Option) (*Provider, error) {
	if key == "" {
		return nil, errors.New("azure: key must not be empty")
	}
	if region == "" {
		return nil, errors.New("azure: region must not be empty")
	}
	if err := os.MkdirAll(clipDir, 0o755); err != nil {
		return nil, fmt.Errorf("azure: clip dir: %w", err)
	}
	p := &Provider{
		key:        key,
		clipDir:    clipDir,
		endpoint:   fmt.Sprintf(endpointFmt, region),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "azure" }

// Synthesize renders text via SSML. voice.ID is the Azure voice short name
// (e.g. "en-US-JennyNeural"); an optional speaking style is read from
// voice.Metadata["style"].
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (string, error) {
	if voice.ID == "" {
		return "", errors.New("azure: voice.ID must not be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint,
		strings.NewReader(buildSSML(text, voice)))
	if err != nil {
		return "", fmt.Errorf("azure: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", outputFormat)
	req.Header.Set("Ocp-Apim-Subscription-Key", p.key)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("azure: synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("azure: %s: %w", resp.Status, tts.ErrQuotaExceeded)
		}
		return "", fmt.Errorf("azure: synthesis failed: %s: %s", resp.Status, msg)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("azure: read audio: %w", err)
	}
	if len(wav) == 0 {
		return "", errors.New("azure: empty audio response")
	}

	path := filepath.Join(p.clipDir, fmt.Sprintf("clip_%d.wav", time.Now().UnixNano()))
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return "", fmt.Errorf("azure: write clip: %w", err)
	}
	return path, nil
}

func buildSSML(text string, voice tts.VoiceProfile) string {
	var b strings.Builder
	b.WriteString(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" `)
	b.WriteString(`xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="en-US">`)
	fmt.Fprintf(&b, `<voice name="%s">`, voice.ID)

	style := voice.Metadata["style"]
	if style != "" {
		fmt.Fprintf(&b, `<mstts:express-as style="%s">`, style)
	}
	b.WriteString(html.EscapeString(text))
	if style != "" {
		b.WriteString(`</mstts:express-as>`)
	}
	b.WriteString(`</voice></speak>`)
	return b.String()
}

var _ tts.Provider = (*Provider)(nil)
