package elevenlabs

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Mizu36/maddieply/pkg/audio"
	"github.com/Mizu36/maddieply/pkg/provider/tts"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New("", t.TempDir()); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNewRejectsUnknownOutputFormat(t *testing.T) {
	t.Parallel()

	if _, err := New("key", t.TempDir(), WithOutputFormat("mp3_44100_128")); err == nil {
		t.Fatal("expected error for non-PCM output format")
	}
}

func TestSynthesizeWritesWAVClip(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 2*2205) // 100 ms of silence at 22050 Hz
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice123" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("output_format"); got != "pcm_22050" {
			t.Errorf("output_format = %q", got)
		}
		if got := r.Header.Get("xi-api-key"); got != "key" {
			t.Errorf("xi-api-key = %q", got)
		}
		var req synthesisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Text != "hello chat" {
			t.Errorf("text = %q", req.Text)
		}
		w.Write(pcm)
	}))
	defer srv.Close()

	p, err := New("key", t.TempDir(), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path, err := p.Synthesize(t.Context(), "hello chat", tts.VoiceProfile{ID: "voice123"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	clip, err := audio.DecodeFile(path)
	if err != nil {
		t.Fatalf("clip not decodable: %v", err)
	}
	if clip.SampleRate != 22050 || clip.Channels != 1 {
		t.Fatalf("clip format = %d Hz / %d ch", clip.SampleRate, clip.Channels)
	}
	if len(clip.Samples) != len(pcm)/2 {
		t.Fatalf("sample count = %d; want %d", len(clip.Samples), len(pcm)/2)
	}
}

func TestSynthesizeQuotaMapsToSentinel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"too many requests", http.StatusTooManyRequests, `{"detail":"rate limited"}`},
		{"character quota", http.StatusUnauthorized, `{"detail":{"status":"quota_exceeded"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p, err := New("key", t.TempDir(), WithBaseURL(srv.URL))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			_, err = p.Synthesize(t.Context(), "text", tts.VoiceProfile{ID: "v"})
			if !errors.Is(err, tts.ErrQuotaExceeded) {
				t.Fatalf("Synthesize = %v; want ErrQuotaExceeded", err)
			}
		})
	}
}

func TestSynthesizePlainAuthFailureIsNotQuota(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":{"status":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	p, err := New("key", t.TempDir(), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Synthesize(t.Context(), "text", tts.VoiceProfile{ID: "v"})
	if err == nil || errors.Is(err, tts.ErrQuotaExceeded) {
		t.Fatalf("Synthesize = %v; want a non-quota error", err)
	}
}

func TestSynthesizeRequiresVoiceID(t *testing.T) {
	t.Parallel()

	p, err := New("key", t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(t.Context(), "text", tts.VoiceProfile{}); err == nil {
		t.Fatal("expected error for empty voice ID")
	}
}
