package audio

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func sine(rate int, freq float64, dur time.Duration, amp float64) []int16 {
	n := int(float64(rate) * dur.Seconds())
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	clip := &Clip{SampleRate: 22050, Channels: 1, Samples: sine(22050, 440, 100*time.Millisecond, 0.5)}

	var buf bytes.Buffer
	if err := Encode(&buf, clip); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.SampleRate != clip.SampleRate || got.Channels != clip.Channels {
		t.Fatalf("format = %d Hz / %d ch; want %d Hz / %d ch",
			got.SampleRate, got.Channels, clip.SampleRate, clip.Channels)
	}
	if len(got.Samples) != len(clip.Samples) {
		t.Fatalf("sample count = %d; want %d", len(got.Samples), len(clip.Samples))
	}
	for i := range got.Samples {
		if got.Samples[i] != clip.Samples[i] {
			t.Fatalf("sample %d = %d; want %d", i, got.Samples[i], clip.Samples[i])
		}
	}
}

func TestDecodeRejectsNonWAV(t *testing.T) {
	t.Parallel()

	_, err := Decode(bytes.NewReader([]byte("OggS this is not a wav file at all")))
	if !errors.Is(err, ErrNotWAV) {
		t.Fatalf("Decode = %v; want ErrNotWAV", err)
	}
}

func TestDecodeSkipsUnknownChunks(t *testing.T) {
	t.Parallel()

	clip := &Clip{SampleRate: 8000, Channels: 1, Samples: []int16{1, 2, 3, 4}}
	var buf bytes.Buffer
	if err := Encode(&buf, clip); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Splice a LIST chunk between the fmt and data chunks.
	raw := buf.Bytes()
	withList := append([]byte{}, raw[:36]...)
	withList = append(withList, []byte{'L', 'I', 'S', 'T', 4, 0, 0, 0, 'I', 'N', 'F', 'O'}...)
	withList = append(withList, raw[36:]...)

	got, err := Decode(bytes.NewReader(withList))
	if err != nil {
		t.Fatalf("Decode with LIST chunk: %v", err)
	}
	if len(got.Samples) != 4 {
		t.Fatalf("sample count = %d; want 4", len(got.Samples))
	}
}

func TestWrapPCM16ProducesDecodableFile(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes(sine(16000, 220, 50*time.Millisecond, 0.8))
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := WrapPCM16(path, pcm, 16000, 1); err != nil {
		t.Fatalf("WrapPCM16: %v", err)
	}

	clip, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Fatalf("format = %d Hz / %d ch", clip.SampleRate, clip.Channels)
	}
	if got, want := clip.Duration(), 50*time.Millisecond; got != want {
		t.Fatalf("duration = %v; want %v", got, want)
	}
}

func TestEnvelopeTracksLoudness(t *testing.T) {
	t.Parallel()

	// 100 ms loud then 100 ms near-silent: four 50 ms frames.
	loud := sine(16000, 440, 100*time.Millisecond, 0.9)
	quiet := sine(16000, 440, 100*time.Millisecond, 0.05)
	clip := &Clip{SampleRate: 16000, Channels: 1, Samples: append(loud, quiet...)}

	env := clip.Envelope()
	if len(env) != 4 {
		t.Fatalf("envelope frames = %d; want 4", len(env))
	}
	if env[0] < 0.9 {
		t.Fatalf("loud frame level = %f; want near 1.0 after normalisation", env[0])
	}
	if env[3] > 0.2 {
		t.Fatalf("quiet frame level = %f; want well below the loud frames", env[3])
	}
}

func TestEnvelopeSilentClipAllZeros(t *testing.T) {
	t.Parallel()

	clip := &Clip{SampleRate: 16000, Channels: 1, Samples: make([]int16, 16000)}
	for i, v := range clip.Envelope() {
		if v != 0 {
			t.Fatalf("frame %d = %f; want 0 for silence", i, v)
		}
	}
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()

	mono := StereoToMono([]int16{100, 200, -100, -300, 32767, 32767})
	want := []int16{150, -200, 32767}
	for i := range want {
		if mono[i] != want[i] {
			t.Fatalf("mono[%d] = %d; want %d", i, mono[i], want[i])
		}
	}
}

func TestResampleMono16HalvesRate(t *testing.T) {
	t.Parallel()

	in := sine(32000, 440, 100*time.Millisecond, 0.5)
	out := ResampleMono16(in, 32000, 16000)
	if got, want := len(out), len(in)/2; got != want {
		t.Fatalf("resampled length = %d; want %d", got, want)
	}

	same := ResampleMono16(in, 16000, 16000)
	if len(same) != len(in) {
		t.Fatal("equal rates must return the input unchanged")
	}
}
