package voicecmd

import "testing"

func newTestDetector() *Detector {
	return New("hey maddie", "that's all")
}

func TestIsWakeExactPhrase(t *testing.T) {
	t.Parallel()

	d := newTestDetector()
	if !d.IsWake("hey maddie") {
		t.Fatal("exact wake phrase not detected")
	}
	if !d.IsWake("Hey Maddie, what's the weather?") {
		t.Fatal("wake phrase with trailing speech not detected")
	}
}

func TestIsWakePhoneticVariants(t *testing.T) {
	t.Parallel()

	d := newTestDetector()
	variants := []string{
		"hey matty can you help",
		"hey mady",
		"okay so hey maddy listen",
	}
	for _, v := range variants {
		if !d.IsWake(v) {
			t.Errorf("variant %q not detected as wake", v)
		}
	}
}

func TestIsWakeRejectsUnrelatedSpeech(t *testing.T) {
	t.Parallel()

	d := newTestDetector()
	for _, text := range []string{
		"what a great stream",
		"hey everyone welcome back",
		"",
		"maddie",
	} {
		if d.IsWake(text) {
			t.Errorf("%q wrongly detected as wake", text)
		}
	}
}

func TestIsStop(t *testing.T) {
	t.Parallel()

	d := newTestDetector()
	if !d.IsStop("okay that's all for now") {
		t.Fatal("stop phrase not detected")
	}
	if d.IsStop("that was all right") {
		t.Fatal("near miss wrongly detected as stop")
	}
}

func TestStripWakeReturnsUtterance(t *testing.T) {
	t.Parallel()

	d := newTestDetector()
	rest, ok := d.StripWake("Hey Maddie, what game should I play next?")
	if !ok {
		t.Fatal("wake phrase not found")
	}
	if rest != "what game should i play next" {
		t.Fatalf("rest = %q", rest)
	}

	rest, ok = d.StripWake("no wake phrase here")
	if ok {
		t.Fatal("false positive strip")
	}
	if rest != "no wake phrase here" {
		t.Fatalf("text must pass through unchanged, got %q", rest)
	}
}

func TestThresholdTunesStrictness(t *testing.T) {
	t.Parallel()

	// "madden" shares no Double Metaphone code with "maddie", so it rides on
	// the Jaro-Winkler fallback alone.
	lax := New("hey maddie", "that's all", WithThreshold(0.80))
	strict := New("hey maddie", "that's all", WithThreshold(0.99))
	if !lax.IsWake("hey madden") {
		t.Fatal("lax detector should accept a close similarity match")
	}
	if strict.IsWake("hey madden") {
		t.Fatal("strict detector should reject a similarity-only match")
	}
}
