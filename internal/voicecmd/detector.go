// Package voicecmd detects the wake and stop phrases in microphone
// transcripts, gating the listen-and-respond flow. Speech recognition mangles
// proper names freely ("hey maddie" arrives as "hey matty" or "a mad e"), so
// detection is phonetic: tokens are compared by Double Metaphone code overlap
// and ranked with Jaro-Winkler similarity instead of exact string equality.
package voicecmd

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const defaultThreshold = 0.80

// Detector recognises one wake phrase and one stop phrase. Read-only after
// construction; safe for concurrent use.
type Detector struct {
	wake      []string
	stop      []string
	threshold float64
}

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithThreshold sets the minimum Jaro-Winkler score for a token pair to count
// as a match when their phonetic codes do not overlap. Default: 0.80.
func WithThreshold(threshold float64) Option {
	return func(d *Detector) { d.threshold = threshold }
}

// New creates a Detector for the given phrases. Phrases are matched
// case-insensitively and token by token.
func New(wakePhrase, stopPhrase string, opts ...Option) *Detector {
	d := &Detector{
		wake:      tokens(wakePhrase),
		stop:      tokens(stopPhrase),
		threshold: defaultThreshold,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// IsWake reports whether text contains the wake phrase.
func (d *Detector) IsWake(text string) bool {
	_, ok := d.findPhrase(d.wake, tokens(text))
	return ok
}

// IsStop reports whether text contains the stop phrase.
func (d *Detector) IsStop(text string) bool {
	_, ok := d.findPhrase(d.stop, tokens(text))
	return ok
}

// StripWake removes the wake phrase and everything before it, returning the
// remaining utterance. Reports false when the wake phrase is absent; text is
// returned unchanged in that case.
func (d *Detector) StripWake(text string) (rest string, ok bool) {
	toks := tokens(text)
	end, found := d.findPhrase(d.wake, toks)
	if !found {
		return text, false
	}
	return strings.Join(toks[end:], " "), true
}

// findPhrase slides a phrase-sized window over toks and returns the index
// just past the first window whose tokens all match the phrase tokens.
func (d *Detector) findPhrase(phrase, toks []string) (end int, ok bool) {
	if len(phrase) == 0 || len(toks) < len(phrase) {
		return 0, false
	}
	for start := 0; start+len(phrase) <= len(toks); start++ {
		matched := true
		for i, want := range phrase {
			if !d.tokenMatches(want, toks[start+i]) {
				matched = false
				break
			}
		}
		if matched {
			return start + len(phrase), true
		}
	}
	return 0, false
}

// tokenMatches reports whether got sounds like want: identical strings,
// overlapping Double Metaphone codes, or Jaro-Winkler similarity past the
// threshold.
func (d *Detector) tokenMatches(want, got string) bool {
	if want == got {
		return true
	}
	wp, ws := matchr.DoubleMetaphone(want)
	gp, gs := matchr.DoubleMetaphone(got)
	if wp != "" && (wp == gp || wp == gs) {
		return true
	}
	if ws != "" && (ws == gp || ws == gs) {
		return true
	}
	return matchr.JaroWinkler(want, got, false) >= d.threshold
}

// tokens lowercases and splits text, stripping trailing punctuation from each
// token.
func tokens(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:'\"")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
