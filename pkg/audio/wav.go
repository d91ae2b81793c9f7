// Package audio handles the local clip format: decoding and encoding RIFF WAV
// files carrying 16-bit PCM, computing playback volume envelopes, and playing
// clips on an output device. Every synthesized response is written as a WAV
// clip on disk and referenced by path from the queue.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Clip is a decoded PCM16 audio clip.
type Clip struct {
	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono, 2 for stereo, interleaved.
	Channels int

	// Samples holds the interleaved 16-bit samples.
	Samples []int16
}

// Duration returns the clip's playback length.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// ErrNotWAV is returned when the input is not a RIFF/WAVE container.
var ErrNotWAV = errors.New("audio: not a RIFF WAVE file")

// ErrUnsupportedFormat is returned for WAV files that are not 16-bit PCM.
var ErrUnsupportedFormat = errors.New("audio: unsupported WAV format, want 16-bit PCM")

// DecodeFile reads and decodes the WAV file at path.
func DecodeFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open clip: %w", err)
	}
	defer f.Close()
	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("audio: decode %s: %w", path, err)
	}
	return c, nil
}

// Decode parses a RIFF/WAVE stream carrying 16-bit PCM. Chunks other than
// "fmt " and "data" are skipped.
func Decode(r io.Reader) (*Clip, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		clip    Clip
		sawFmt  bool
		sawData bool
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return nil, ErrUnsupportedFormat
			}
			audioFormat := binary.LittleEndian.Uint16(body[0:2])
			bitsPerSample := binary.LittleEndian.Uint16(body[14:16])
			if audioFormat != 1 || bitsPerSample != 16 {
				return nil, ErrUnsupportedFormat
			}
			clip.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			sawFmt = true

		case "data":
			if !sawFmt {
				return nil, ErrUnsupportedFormat
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("read data chunk: %w", err)
			}
			clip.Samples = bytesToSamples(body)
			sawData = true

		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return nil, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
		// Chunks are word-aligned.
		if size%2 == 1 {
			io.CopyN(io.Discard, r, 1)
		}
		if sawData {
			break
		}
	}
	if !sawFmt || !sawData {
		return nil, ErrUnsupportedFormat
	}
	if clip.Channels < 1 || clip.SampleRate < 1 {
		return nil, ErrUnsupportedFormat
	}
	return &clip, nil
}

// Encode writes c as a RIFF/WAVE stream with a 16-bit PCM data chunk.
func Encode(w io.Writer, c *Clip) error {
	data := samplesToBytes(c.Samples)
	return writeWAV(w, data, c.SampleRate, c.Channels)
}

// WrapPCM16 writes raw little-endian 16-bit PCM as a WAV file at path.
// Providers that return headerless PCM use this to produce a playable clip.
func WrapPCM16(path string, pcm []byte, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create clip: %w", err)
	}
	if err := writeWAV(f, pcm, sampleRate, channels); err != nil {
		f.Close()
		return fmt.Errorf("audio: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("audio: close %s: %w", path, err)
	}
	return nil
}

func writeWAV(w io.Writer, data []byte, sampleRate, channels int) error {
	blockAlign := channels * 2
	byteRate := sampleRate * blockAlign

	var hdr [44]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+len(data)))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], 16)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(len(data)))

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func bytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func samplesToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
