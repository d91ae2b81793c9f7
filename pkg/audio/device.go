package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// DeviceSink is a miniaudio-backed Sink. It opens a fresh playback device per
// clip so each clip plays at its native sample rate and channel count.
type DeviceSink struct {
	deviceName string

	mu   sync.Mutex
	mctx *malgo.AllocatedContext
}

// NewDeviceSink initialises the audio backend. deviceName selects the output
// device by case-insensitive substring match; empty selects the system
// default.
func NewDeviceSink(deviceName string) (*DeviceSink, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init context: %w", err)
	}
	return &DeviceSink{deviceName: deviceName, mctx: mctx}, nil
}

// Play implements Sink.
func (s *DeviceSink) Play(ctx context.Context, ref string) (time.Duration, error) {
	clip, err := DecodeFile(ref)
	if err != nil {
		return 0, err
	}
	data := samplesToBytes(clip.Samples)

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(clip.Channels)
	cfg.SampleRate = uint32(clip.SampleRate)
	cfg.Alsa.NoMMap = 1

	if id, ok := s.findDevice(); ok {
		cfg.Playback.DeviceID = id.Pointer()
	}

	var (
		pos      int
		doneOnce sync.Once
		done     = make(chan struct{})
		posMu    sync.Mutex
	)
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) {
			posMu.Lock()
			n := copy(out, data[pos:])
			pos += n
			finished := pos >= len(data)
			posMu.Unlock()
			for i := n; i < len(out); i++ {
				out[i] = 0
			}
			if finished {
				doneOnce.Do(func() { close(done) })
			}
		},
	}

	s.mu.Lock()
	mctx := s.mctx
	s.mu.Unlock()
	if mctx == nil {
		return 0, fmt.Errorf("audio: sink closed")
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		return 0, fmt.Errorf("audio: init playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return 0, fmt.Errorf("audio: start playback: %w", err)
	}

	select {
	case <-ctx.Done():
		return clip.Duration(), ctx.Err()
	case <-done:
		// Let the device drain its last buffer before uninit.
		time.Sleep(FrameInterval * time.Millisecond)
		return clip.Duration(), nil
	}
}

// findDevice resolves the configured device name against the playback device
// list. Returns false for the empty name or when no device matches; the
// default device is used in both cases.
func (s *DeviceSink) findDevice() (malgo.DeviceID, bool) {
	s.mu.Lock()
	mctx := s.mctx
	s.mu.Unlock()
	if mctx == nil {
		return malgo.DeviceID{}, false
	}
	return matchDevice(mctx, malgo.Playback, s.deviceName)
}

// Close implements Sink.
func (s *DeviceSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mctx == nil {
		return nil
	}
	err := s.mctx.Uninit()
	s.mctx.Free()
	s.mctx = nil
	return err
}

var _ Sink = (*DeviceSink)(nil)
