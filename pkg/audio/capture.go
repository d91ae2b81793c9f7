package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// CaptureRate is the sample rate mic audio is recorded at. It matches what
// the transcription backend expects, so no resampling is needed downstream.
const CaptureRate = 16000

// Record captures mono 16 kHz PCM from the named capture device (substring
// match, empty for default) until ctx is cancelled or maxDur elapses,
// whichever comes first. The recorded audio is returned as a Clip.
func Record(ctx context.Context, deviceName string, maxDur time.Duration) (*Clip, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init capture context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = CaptureRate
	cfg.Alsa.NoMMap = 1
	if id, ok := matchDevice(mctx, malgo.Capture, deviceName); ok {
		cfg.Capture.DeviceID = id.Pointer()
	}

	var (
		mu      sync.Mutex
		samples []int16
	)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			if len(in) < 2 {
				return
			}
			mu.Lock()
			for i := 0; i+1 < len(in); i += 2 {
				samples = append(samples, int16(binary.LittleEndian.Uint16(in[i:])))
			}
			mu.Unlock()
		},
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("audio: init capture device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return nil, fmt.Errorf("audio: start capture: %w", err)
	}

	timer := time.NewTimer(maxDur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	device.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(samples) == 0 {
		return nil, fmt.Errorf("audio: capture produced no samples")
	}
	out := make([]int16, len(samples))
	copy(out, samples)
	return &Clip{SampleRate: CaptureRate, Channels: 1, Samples: out}, nil
}

// matchDevice resolves a device name substring against the device list for
// the given kind. Returns false for the empty name or when nothing matches.
func matchDevice(mctx *malgo.AllocatedContext, kind malgo.DeviceType, name string) (malgo.DeviceID, bool) {
	if name == "" {
		return malgo.DeviceID{}, false
	}
	infos, err := mctx.Devices(kind)
	if err != nil {
		return malgo.DeviceID{}, false
	}
	want := strings.ToLower(name)
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Name()), want) {
			return info.ID, true
		}
	}
	return malgo.DeviceID{}, false
}
