package audio

import "math"

// FrameInterval is the envelope resolution: one volume value per 50 ms of
// audio. The avatar animator consumes one value per interval, so this must
// match its animation tick.
const FrameInterval = 50

// Envelope computes the clip's volume envelope: the RMS level of each 50 ms
// frame, normalised so the loudest frame is 1.0. A silent clip returns all
// zeros. Stereo samples are averaged before measuring.
func (c *Clip) Envelope() []float64 {
	if c.SampleRate <= 0 || c.Channels <= 0 || len(c.Samples) == 0 {
		return nil
	}
	samplesPerFrame := c.SampleRate * FrameInterval / 1000 * c.Channels
	if samplesPerFrame == 0 {
		return nil
	}

	frames := (len(c.Samples) + samplesPerFrame - 1) / samplesPerFrame
	env := make([]float64, frames)
	peak := 0.0
	for f := range frames {
		start := f * samplesPerFrame
		end := min(start+samplesPerFrame, len(c.Samples))
		var sum float64
		for _, s := range c.Samples[start:end] {
			v := float64(s) / 32768.0
			sum += v * v
		}
		rms := math.Sqrt(sum / float64(end-start))
		env[f] = rms
		if rms > peak {
			peak = rms
		}
	}
	if peak > 0 {
		for i := range env {
			env[i] /= peak
		}
	}
	return env
}
