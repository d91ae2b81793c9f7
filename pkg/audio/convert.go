package audio

// StereoToMono averages L+R per stereo frame. Uses int32 arithmetic to
// prevent overflow and clamps to int16 range.
func StereoToMono(samples []int16) []int16 {
	frames := len(samples) / 2
	out := make([]int16, frames)
	for i := range frames {
		avg := (int32(samples[i*2]) + int32(samples[i*2+1])) / 2
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		out[i] = int16(avg)
	}
	return out
}

// ResampleMono16 resamples mono PCM16 from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate the input is returned unchanged.
func ResampleMono16(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstSamples := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]int16, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}
