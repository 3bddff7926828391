package audio

import "math"

// Resample performs linear-interpolation resampling from one sample rate
// to another. It is the identity when the rates match, and otherwise
// produces ceil(len(samples) * toRate / fromRate) samples.
//
// Grounded on the same linear-interpolation shape used by the teacher's
// MP3 segment extraction (resampleLinear), generalized into a standalone
// testable utility per the mixer's contract.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(samples) == 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	newLen := int(math.Ceil(float64(len(samples)) * float64(toRate) / float64(fromRate)))
	out := make([]float32, newLen)

	ratio := float64(fromRate) / float64(toRate)
	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		switch {
		case srcIdx+1 < len(samples):
			out[i] = samples[srcIdx]*(1-frac) + samples[srcIdx+1]*frac
		case srcIdx < len(samples):
			out[i] = samples[srcIdx]
		default:
			out[i] = 0
		}
	}

	return out
}

// Downmix averages an interleaved multi-channel buffer down to mono.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
