package catalog

// remixChannels converts interleaved samples between channel counts.
// Mono→stereo duplicates, stereo→mono averages; anything wider is folded
// down by averaging all source channels per frame.
func remixChannels(in []float64, srcChannels, dstChannels int) []float64 {
	if srcChannels == dstChannels || srcChannels == 0 {
		return in
	}

	frames := len(in) / srcChannels
	out := make([]float64, frames*dstChannels)

	switch {
	case dstChannels == 1:
		for f := 0; f < frames; f++ {
			sum := 0.0
			for c := 0; c < srcChannels; c++ {
				sum += in[f*srcChannels+c]
			}
			out[f] = sum / float64(srcChannels)
		}
	case dstChannels == 2 && srcChannels == 1:
		for f := 0; f < frames; f++ {
			out[f*2] = in[f]
			out[f*2+1] = in[f]
		}
	default:
		// Fold anything else to a mono mix, then spread.
		mono := remixChannels(in, srcChannels, 1)
		return remixChannels(mono, 1, dstChannels)
	}
	return out
}

// resampleLinear converts interleaved samples between sample rates with
// per-channel linear interpolation. Good enough ahead of a perceptual codec;
// the DSP chain itself never resamples.
func resampleLinear(in []float64, channels, srcRate, dstRate int) []float64 {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 || channels <= 0 {
		return in
	}

	srcFrames := len(in) / channels
	if srcFrames < 2 {
		return in
	}
	dstFrames := int(float64(srcFrames) * float64(dstRate) / float64(srcRate))
	out := make([]float64, dstFrames*channels)

	step := float64(srcRate) / float64(dstRate)
	for f := 0; f < dstFrames; f++ {
		pos := float64(f) * step
		i0 := int(pos)
		if i0 >= srcFrames-1 {
			i0 = srcFrames - 2
		}
		frac := pos - float64(i0)
		for c := 0; c < channels; c++ {
			a := in[i0*channels+c]
			b := in[(i0+1)*channels+c]
			out[f*channels+c] = a + (b-a)*frac
		}
	}
	return out
}
