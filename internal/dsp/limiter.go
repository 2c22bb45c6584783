package dsp

import "math"

const limiterReleaseMs = 80.0

// applyLimiter enforces the peak ceiling. It is never bypassed: blend
// factors shape the earlier stages only. A smoothed gain computer does the
// audible work and a final hard clamp makes the ceiling a guarantee rather
// than a target.
func (c *Chain) applyLimiter(samples []float64) {
	ceiling := dbToLin(c.params.PeakCeilingDB)
	release := math.Exp(-1 / (limiterReleaseMs / 1000 * float64(c.sampleRate)))

	gain := 1.0
	frames := len(samples) / c.channels
	for f := 0; f < frames; f++ {
		peak := 0.0
		for ch := 0; ch < c.channels; ch++ {
			if a := math.Abs(samples[f*c.channels+ch]); a > peak {
				peak = a
			}
		}

		// Instant attack, smoothed release.
		want := 1.0
		if peak*gain > ceiling && peak > 0 {
			want = ceiling / peak
		}
		if want < gain {
			gain = want
		} else {
			gain = release*gain + (1-release)*want
			if gain > 1 {
				gain = 1
			}
		}

		for ch := 0; ch < c.channels; ch++ {
			i := f*c.channels + ch
			s := samples[i] * gain
			if s > ceiling {
				s = ceiling
			} else if s < -ceiling {
				s = -ceiling
			}
			samples[i] = s
		}
	}
}
