package dsp

import (
	"math"
)

// Full-blend compressor targets. The dynamics blend factor interpolates
// ratio and threshold between these values and "no compression", so partial
// blends give partial density instead of an on/off switch.
const (
	compTargetThresholdDB = -20.0
	compTargetRatio       = 4.0
	compKneeDB            = 6.0
	compAttackMs          = 5.0
	compReleaseMs         = 150.0

	// Normalization gain toward the loudness target is bounded so a broken
	// measurement can never turn into runaway gain.
	maxNormalizeDB = 12.0
)

// applyDynamics compresses the region and then applies makeup gain toward
// the target integrated loudness. The limiter behind it owns the ceiling.
func (c *Chain) applyDynamics(samples []float64) {
	blend := c.params.DynamicsBlend
	if blend > 0 {
		c.compress(samples, blend)
	}
	c.normalizeLoudness(samples)
}

// compress runs a soft-knee feed-forward compressor over the channel-summed
// envelope, applying the same gain to every channel to keep the image stable.
func (c *Chain) compress(samples []float64, blend float64) {
	threshold := compTargetThresholdDB * blend // 0 dB at blend 0
	ratio := 1 + (compTargetRatio-1)*blend

	rate := float64(c.sampleRate)
	attack := math.Exp(-1 / (compAttackMs / 1000 * rate))
	release := math.Exp(-1 / (compReleaseMs / 1000 * rate))

	envelope := 0.0
	frames := len(samples) / c.channels
	for f := 0; f < frames; f++ {
		// Peak of all channels drives a shared gain computer.
		peak := 0.0
		for ch := 0; ch < c.channels; ch++ {
			if a := math.Abs(samples[f*c.channels+ch]); a > peak {
				peak = a
			}
		}

		if peak > envelope {
			envelope = attack*envelope + (1-attack)*peak
		} else {
			envelope = release*envelope + (1-release)*peak
		}

		levelDB := dbfs(envelope)
		overDB := levelDB - threshold

		var reductionDB float64
		switch {
		case overDB <= -compKneeDB/2:
			reductionDB = 0
		case overDB < compKneeDB/2:
			// Soft knee: quadratic interpolation through the corner.
			t := overDB + compKneeDB/2
			reductionDB = (1 - 1/ratio) * t * t / (2 * compKneeDB)
		default:
			reductionDB = (1 - 1/ratio) * overDB
		}

		if reductionDB > 0 {
			gain := dbToLin(-reductionDB)
			for ch := 0; ch < c.channels; ch++ {
				samples[f*c.channels+ch] *= gain
			}
		}
	}
}

// normalizeLoudness applies a flat gain toward the target, derived from the
// track-wide source loudness so every region of a track gets the same gain.
// The gain is clamped; the limiter catches whatever overshoots.
func (c *Chain) normalizeLoudness(samples []float64) {
	if c.sourceLUFS <= -70 {
		// Effectively silent track, leave it alone.
		return
	}

	gainDB := c.params.TargetLoudnessLUFS - c.sourceLUFS
	if gainDB > maxNormalizeDB {
		gainDB = maxNormalizeDB
	} else if gainDB < -maxNormalizeDB {
		gainDB = -maxNormalizeDB
	}
	if gainDB == 0 {
		return
	}

	gain := dbToLin(gainDB)
	for i := range samples {
		samples[i] *= gain
	}
}
