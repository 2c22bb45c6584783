package analysis

import (
	"math"

	"masterd/internal/models"
)

// DetectRecordingType classifies a fingerprint into a recording profile.
// There is no "unknown" outcome: the best-scoring type is always returned,
// and the confidence score lets the resolver damp aggressiveness instead of
// branching on a threshold.
func DetectRecordingType(fp models.Fingerprint, philosophy models.Philosophy) models.RecordingProfile {
	scores := map[models.RecordingType]float64{
		models.TypeStudio:     scoreStudio(fp),
		models.TypeLive:       scoreLive(fp),
		models.TypeVintage:    scoreVintage(fp),
		models.TypeVoice:      scoreVoice(fp),
		models.TypeElectronic: scoreElectronic(fp),
	}

	best := models.TypeStudio
	bestScore, total := 0.0, 0.0
	for t, s := range scores {
		if s < 0 {
			s = 0
		}
		total += s
		if s > bestScore || (s == bestScore && t < best) {
			best = t
			bestScore = s
		}
	}

	confidence := 0.0
	if total > 0 {
		confidence = bestScore / total
	}
	confidence = clamp(confidence, 0, 1)

	return models.RecordingProfile{
		Type:       best,
		Confidence: confidence,
		Philosophy: philosophy,
	}
}

// Each scorer maps fingerprint evidence to a non-negative score. Scores are
// relative weights, not probabilities; the caller normalizes.

func scoreStudio(fp models.Fingerprint) float64 {
	// Balanced spectrum, moderate crest, healthy stereo image.
	s := 1.0
	s += gauss(fp[models.FPCrestFactorDB], 14, 5)
	s += gauss(fp[models.FPBassRatio], 0.30, 0.15)
	s += fp[models.FPStereoWidth] * 2
	return s
}

func scoreLive(fp models.Fingerprint) float64 {
	// Wide dynamics, audible noise floor, lots of spectral movement.
	s := 0.5
	s += gauss(fp[models.FPCrestFactorDB], 18, 4)
	s += gauss(fp[models.FPNoiseFloorDB], -45, 15)
	s += clamp(fp[models.FPLoudnessRangeLU]/20, 0, 1.5)
	return s
}

func scoreVintage(fp models.Fingerprint) float64 {
	// Rolled-off treble, narrow image, elevated noise.
	s := 0.5
	s += (1 - clamp(fp[models.FPTrebleRatio]*8, 0, 1)) * 1.5
	s += (1 - fp[models.FPStereoWidth]) * 1.2
	s += gauss(fp[models.FPSpectralRolloff], 5000, 2500)
	return s
}

func scoreVoice(fp models.Fingerprint) float64 {
	// Mid-heavy, frequent pauses, low stereo width.
	s := 0.3
	s += fp[models.FPMidRatio] * 3
	s += clamp(fp[models.FPSilenceRatio]*4, 0, 1.5)
	s += (1 - fp[models.FPStereoWidth]) * 0.8
	return s
}

func scoreElectronic(fp models.Fingerprint) float64 {
	// Dense low end, compressed dynamics, steady energy.
	s := 0.4
	s += clamp(fp[models.FPBassRatio]*3, 0, 2)
	s += gauss(fp[models.FPCrestFactorDB], 9, 3)
	s += (1 - clamp(fp[models.FPLoudnessRangeLU]/12, 0, 1)) * 1.2
	return s
}

// gauss scores proximity of v to center with the given spread, peaking at 1.
func gauss(v, center, spread float64) float64 {
	d := (v - center) / spread
	return math.Exp(-d * d / 2)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
