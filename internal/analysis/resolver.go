package analysis

import (
	"fmt"
	"math"

	"masterd/internal/models"
)

// Safety envelope for resolved parameters. Clamping here is the primary
// defense against pathological inputs (silent or clipped sources) producing
// unsafe output gain.
const (
	minTargetLUFS = -16.0
	maxTargetLUFS = -11.0
	peakCeilingDB = -1.0
	maxBandGainDB = 6.0
)

// preset holds the tunable weights behind a mastering philosophy.
type preset struct {
	baseTargetLUFS float64
	eqBlend        float64
	dynamicsBlend  float64
	loudnessLift   float64 // max LUFS lift for dense, low-crest content
	bassWeight     float64
	midWeight      float64
	airWeight      float64
}

var presets = map[models.Philosophy]preset{
	models.PhilosophyEnhance: {
		baseTargetLUFS: -14.0,
		eqBlend:        0.9,
		dynamicsBlend:  0.8,
		loudnessLift:   2.5,
		bassWeight:     2.0,
		midWeight:      1.2,
		airWeight:      1.6,
	},
	models.PhilosophyNeutral: {
		baseTargetLUFS: -14.0,
		eqBlend:        0.6,
		dynamicsBlend:  0.5,
		loudnessLift:   1.5,
		bassWeight:     1.0,
		midWeight:      0.8,
		airWeight:      1.0,
	},
	models.PhilosophyPreserve: {
		baseTargetLUFS: -16.0,
		eqBlend:        0.3,
		dynamicsBlend:  0.25,
		loudnessLift:   0.5,
		bassWeight:     0.5,
		midWeight:      0.4,
		airWeight:      0.5,
	},
}

// ResolveParameters maps (fingerprint, profile, preset) to the concrete DSP
// parameter set. It is a pure function: identical inputs always yield
// byte-identical parameters. Every derived value is clamped to the safety
// envelope and quantized (gains and loudness to 0.1, blends to 0.01).
func ResolveParameters(fp models.Fingerprint, profile models.RecordingProfile, philosophy models.Philosophy) models.ProcessingParameters {
	p, ok := presets[philosophy]
	if !ok {
		p = presets[models.PhilosophyNeutral]
	}

	// Uncertain classification damps everything continuously; confidence 1.0
	// applies the preset in full, confidence 0 still applies half of it.
	damp := 0.5 + 0.5*clamp(profile.Confidence, 0, 1)

	// Dense, low-crest material tolerates a hotter loudness target.
	crestNorm := clamp(fp[models.FPCrestFactorDB]/20, 0, 1)
	lift := clamp((1-crestNorm)*p.loudnessLift, 0, p.loudnessLift)
	target := clamp(p.baseTargetLUFS+damp*lift, minTargetLUFS, maxTargetLUFS)

	// Low shelf scales with how much low end the content carries: enhance
	// amplifies character rather than normalizing it away.
	bass := damp * p.bassWeight * (0.5 + fp[models.FPBassRatio])

	// Mid band corrects toward a balanced presence region.
	mid := damp * p.midWeight * (0.35 - fp[models.FPMidRatio]) * 4

	// High shelf restores air on dull content and tames excess brightness.
	air := damp * p.airWeight * (0.10 - fp[models.FPTrebleRatio]) * 8

	eqBlend := p.eqBlend * damp
	dynBlend := p.dynamicsBlend * damp

	// Recording-type nudges touch tonal balance only, never the loudness
	// target, so classification noise cannot shift the gain staging.
	switch profile.Type {
	case models.TypeVintage:
		air += 1.0 * damp
	case models.TypeVoice:
		bass *= 0.5
		mid += 0.5 * damp
	case models.TypeLive:
		dynBlend = clamp(dynBlend+0.1*damp, 0, 1)
	case models.TypeElectronic:
		dynBlend = clamp(dynBlend-0.1*damp, 0, 1)
	}

	return models.ProcessingParameters{
		TargetLoudnessLUFS: quantize1(target),
		PeakCeilingDB:      peakCeilingDB,
		EQBlend:            quantize2(clamp(eqBlend, 0, 1)),
		DynamicsBlend:      quantize2(clamp(dynBlend, 0, 1)),
		BandGainsDB: [3]float64{
			quantize1(clamp(bass, -maxBandGainDB, maxBandGainDB)),
			quantize1(clamp(mid, -maxBandGainDB, maxBandGainDB)),
			quantize1(clamp(air, -maxBandGainDB, maxBandGainDB)),
		},
	}
}

// ValidateParameters reports a range violation. Given the clamps in
// ResolveParameters this is unreachable; a failure is an internal invariant
// violation and callers fall back to passthrough parameters instead of
// failing the track.
func ValidateParameters(p models.ProcessingParameters) error {
	if p.TargetLoudnessLUFS < minTargetLUFS || p.TargetLoudnessLUFS > maxTargetLUFS {
		return fmt.Errorf("target loudness %.1f LUFS outside [%.1f, %.1f]", p.TargetLoudnessLUFS, minTargetLUFS, maxTargetLUFS)
	}
	if p.PeakCeilingDB > peakCeilingDB {
		return fmt.Errorf("peak ceiling %.1f dB above safety margin %.1f dB", p.PeakCeilingDB, peakCeilingDB)
	}
	if p.EQBlend < 0 || p.EQBlend > 1 || p.DynamicsBlend < 0 || p.DynamicsBlend > 1 {
		return fmt.Errorf("blend factor outside [0,1]: eq=%.2f dyn=%.2f", p.EQBlend, p.DynamicsBlend)
	}
	for i, g := range p.BandGainsDB {
		if g < -maxBandGainDB || g > maxBandGainDB {
			return fmt.Errorf("band %d gain %.1f dB outside ±%.1f dB", i, g, maxBandGainDB)
		}
	}
	return nil
}

func quantize1(v float64) float64 {
	return math.Round(v*10) / 10
}

func quantize2(v float64) float64 {
	return math.Round(v*100) / 100
}
