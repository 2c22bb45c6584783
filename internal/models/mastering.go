package models

// FingerprintSize is the fixed dimensionality of a track fingerprint.
const FingerprintSize = 25

// Fingerprint is a fixed-length numeric summary of a track's spectral and
// dynamic character. It is computed once per track and cached by track id.
type Fingerprint [FingerprintSize]float64

// Named fingerprint dimensions. The analyzer fills every slot; downstream
// consumers index by these constants rather than raw offsets.
const (
	FPBassRatio = iota // energy below 250 Hz / total
	FPLowMidRatio
	FPMidRatio
	FPHighMidRatio
	FPTrebleRatio
	FPSpectralCentroid
	FPSpectralCentroidDev
	FPSpectralRolloff
	FPSpectralFlatness
	FPSpectralFlux
	FPZeroCrossingRate
	FPRMS
	FPPeak
	FPCrestFactorDB
	FPIntegratedLUFS
	FPLoudnessRangeLU
	FPDynamicRangeDB
	FPSilenceRatio
	FPStereoWidth
	FPStereoCorrelation
	FPDCOffset
	FPOnsetDensity
	FPTransientRatio
	FPNoiseFloorDB
	FPDurationSec
)

// RecordingType labels the inferred content class of a track.
type RecordingType string

const (
	TypeStudio     RecordingType = "studio"
	TypeLive       RecordingType = "live"
	TypeVintage    RecordingType = "vintage"
	TypeVoice      RecordingType = "voice"
	TypeElectronic RecordingType = "electronic"
)

// Philosophy selects how far processing departs from the source.
type Philosophy string

const (
	PhilosophyEnhance  Philosophy = "enhance"
	PhilosophyPreserve Philosophy = "preserve"
	PhilosophyNeutral  Philosophy = "neutral"
)

// RecordingProfile is the detector's best guess. Confidence is never a gate:
// low confidence yields more conservative parameters, not a halt.
type RecordingProfile struct {
	Type       RecordingType
	Confidence float64 // in [0,1]
	Philosophy Philosophy
}

// ProcessingParameters drives the whole DSP chain for one track+preset.
// It is a pure function of (Fingerprint, RecordingProfile, preset); every
// field is clamped to a safe range and quantized to 0.1 (blends to 0.01)
// so identical inputs resolve to byte-identical parameters.
type ProcessingParameters struct {
	TargetLoudnessLUFS float64
	PeakCeilingDB      float64
	EQBlend            float64
	DynamicsBlend      float64
	// BandGainsDB holds low shelf, mid peaking, high shelf adjustments.
	BandGainsDB [3]float64
}

// Passthrough returns the no-op parameter set used as the fallback when an
// internal range invariant is violated.
func Passthrough() ProcessingParameters {
	return ProcessingParameters{
		TargetLoudnessLUFS: -14.0,
		PeakCeilingDB:      -1.0,
		EQBlend:            0,
		DynamicsBlend:      0,
	}
}
