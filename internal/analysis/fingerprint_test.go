package analysis

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"masterd/internal/models"
)

func sineTrack(freq float64, amplitude float64, seconds float64, sampleRate, channels int) *models.Track {
	frames := int(seconds * float64(sampleRate))
	samples := make([]float64, frames*channels)
	for f := 0; f < frames; f++ {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(f)/float64(sampleRate))
		for c := 0; c < channels; c++ {
			samples[f*channels+c] = v
		}
	}
	return &models.Track{
		ID:         "sine",
		Title:      "Sine",
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := NewAnalyzer()
	track := sineTrack(440, 0.5, 2, 48000, 2)

	first, err := a.Fingerprint(track)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := a.Fingerprint(track)
		require.NoError(t, err)
		require.Equal(t, first, again, "fingerprint must be deterministic")
	}
}

func TestFingerprint_ConcurrentTracksMatchSequential(t *testing.T) {
	a := NewAnalyzer()
	tracks := []*models.Track{
		sineTrack(220, 0.4, 1, 48000, 2),
		sineTrack(880, 0.6, 1, 48000, 2),
		sineTrack(3000, 0.3, 1, 48000, 1),
	}
	for i, track := range tracks {
		track.ID = fmt.Sprintf("track-%d", i)
	}

	refs := make([]models.Fingerprint, len(tracks))
	for i, track := range tracks {
		fp, err := a.Fingerprint(track)
		require.NoError(t, err)
		refs[i] = fp
	}

	const workers = 8
	const rounds = 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				i := (w + r) % len(tracks)
				fp, err := a.Fingerprint(tracks[i])
				assert.NoError(t, err)
				assert.Equal(t, refs[i], fp, "concurrent extraction of %s diverged", tracks[i].ID)
			}
		}(w)
	}
	wg.Wait()
}

func TestFingerprint_SineMeasures(t *testing.T) {
	a := NewAnalyzer()
	track := sineTrack(440, 0.5, 2, 48000, 1)

	fp, err := a.Fingerprint(track)
	require.NoError(t, err)

	// A pure sine has peak/rms of sqrt(2), roughly 3 dB crest.
	assert.InDelta(t, 3.01, fp[models.FPCrestFactorDB], 0.1)
	assert.InDelta(t, 0.5, fp[models.FPPeak], 1e-6)
	assert.InDelta(t, 0.5/math.Sqrt2, fp[models.FPRMS], 1e-3)
	assert.InDelta(t, 2.0, fp[models.FPDurationSec], 1e-6)
	assert.InDelta(t, 0, fp[models.FPDCOffset], 1e-3)

	// 440 Hz sits in the low-mid band; nearly all spectral energy lands there.
	assert.Greater(t, fp[models.FPLowMidRatio], 0.9)
	assert.Less(t, fp[models.FPTrebleRatio], 0.05)

	// Spectral centroid near the tone frequency.
	assert.InDelta(t, 440, fp[models.FPSpectralCentroid], 60)

	// Identical channels collapse to zero width, full correlation.
	stereo := sineTrack(440, 0.5, 2, 48000, 2)
	sfp, err := a.Fingerprint(stereo)
	require.NoError(t, err)
	assert.InDelta(t, 0, sfp[models.FPStereoWidth], 1e-9)
	assert.InDelta(t, 1, sfp[models.FPStereoCorrelation], 1e-9)
}

func TestFingerprint_EmptyTrack(t *testing.T) {
	a := NewAnalyzer()
	_, err := a.Fingerprint(&models.Track{ID: "empty", SampleRate: 48000, Channels: 1})
	assert.Error(t, err)
	_, err = a.Fingerprint(nil)
	assert.Error(t, err)
}

func TestIntegratedLoudness_Sine(t *testing.T) {
	track := sineTrack(440, 0.5, 2, 48000, 1)
	lufs := IntegratedLoudness(track.Samples, 1, 48000)

	// Mean square of a 0.5 sine is 0.125: -0.691 + 10*log10(0.125).
	assert.InDelta(t, -9.72, lufs, 0.05)
}

func TestIntegratedLoudness_SilenceGated(t *testing.T) {
	silence := make([]float64, 48000)
	lufs := IntegratedLoudness(silence, 1, 48000)
	assert.LessOrEqual(t, lufs, -70.0, "all blocks below the gate")
}

func TestDetectRecordingType_ConfidenceBounded(t *testing.T) {
	fingerprints := []models.Fingerprint{
		{},
		func() models.Fingerprint {
			var fp models.Fingerprint
			fp[models.FPBassRatio] = 0.7
			fp[models.FPCrestFactorDB] = 9
			fp[models.FPLoudnessRangeLU] = 4
			return fp
		}(),
		func() models.Fingerprint {
			var fp models.Fingerprint
			fp[models.FPCrestFactorDB] = 18
			fp[models.FPNoiseFloorDB] = -45
			fp[models.FPLoudnessRangeLU] = 18
			return fp
		}(),
	}

	for _, fp := range fingerprints {
		profile := DetectRecordingType(fp, models.PhilosophyNeutral)
		assert.NotEmpty(t, profile.Type, "detection never returns unknown")
		assert.GreaterOrEqual(t, profile.Confidence, 0.0)
		assert.LessOrEqual(t, profile.Confidence, 1.0)
		assert.Equal(t, models.PhilosophyNeutral, profile.Philosophy)
	}
}

func TestDetectRecordingType_ElectronicSignature(t *testing.T) {
	var fp models.Fingerprint
	fp[models.FPBassRatio] = 0.65
	fp[models.FPCrestFactorDB] = 9
	fp[models.FPLoudnessRangeLU] = 3
	fp[models.FPStereoWidth] = 0.4

	profile := DetectRecordingType(fp, models.PhilosophyEnhance)
	assert.Equal(t, models.TypeElectronic, profile.Type)
	assert.Greater(t, profile.Confidence, 0.2)
}

func TestDetectRecordingType_LiveSignature(t *testing.T) {
	var fp models.Fingerprint
	fp[models.FPCrestFactorDB] = 18
	fp[models.FPNoiseFloorDB] = -45
	fp[models.FPLoudnessRangeLU] = 18
	fp[models.FPStereoWidth] = 0.3
	fp[models.FPTrebleRatio] = 0.2

	profile := DetectRecordingType(fp, models.PhilosophyNeutral)
	assert.Equal(t, models.TypeLive, profile.Type)
}
