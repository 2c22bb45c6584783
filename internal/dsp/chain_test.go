package dsp

import (
	"math"
	"testing"

	"masterd/internal/analysis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"masterd/internal/logger"
	"masterd/internal/models"
)

func sineStereo(freq, amplitude float64, seconds float64, sampleRate int) []float64 {
	frames := int(seconds * float64(sampleRate))
	samples := make([]float64, frames*2)
	for f := 0; f < frames; f++ {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(f)/float64(sampleRate))
		samples[f*2] = v
		samples[f*2+1] = v
	}
	return samples
}

func enhanceParams() models.ProcessingParameters {
	return models.ProcessingParameters{
		TargetLoudnessLUFS: -13.1,
		PeakCeilingDB:      -1.0,
		EQBlend:            0.63,
		DynamicsBlend:      0.46,
		BandGainsDB:        [3]float64{1.8, 0.3, 0.5},
	}
}

func TestChain_Process_PeakNeverExceedsCeiling(t *testing.T) {
	cases := []struct {
		name   string
		params models.ProcessingParameters
		input  []float64
	}{
		{"enhance loud sine", enhanceParams(), sineStereo(60, 0.99, 1, 48000)},
		{"passthrough loud sine", models.Passthrough(), sineStereo(60, 0.99, 1, 48000)},
		{"full blends", models.ProcessingParameters{
			TargetLoudnessLUFS: -11.0,
			PeakCeilingDB:      -1.0,
			EQBlend:            1,
			DynamicsBlend:      1,
			BandGainsDB:        [3]float64{6, 6, 6},
		}, sineStereo(120, 0.9, 1, 48000)},
		{"quiet source lifted", models.ProcessingParameters{
			TargetLoudnessLUFS: -11.0,
			PeakCeilingDB:      -1.0,
			EQBlend:            0.5,
			DynamicsBlend:      0.5,
			BandGainsDB:        [3]float64{3, 0, 3},
		}, sineStereo(1000, 0.05, 1, 48000)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := analysis.IntegratedLoudness(tc.input, 2, 48000)
			chain := NewChain(tc.params, src, 48000, 2, logger.Nop{})
			region, err := chain.Process(tc.input)
			require.NoError(t, err)

			ceiling := dbToLin(tc.params.PeakCeilingDB)
			for i, s := range region.Samples {
				require.LessOrEqual(t, math.Abs(s), ceiling+1e-12,
					"sample %d above ceiling", i)
			}
			assert.LessOrEqual(t, region.MeasuredPeakDB, tc.params.PeakCeilingDB+1e-9)
		})
	}
}

func TestChain_Process_Deterministic(t *testing.T) {
	input := sineStereo(440, 0.8, 1, 48000)
	params := enhanceParams()

	src := analysis.IntegratedLoudness(input, 2, 48000)
	first, err := NewChain(params, src, 48000, 2, logger.Nop{}).Process(input)
	require.NoError(t, err)
	second, err := NewChain(params, src, 48000, 2, logger.Nop{}).Process(input)
	require.NoError(t, err)

	require.Equal(t, first.Samples, second.Samples, "processing must be deterministic")
}

func TestChain_Process_InputUntouched(t *testing.T) {
	input := sineStereo(440, 0.8, 1, 48000)
	original := make([]float64, len(input))
	copy(original, input)

	_, err := NewChain(enhanceParams(), -14, 48000, 2, logger.Nop{}).Process(input)
	require.NoError(t, err)
	assert.Equal(t, original, input, "source buffer must not be modified")
}

func TestChain_Process_SingleUse(t *testing.T) {
	input := sineStereo(440, 0.5, 1, 48000)
	chain := NewChain(enhanceParams(), -14, 48000, 2, logger.Nop{})

	_, err := chain.Process(input)
	require.NoError(t, err)
	assert.Equal(t, StageDone, chain.Stage())

	_, err = chain.Process(input)
	assert.Error(t, err, "a chain is single-use")
}

func TestChain_Process_EmptyInput(t *testing.T) {
	chain := NewChain(enhanceParams(), -14, 48000, 2, logger.Nop{})
	_, err := chain.Process(nil)
	assert.Error(t, err)
}

func TestChain_Process_LoudnessMovesTowardTarget(t *testing.T) {
	// A quiet sine sits far below the target; normalization should move the
	// result much closer to it.
	input := sineStereo(1000, 0.02, 2, 48000)
	params := models.ProcessingParameters{
		TargetLoudnessLUFS: -14.0,
		PeakCeilingDB:      -1.0,
		EQBlend:            0,
		DynamicsBlend:      1,
	}

	src := analysis.IntegratedLoudness(input, 2, 48000)
	region, err := NewChain(params, src, 48000, 2, logger.Nop{}).Process(input)
	require.NoError(t, err)

	assert.Greater(t, region.MeasuredLUFS, -30.0,
		"quiet input should be lifted toward the target")
	assert.LessOrEqual(t, region.MeasuredPeakDB, params.PeakCeilingDB+1e-9)
}

func TestChain_ZeroBlends_NearPassthrough(t *testing.T) {
	input := sineStereo(440, 0.3, 1, 48000)
	src := analysis.IntegratedLoudness(input, 2, 48000)
	region, err := NewChain(models.Passthrough(), src, 48000, 2, logger.Nop{}).Process(input)
	require.NoError(t, err)

	// Passthrough still normalizes loudness and limits, but a 0.3 sine at
	// roughly -14 LUFS needs almost no gain, so samples stay close.
	for i := range input {
		assert.InDelta(t, input[i], region.Samples[i], 0.15, "sample %d", i)
	}
}

func TestChain_SameGainAcrossRegionsOfOneTrack(t *testing.T) {
	// Two spans of one track at very different local levels must receive the
	// identical normalization gain, so chunk boundaries carry no level steps.
	loud := sineStereo(440, 0.3, 1, 48000)
	quiet := sineStereo(440, 0.03, 1, 48000)
	params := models.ProcessingParameters{
		TargetLoudnessLUFS: -14.0,
		PeakCeilingDB:      -1.0,
	}
	const sourceLUFS = -20.0

	loudOut, err := NewChain(params, sourceLUFS, 48000, 2, logger.Nop{}).Process(loud)
	require.NoError(t, err)
	quietOut, err := NewChain(params, sourceLUFS, 48000, 2, logger.Nop{}).Process(quiet)
	require.NoError(t, err)

	loudGain := loudOut.Samples[100] / loud[100]
	quietGain := quietOut.Samples[100] / quiet[100]
	assert.InDelta(t, loudGain, quietGain, 1e-9, "gain must not depend on local loudness")
	assert.InDelta(t, dbToLin(params.TargetLoudnessLUFS-sourceLUFS), loudGain, 1e-9)
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "idle", StageIdle.String())
	assert.Equal(t, "eq", StageEQ.String())
	assert.Equal(t, "dynamics", StageDynamics.String())
	assert.Equal(t, "limiting", StageLimiting.String())
	assert.Equal(t, "done", StageDone.String())
	assert.Equal(t, "invalid", Stage(99).String())
}
