package dsp

import (
	"fmt"
	"math"

	"masterd/internal/analysis"
	"masterd/internal/logger"
	"masterd/internal/models"
)

// Stage tracks progress of one processing invocation through the chain.
// Stages never reorder: EQ shapes tone, dynamics controls density and level,
// limiting is the unconditional final safety stage.
type Stage int

const (
	StageIdle Stage = iota
	StageEQ
	StageDynamics
	StageLimiting
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageEQ:
		return "eq"
	case StageDynamics:
		return "dynamics"
	case StageLimiting:
		return "limiting"
	case StageDone:
		return "done"
	default:
		return "invalid"
	}
}

// Region is a contiguous span of processed samples for one track at one
// parameter set, together with measurements of the result. It is owned by
// the Chain invocation that produced it until handed to the encoder.
type Region struct {
	Samples    []float64
	Channels   int
	SampleRate int

	MeasuredLUFS    float64
	MeasuredPeakDB  float64
	MeasuredCrestDB float64
}

// Chain applies the full mastering pipeline to one audio region. A Chain is
// single-use: construct, Process, discard. All arithmetic stays in float64,
// a higher precision than the int16 frames the encoder consumes, so
// quantization error does not compound across stages.
type Chain struct {
	params     models.ProcessingParameters
	sourceLUFS float64
	sampleRate int
	channels   int
	stage      Stage
	logger     logger.Logger
}

// NewChain builds a chain for the given parameter set and audio format.
// sourceLUFS is the integrated loudness of the whole source track; deriving
// the normalization gain from it keeps adjacent regions of one track at a
// consistent level regardless of their local loudness.
func NewChain(params models.ProcessingParameters, sourceLUFS float64, sampleRate, channels int, log logger.Logger) *Chain {
	return &Chain{
		params:     params,
		sourceLUFS: sourceLUFS,
		sampleRate: sampleRate,
		channels:   channels,
		stage:      StageIdle,
		logger:     log,
	}
}

// Stage returns the chain's current stage.
func (c *Chain) Stage() Stage {
	return c.stage
}

// Process runs src through EQ, dynamics, and limiting and returns the
// processed region with measured loudness, peak, and crest factor. The input
// slice is never modified; the track buffer stays safe for concurrent reads.
func (c *Chain) Process(src []float64) (*Region, error) {
	if c.stage != StageIdle {
		return nil, fmt.Errorf("chain already used (stage %s)", c.stage)
	}
	if len(src) == 0 {
		return nil, fmt.Errorf("empty audio region")
	}

	samples := make([]float64, len(src))
	copy(samples, src)

	if err := c.advance(StageEQ); err != nil {
		return nil, err
	}
	c.applyEQ(samples)

	if err := c.advance(StageDynamics); err != nil {
		return nil, err
	}
	c.applyDynamics(samples)

	if err := c.advance(StageLimiting); err != nil {
		return nil, err
	}
	c.applyLimiter(samples)

	if err := c.advance(StageDone); err != nil {
		return nil, err
	}

	region := &Region{
		Samples:    samples,
		Channels:   c.channels,
		SampleRate: c.sampleRate,
	}
	c.measure(region)
	return region, nil
}

// advance enforces the strict stage order.
func (c *Chain) advance(next Stage) error {
	if next != c.stage+1 {
		return fmt.Errorf("invalid stage transition %s -> %s", c.stage, next)
	}
	c.stage = next
	return nil
}

func (c *Chain) measure(r *Region) {
	var peak, sumSq float64
	for _, s := range r.Samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
		sumSq += s * s
	}
	rms := math.Sqrt(sumSq / float64(len(r.Samples)))

	r.MeasuredPeakDB = dbfs(peak)
	if rms > 0 && peak > 0 {
		r.MeasuredCrestDB = 20 * math.Log10(peak/rms)
	}
	r.MeasuredLUFS = analysis.IntegratedLoudness(r.Samples, r.Channels, r.SampleRate)
}

func dbfs(lin float64) float64 {
	if lin <= 0 {
		return -120
	}
	return 20 * math.Log10(lin)
}

func dbToLin(db float64) float64 {
	return math.Pow(10, db/20)
}
