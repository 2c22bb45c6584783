package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"masterd/internal/models"
)

const (
	windowSize = 2048
	hopSize    = 512

	// Block size for gated loudness measurement, in seconds.
	loudnessBlockSec = 0.4
	loudnessGateLUFS = -70.0

	silenceFloor = 1e-5
)

// Analyzer extracts the fixed-dimensional perceptual fingerprint from a
// decoded track. Extraction is read-only over the audio and deterministic
// for identical input samples. An Analyzer is safe for concurrent use: the
// shared Hann window is read-only, and each extraction builds its own FFT
// plan because the plan carries mutable scratch buffers.
type Analyzer struct {
	window []float64
}

// NewAnalyzer builds an analyzer with a reusable Hann window.
func NewAnalyzer() *Analyzer {
	window := make([]float64, windowSize)
	for i := range window {
		theta := 2 * math.Pi * float64(i) / float64(windowSize-1)
		window[i] = 0.5 - 0.5*math.Cos(theta)
	}
	return &Analyzer{window: window}
}

// Fingerprint computes the 25-dimensional fingerprint of a track.
func (a *Analyzer) Fingerprint(track *models.Track) (models.Fingerprint, error) {
	var fp models.Fingerprint
	if track == nil || len(track.Samples) == 0 {
		return fp, fmt.Errorf("cannot fingerprint empty track")
	}

	mono := monoMix(track.Samples, track.Channels)
	rate := float64(track.SampleRate)

	// Time-domain measures.
	var sumSq, peak, dc float64
	silent := 0
	for _, s := range mono {
		sumSq += s * s
		dc += s
		if abs := math.Abs(s); abs > peak {
			peak = abs
		}
		if math.Abs(s) < silenceFloor {
			silent++
		}
	}
	n := float64(len(mono))
	rms := math.Sqrt(sumSq / n)
	crestDB := 0.0
	if rms > 0 && peak > 0 {
		crestDB = 20 * math.Log10(peak/rms)
	}

	zc := 0
	for i := 1; i < len(mono); i++ {
		if (mono[i-1] >= 0) != (mono[i] >= 0) {
			zc++
		}
	}

	spec := a.spectralStats(mono, rate)
	loud := loudnessStats(mono, rate)

	fp[models.FPBassRatio] = spec.bandRatios[0]
	fp[models.FPLowMidRatio] = spec.bandRatios[1]
	fp[models.FPMidRatio] = spec.bandRatios[2]
	fp[models.FPHighMidRatio] = spec.bandRatios[3]
	fp[models.FPTrebleRatio] = spec.bandRatios[4]
	fp[models.FPSpectralCentroid] = spec.centroidMean
	fp[models.FPSpectralCentroidDev] = spec.centroidDev
	fp[models.FPSpectralRolloff] = spec.rolloff
	fp[models.FPSpectralFlatness] = spec.flatness
	fp[models.FPSpectralFlux] = spec.flux
	fp[models.FPZeroCrossingRate] = float64(zc) / n
	fp[models.FPRMS] = rms
	fp[models.FPPeak] = peak
	fp[models.FPCrestFactorDB] = crestDB
	fp[models.FPIntegratedLUFS] = loud.integrated
	fp[models.FPLoudnessRangeLU] = loud.loudnessRange
	fp[models.FPDynamicRangeDB] = loud.dynamicRange
	fp[models.FPSilenceRatio] = float64(silent) / n
	fp[models.FPStereoWidth], fp[models.FPStereoCorrelation] = stereoStats(track.Samples, track.Channels)
	fp[models.FPDCOffset] = dc / n
	fp[models.FPOnsetDensity] = spec.onsetDensity
	fp[models.FPTransientRatio] = spec.transientRatio
	fp[models.FPNoiseFloorDB] = loud.noiseFloorDB
	fp[models.FPDurationSec] = n / rate

	return fp, nil
}

// IntegratedLoudness measures gated integrated loudness in LUFS for
// interleaved samples. The DSP chain uses it for normalization gain and for
// post-processing verification, so it must agree with the fingerprint's
// loudness dimension.
func IntegratedLoudness(samples []float64, channels, sampleRate int) float64 {
	return loudnessStats(monoMix(samples, channels), float64(sampleRate)).integrated
}

type spectralStats struct {
	bandRatios     [5]float64
	centroidMean   float64
	centroidDev    float64
	rolloff        float64
	flatness       float64
	flux           float64
	onsetDensity   float64
	transientRatio float64
}

// Band edges in Hz: bass, low-mid, mid, high-mid, treble.
var bandEdges = [6]float64{0, 250, 500, 2000, 6000, 24000}

func (a *Analyzer) spectralStats(mono []float64, rate float64) spectralStats {
	var st spectralStats
	if len(mono) < windowSize {
		return st
	}

	binHz := rate / windowSize
	fft := fourier.NewFFT(windowSize)
	frame := make([]float64, windowSize)
	prevMag := make([]float64, windowSize/2)

	var bandEnergy [5]float64
	var centroids []float64
	var totalEnergy, rolloffSum, flatnessSum, fluxSum float64
	var frames, onsets int
	var prevFrameEnergy float64

	for start := 0; start+windowSize <= len(mono); start += hopSize {
		copy(frame, mono[start:start+windowSize])
		for i := range frame {
			frame[i] *= a.window[i]
		}

		coeffs := fft.Coefficients(nil, frame)

		var frameEnergy, weighted float64
		var logSum float64
		bins := windowSize / 2
		for k := 1; k < bins; k++ {
			re := real(coeffs[k])
			im := imag(coeffs[k])
			p := re*re + im*im
			mag := math.Sqrt(p)
			freq := float64(k) * binHz

			frameEnergy += p
			weighted += p * freq
			logSum += math.Log(p + 1e-12)
			fluxSum += math.Abs(mag - prevMag[k])
			prevMag[k] = mag

			for b := 0; b < 5; b++ {
				if freq >= bandEdges[b] && freq < bandEdges[b+1] {
					bandEnergy[b] += p
					break
				}
			}
		}

		if frameEnergy > 0 {
			centroids = append(centroids, weighted/frameEnergy)
			flatnessSum += math.Exp(logSum/float64(bins-1)) / (frameEnergy / float64(bins-1))

			// 85% energy rolloff frequency.
			target := 0.85 * frameEnergy
			var acc float64
			for k := 1; k < bins; k++ {
				re := real(coeffs[k])
				im := imag(coeffs[k])
				acc += re*re + im*im
				if acc >= target {
					rolloffSum += float64(k) * binHz
					break
				}
			}
		}

		// Energy-jump onset heuristic.
		if frames > 0 && frameEnergy > prevFrameEnergy*2 && frameEnergy > 1e-6 {
			onsets++
		}
		prevFrameEnergy = frameEnergy
		totalEnergy += frameEnergy
		frames++
	}

	if frames == 0 || totalEnergy == 0 {
		return st
	}

	for b := 0; b < 5; b++ {
		st.bandRatios[b] = bandEnergy[b] / totalEnergy
	}

	var mean, dev float64
	for _, c := range centroids {
		mean += c
	}
	mean /= float64(len(centroids))
	for _, c := range centroids {
		dev += (c - mean) * (c - mean)
	}
	st.centroidMean = mean
	st.centroidDev = math.Sqrt(dev / float64(len(centroids)))
	st.rolloff = rolloffSum / float64(len(centroids))
	st.flatness = flatnessSum / float64(len(centroids))
	st.flux = fluxSum / float64(frames)

	durationSec := float64(len(mono)) / rate
	st.onsetDensity = float64(onsets) / durationSec
	st.transientRatio = float64(onsets) / float64(frames)
	return st
}

type loudnessMeasures struct {
	integrated    float64
	loudnessRange float64
	dynamicRange  float64
	noiseFloorDB  float64
}

// loudnessStats measures gated block loudness in the manner of integrated
// LUFS: 400 ms blocks, mean-square energy, -70 LUFS absolute gate.
func loudnessStats(mono []float64, rate float64) loudnessMeasures {
	m := loudnessMeasures{integrated: loudnessGateLUFS, noiseFloorDB: -90}
	blockLen := int(loudnessBlockSec * rate)
	if blockLen <= 0 || len(mono) < blockLen {
		return m
	}

	var blocks []float64
	for start := 0; start+blockLen <= len(mono); start += blockLen {
		var sumSq float64
		for _, s := range mono[start : start+blockLen] {
			sumSq += s * s
		}
		ms := sumSq / float64(blockLen)
		lufs := -0.691 + 10*math.Log10(ms+1e-12)
		blocks = append(blocks, lufs)
	}
	if len(blocks) == 0 {
		return m
	}

	var energy float64
	var gated int
	softest, loudest := 0.0, -200.0
	floor := 0.0
	for _, l := range blocks {
		if l > loudest {
			loudest = l
		}
		if l < floor {
			floor = l
		}
		if l >= loudnessGateLUFS {
			energy += math.Pow(10, (l+0.691)/10)
			gated++
			if softest == 0 || l < softest {
				softest = l
			}
		}
	}
	if gated == 0 {
		return m
	}

	m.integrated = -0.691 + 10*math.Log10(energy/float64(gated))
	m.loudnessRange = loudest - softest
	m.dynamicRange = loudest - floor
	m.noiseFloorDB = floor
	return m
}

// stereoStats returns (width, correlation) for interleaved stereo audio.
// Mono tracks report zero width and full correlation.
func stereoStats(samples []float64, channels int) (width, corr float64) {
	if channels != 2 {
		return 0, 1
	}
	frames := len(samples) / 2
	if frames == 0 {
		return 0, 1
	}

	var midE, sideE, lE, rE, lr float64
	for f := 0; f < frames; f++ {
		l := samples[f*2]
		r := samples[f*2+1]
		mid := (l + r) / 2
		side := (l - r) / 2
		midE += mid * mid
		sideE += side * side
		lE += l * l
		rE += r * r
		lr += l * r
	}
	if midE+sideE > 0 {
		width = sideE / (midE + sideE)
	}
	if lE > 0 && rE > 0 {
		corr = lr / math.Sqrt(lE*rE)
	} else {
		corr = 1
	}
	return width, corr
}

func monoMix(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float64, frames)
	for f := 0; f < frames; f++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += samples[f*channels+c]
		}
		mono[f] = sum / float64(channels)
	}
	return mono
}
