package dsp

import "math"

// Fixed band layout of the mastering EQ. Gains come from the resolved
// parameters; the blend factor interpolates each gain between zero (no
// change) and the full target curve.
const (
	lowShelfHz  = 120.0
	midPeakHz   = 1000.0
	highShelfHz = 8000.0
	bandQ       = 0.707
)

// biquad is a direct-form-I second order filter section.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

// applyEQ runs the three shelving/peaking bands over every channel. Gains
// are pre-scaled by the EQ blend, so blend 0 reduces each band to unity.
func (c *Chain) applyEQ(samples []float64) {
	blend := c.params.EQBlend
	gains := [3]float64{
		c.params.BandGainsDB[0] * blend,
		c.params.BandGainsDB[1] * blend,
		c.params.BandGainsDB[2] * blend,
	}
	if gains[0] == 0 && gains[1] == 0 && gains[2] == 0 {
		return
	}

	rate := float64(c.sampleRate)
	for ch := 0; ch < c.channels; ch++ {
		bands := [3]biquad{
			lowShelf(rate, lowShelfHz, gains[0]),
			peaking(rate, midPeakHz, gains[1]),
			highShelf(rate, highShelfHz, gains[2]),
		}
		for i := ch; i < len(samples); i += c.channels {
			s := samples[i]
			for b := range bands {
				s = bands[b].process(s)
			}
			samples[i] = s
		}
	}
}

// RBJ audio EQ cookbook coefficient derivations.

func lowShelf(rate, freq, gainDB float64) biquad {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / rate
	cosW := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * bandQ)
	beta := 2 * math.Sqrt(a) * alpha

	b0 := a * ((a + 1) - (a-1)*cosW + beta)
	b1 := 2 * a * ((a - 1) - (a+1)*cosW)
	b2 := a * ((a + 1) - (a-1)*cosW - beta)
	a0 := (a + 1) + (a-1)*cosW + beta
	a1 := -2 * ((a - 1) + (a+1)*cosW)
	a2 := (a + 1) + (a-1)*cosW - beta

	return normalize(b0, b1, b2, a0, a1, a2)
}

func highShelf(rate, freq, gainDB float64) biquad {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / rate
	cosW := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * bandQ)
	beta := 2 * math.Sqrt(a) * alpha

	b0 := a * ((a + 1) + (a-1)*cosW + beta)
	b1 := -2 * a * ((a - 1) + (a+1)*cosW)
	b2 := a * ((a + 1) + (a-1)*cosW - beta)
	a0 := (a + 1) - (a-1)*cosW + beta
	a1 := 2 * ((a - 1) - (a+1)*cosW)
	a2 := (a + 1) - (a-1)*cosW - beta

	return normalize(b0, b1, b2, a0, a1, a2)
}

func peaking(rate, freq, gainDB float64) biquad {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / rate
	cosW := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * bandQ)

	b0 := 1 + alpha*a
	b1 := -2 * cosW
	b2 := 1 - alpha*a
	a0 := 1 + alpha/a
	a1 := -2 * cosW
	a2 := 1 - alpha/a

	return normalize(b0, b1, b2, a0, a1, a2)
}

func normalize(b0, b1, b2, a0, a1, a2 float64) biquad {
	return biquad{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}
}
