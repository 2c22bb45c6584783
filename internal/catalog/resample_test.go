package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemixChannels_MonoToStereo(t *testing.T) {
	out := remixChannels([]float64{0.1, 0.2, 0.3}, 1, 2)
	assert.Equal(t, []float64{0.1, 0.1, 0.2, 0.2, 0.3, 0.3}, out)
}

func TestRemixChannels_StereoToMono(t *testing.T) {
	out := remixChannels([]float64{0.2, 0.4, -0.6, 0.6}, 2, 1)
	require.Len(t, out, 2)
	assert.InDelta(t, 0.3, out[0], 1e-12)
	assert.InDelta(t, 0.0, out[1], 1e-12)
}

func TestRemixChannels_NoopWhenEqual(t *testing.T) {
	in := []float64{0.1, 0.2}
	assert.Equal(t, in, remixChannels(in, 2, 2))
}

func TestRemixChannels_FoldsWideLayouts(t *testing.T) {
	// 4 channels fold to mono then spread to stereo.
	out := remixChannels([]float64{0.4, 0.4, 0.0, 0.0}, 4, 2)
	require.Len(t, out, 2)
	assert.InDelta(t, 0.2, out[0], 1e-12)
	assert.InDelta(t, 0.2, out[1], 1e-12)
}

func TestResampleLinear_Noop(t *testing.T) {
	in := []float64{0.1, 0.2, 0.3}
	assert.Equal(t, in, resampleLinear(in, 1, 48000, 48000))
}

func TestResampleLinear_Upsample(t *testing.T) {
	// A linear ramp survives linear interpolation exactly.
	in := []float64{0, 1, 2, 3}
	out := resampleLinear(in, 1, 1000, 2000)
	require.Len(t, out, 8)
	for f := 0; f < len(out); f++ {
		assert.InDelta(t, float64(f)*0.5, out[f], 1e-9, "frame %d", f)
	}
}

func TestResampleLinear_Downsample(t *testing.T) {
	in := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	out := resampleLinear(in, 1, 2000, 1000)
	require.Len(t, out, 4)
	for f := 0; f < len(out); f++ {
		assert.InDelta(t, float64(f)*2, out[f], 1e-9, "frame %d", f)
	}
}

func TestResampleLinear_InterleavedChannelsIndependent(t *testing.T) {
	// Left is a ramp, right is constant; both must survive independently.
	in := []float64{0, 1, 1, 1, 2, 1, 3, 1}
	out := resampleLinear(in, 2, 1000, 2000)
	require.Len(t, out, 16)
	for f := 0; f < 8; f++ {
		assert.InDelta(t, float64(f)*0.5, out[f*2], 1e-9, "left frame %d", f)
		assert.InDelta(t, 1.0, out[f*2+1], 1e-9, "right frame %d", f)
	}
}
