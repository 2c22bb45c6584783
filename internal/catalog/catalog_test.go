package catalog

import (
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"masterd/internal/logger"
	"masterd/internal/models"
)

// writeWav creates a 16-bit PCM WAV with a mono 440 Hz sine.
func writeWav(t *testing.T, path string, sampleRate int, seconds float64) {
	t.Helper()
	out, err := os.Create(path)
	require.NoError(t, err)
	defer out.Close()

	enc := wav.NewEncoder(out, sampleRate, 16, 1, 1)
	frames := int(seconds * float64(sampleRate))
	data := make([]int, frames)
	for f := 0; f < frames; f++ {
		v := 0.5 * math.Sin(2*math.Pi*440*float64(f)/float64(sampleRate))
		data[f] = int(v * 32767)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestLibrary_ScanAndList(t *testing.T) {
	dir := t.TempDir()
	writeWav(t, filepath.Join(dir, "song.wav"), 48000, 0.1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	lib, err := NewLibrary(dir, 48000, 2, logger.Nop{})
	require.NoError(t, err)

	ids := lib.List()
	assert.Equal(t, []string{"song"}, ids, "unsupported files and directories are skipped")
}

func TestLibrary_GetDecodesAndConverts(t *testing.T) {
	dir := t.TempDir()
	writeWav(t, filepath.Join(dir, "song.wav"), 44100, 0.1)

	lib, err := NewLibrary(dir, 48000, 2, logger.Nop{})
	require.NoError(t, err)

	track, err := lib.Get("song")
	require.NoError(t, err)
	assert.Equal(t, "song", track.ID)
	assert.Equal(t, 48000, track.SampleRate, "resampled to the pipeline rate")
	assert.Equal(t, 2, track.Channels, "remixed to the pipeline channel count")
	assert.InDelta(t, 4800, track.Frames(), 5)

	// Samples are normalized and both channels carry the mono source.
	var peak float64
	for _, s := range track.Samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	assert.InDelta(t, 0.5, peak, 0.02)
	assert.Equal(t, track.Samples[100*2], track.Samples[100*2+1])
}

func TestLibrary_GetCachesDecodedTrack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.wav")
	writeWav(t, path, 48000, 0.1)

	lib, err := NewLibrary(dir, 48000, 2, logger.Nop{})
	require.NoError(t, err)

	first, err := lib.Get("song")
	require.NoError(t, err)

	// Remove the file: a second Get must serve from the decoded cache.
	require.NoError(t, os.Remove(path))
	second, err := lib.Get("song")
	require.NoError(t, err)
	assert.Same(t, first, second)

	// Unload drops the cache, so the next Get has to re-decode and fails.
	lib.Unload("song")
	_, err = lib.Get("song")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestLibrary_UnknownTrack(t *testing.T) {
	lib, err := NewLibrary(t.TempDir(), 48000, 2, logger.Nop{})
	require.NoError(t, err)

	_, err = lib.Get("missing")
	assert.ErrorIs(t, err, ErrTrackNotFound)
}

func TestLibrary_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.wav"), []byte("not audio"), 0o644))

	lib, err := NewLibrary(dir, 48000, 2, logger.Nop{})
	require.NoError(t, err)

	_, err = lib.Get("bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestLibrary_MissingDir(t *testing.T) {
	_, err := NewLibrary(filepath.Join(t.TempDir(), "nope"), 48000, 2, logger.Nop{})
	assert.Error(t, err)
}

func TestLibrary_DecodeDoesNotBlockOtherTracks(t *testing.T) {
	dir := t.TempDir()
	writeWav(t, filepath.Join(dir, "short.wav"), 48000, 0.1)
	writeWav(t, filepath.Join(dir, "long.wav"), 48000, 120)

	lib, err := NewLibrary(dir, 48000, 2, logger.Nop{})
	require.NoError(t, err)

	_, err = lib.Get("short")
	require.NoError(t, err)

	var longDone atomic.Bool
	longErr := make(chan error, 1)
	go func() {
		_, err := lib.Get("long")
		longDone.Store(true)
		longErr <- err
	}()

	// Give the long decode time to take its per-track lock.
	time.Sleep(50 * time.Millisecond)

	_, err = lib.Get("short")
	require.NoError(t, err)
	assert.False(t, longDone.Load(),
		"cached lookup must not wait for an unrelated decode")

	require.NoError(t, <-longErr)
}

func TestLibrary_ConcurrentGetsShareOneDecode(t *testing.T) {
	dir := t.TempDir()
	writeWav(t, filepath.Join(dir, "song.wav"), 48000, 0.1)

	lib, err := NewLibrary(dir, 48000, 2, logger.Nop{})
	require.NoError(t, err)

	const callers = 8
	results := make(chan *models.Track, callers)
	for i := 0; i < callers; i++ {
		go func() {
			track, err := lib.Get("song")
			assert.NoError(t, err)
			results <- track
		}()
	}

	first := <-results
	for i := 1; i < callers; i++ {
		assert.Same(t, first, <-results, "all callers share the cached decode")
	}
}
