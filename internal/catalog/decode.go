package catalog

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// decodeFile decodes a wav/mp3/ogg file to interleaved float64 samples in
// [-1,1] at the file's native rate and channel count.
func decodeFile(path string) (samples []float64, sampleRate, channels int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWav(f)
	case ".mp3":
		return decodeMp3(f)
	case ".ogg":
		return decodeOgg(f)
	default:
		return nil, 0, 0, fmt.Errorf("unsupported audio format: %s", path)
	}
}

func decodeWav(f *os.File) ([]float64, int, int, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("not a valid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read WAV PCM data: %w", err)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}
	return intBufferToFloat(buf, bitDepth), buf.Format.SampleRate, buf.Format.NumChannels, nil
}

// intBufferToFloat normalizes integer PCM to float64 in [-1,1].
func intBufferToFloat(buf *audio.IntBuffer, bitDepth int) []float64 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))
	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float64(v) / scale
	}
	return samples
}

func decodeMp3(f *os.File) ([]float64, int, int, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open MP3 stream: %w", err)
	}

	// go-mp3 always emits 16-bit little-endian stereo.
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode MP3 frames: %w", err)
	}
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}

	samples := make([]float64, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		samples[i] = float64(v) / 32768.0
	}
	return samples, dec.SampleRate(), 2, nil
}

func decodeOgg(f *os.File) ([]float64, int, int, error) {
	data, format, err := oggvorbis.ReadAll(f)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode Ogg Vorbis stream: %w", err)
	}

	samples := make([]float64, len(data))
	for i, v := range data {
		samples[i] = float64(v)
	}
	return samples, format.SampleRate, format.Channels, nil
}
