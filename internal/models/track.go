package models

import "time"

// Track holds a fully decoded audio track. Samples are interleaved float64
// at the pipeline sample rate and are read-only after decode, so concurrent
// DSP invocations may read different regions without coordination.
type Track struct {
	ID         string
	Title      string
	Samples    []float64
	SampleRate int
	Channels   int
}

// Duration returns the playback length of the track.
func (t *Track) Duration() time.Duration {
	if t.SampleRate == 0 || t.Channels == 0 {
		return 0
	}
	frames := len(t.Samples) / t.Channels
	return time.Duration(frames) * time.Second / time.Duration(t.SampleRate)
}

// Frames returns the number of sample frames (samples per channel).
func (t *Track) Frames() int {
	if t.Channels == 0 {
		return 0
	}
	return len(t.Samples) / t.Channels
}

// StreamMetadata describes a track's chunked stream to the playback client.
type StreamMetadata struct {
	TrackID       string        `json:"trackId"`
	ChunkCount    int           `json:"chunkCount"`
	ChunkDuration time.Duration `json:"chunkDuration"`
	Codec         string        `json:"codec"`
	SampleRate    int           `json:"sampleRate"`
	Channels      int           `json:"channels"`
	BitrateKbps   int           `json:"bitrateKbps"`
}
