package models

import (
	"fmt"
	"hash/fnv"
	"time"
)

// ChunkKind distinguishes untouched source chunks from mastered ones.
type ChunkKind string

const (
	KindOriginal  ChunkKind = "original"
	KindProcessed ChunkKind = "processed"
)

// Chunk is a fixed-duration, independently compressed span of one track's
// audio. It is the unit of caching and delivery and is immutable once produced.
type Chunk struct {
	TrackID  string
	Sequence int
	Kind     ChunkKind
	// Payload holds length-prefixed Opus packets.
	Payload  []byte
	Duration time.Duration
}

// Size returns the payload size in bytes, used for cache budget accounting.
func (c *Chunk) Size() int {
	return len(c.Payload)
}

// ChunkKey identifies a chunk across cache tiers and in-flight production.
// ParamsHash ties the key to the exact parameter set that produced it, so a
// preset change never aliases into stale processed audio.
type ChunkKey struct {
	TrackID    string
	Sequence   int
	Kind       ChunkKind
	ParamsHash uint64
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("%s/%d/%s/%016x", k.TrackID, k.Sequence, k.Kind, k.ParamsHash)
}

// HashParams produces the deterministic parameter-set hash used in ChunkKey.
// Parameters are quantized before hashing (see ProcessingParameters), so two
// resolutions from identical inputs always collide here.
func HashParams(p ProcessingParameters) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%.1f|%.1f|%.2f|%.2f|%.1f|%.1f|%.1f",
		p.TargetLoudnessLUFS, p.PeakCeilingDB, p.EQBlend, p.DynamicsBlend,
		p.BandGainsDB[0], p.BandGainsDB[1], p.BandGainsDB[2])
	return h.Sum64()
}
