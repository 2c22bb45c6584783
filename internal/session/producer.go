package session

import (
	"context"
	"fmt"
	"sync"

	"masterd/internal/analysis"
	"masterd/internal/cache"
	"masterd/internal/catalog"
	"masterd/internal/dsp"
	"masterd/internal/encode"
	"masterd/internal/events"
	"masterd/internal/logger"
	"masterd/internal/models"
)

// trackState holds the per-track analysis results, computed once on first
// request and reused by every session streaming the track. It lives in the
// producer's registry and is evicted when the track is unloaded.
type trackState struct {
	mutex       sync.Mutex
	fingerprint *models.Fingerprint
	resolved    map[models.Philosophy]resolvedParams
}

type resolvedParams struct {
	profile models.RecordingProfile
	params  models.ProcessingParameters
	hash    uint64
	// Track-wide integrated loudness, fed to the chain so every chunk of a
	// track is normalized with the same gain.
	sourceLUFS float64
}

// Producer owns the analysis → processing → encode → cache path. It
// guarantees at most one in-flight production per chunk key and runs all
// CPU-bound work on a bounded worker pool.
type Producer struct {
	catalog  catalog.Provider
	analyzer *analysis.Analyzer
	encoder  *encode.Encoder
	cache    *cache.MultiTierCache
	events   events.Publisher
	pool     *workerPool
	inflight *inflightRegistry
	logger   logger.Logger

	mutex  sync.Mutex
	tracks map[string]*trackState
}

// NewProducer wires the production pipeline together.
func NewProducer(provider catalog.Provider, enc *encode.Encoder, chunkCache *cache.MultiTierCache,
	pub events.Publisher, workers int, log logger.Logger) *Producer {
	return &Producer{
		catalog:  provider,
		analyzer: analysis.NewAnalyzer(),
		encoder:  enc,
		cache:    chunkCache,
		events:   pub,
		pool:     newWorkerPool(workers, workers*4, log),
		inflight: newInflightRegistry(),
		logger:   log,
		tracks:   make(map[string]*trackState),
	}
}

// Stop drains the worker pool. Queued productions still complete and cache.
func (p *Producer) Stop() {
	p.pool.Stop()
}

// Key builds the cache key for a chunk request. Original-kind chunks are
// parameter-independent, so their hash slot is fixed at zero.
func (p *Producer) Key(trackID string, sequence int, kind models.ChunkKind, preset models.Philosophy) (models.ChunkKey, error) {
	key := models.ChunkKey{TrackID: trackID, Sequence: sequence, Kind: kind}
	if kind == models.KindProcessed {
		rp, err := p.resolve(trackID, preset)
		if err != nil {
			return key, err
		}
		key.ParamsHash = rp.hash
	}
	return key, nil
}

// GetChunk returns the chunk for the request, serving from cache when
// possible. On a miss, exactly one production runs per key; concurrent
// callers attach to it. The caller's context bounds the wait only; an
// expired waiter never cancels production.
func (p *Producer) GetChunk(ctx context.Context, sessionID, trackID string, sequence int,
	kind models.ChunkKind, preset models.Philosophy) (*models.Chunk, error) {

	key, err := p.Key(trackID, sequence, kind, preset)
	if err != nil {
		return nil, err
	}

	if chunk, ok := p.cache.Get(key); ok {
		return chunk, nil
	}

	f, leader := p.inflight.begin(key)
	if leader {
		if !p.pool.Submit(func() { p.runProduction(sessionID, key, preset, f) }) {
			p.inflight.finish(key, f, nil, fmt.Errorf("producer is shut down"))
		}
	}
	return f.wait(ctx)
}

// Prefetch warms the cache for a chunk without waiting on the result.
func (p *Producer) Prefetch(sessionID, trackID string, sequence int, kind models.ChunkKind, preset models.Philosophy) {
	key, err := p.Key(trackID, sequence, kind, preset)
	if err != nil {
		p.logger.Warnf("Prefetch skipped for %s/%d: %v", trackID, sequence, err)
		return
	}
	if p.cache.Contains(key) {
		return
	}

	f, leader := p.inflight.begin(key)
	if leader {
		if !p.pool.Submit(func() { p.runProduction(sessionID, key, preset, f) }) {
			p.inflight.finish(key, f, nil, fmt.Errorf("producer is shut down"))
		}
	}
}

// runProduction executes one chunk production and publishes its outcome.
// A successful chunk is inserted into the cache before waiters are released;
// a failed one never touches cache state.
func (p *Producer) runProduction(sessionID string, key models.ChunkKey, preset models.Philosophy, f *flight) {
	p.events.Publish(models.Event{
		SessionID: sessionID,
		Type:      models.EventProcessingStarted,
		Payload: map[string]any{
			"trackId":  key.TrackID,
			"sequence": key.Sequence,
			"kind":     string(key.Kind),
		},
	})

	chunk, err := p.produce(key, preset)
	if err == nil {
		if cacheErr := p.cache.Put(key, chunk); cacheErr != nil {
			// An oversized chunk is still deliverable to this requester.
			p.logger.Warnf("Produced chunk %s not cached: %v", key, cacheErr)
		}
		p.events.Publish(models.Event{
			SessionID: sessionID,
			Type:      models.EventChunkReady,
			Payload: map[string]any{
				"trackId":  key.TrackID,
				"sequence": key.Sequence,
				"kind":     string(key.Kind),
				"bytes":    chunk.Size(),
			},
		})
	} else {
		p.logger.Errorf("Chunk production failed for %s: %v", key, err)
		p.events.Publish(models.Event{
			SessionID: sessionID,
			Type:      models.EventChunkFailed,
			Payload: map[string]any{
				"trackId":  key.TrackID,
				"sequence": key.Sequence,
				"error":    err.Error(),
			},
		})
	}

	p.inflight.finish(key, f, chunk, err)
}

// produce runs decode (cached) → analysis (cached) → DSP → encode for one
// chunk. Encoding is deterministic, so an encode failure is retried once
// with identical inputs before giving up.
func (p *Producer) produce(key models.ChunkKey, preset models.Philosophy) (*models.Chunk, error) {
	track, err := p.catalog.Get(key.TrackID)
	if err != nil {
		return nil, err
	}

	start, end, err := p.encoder.ChunkBounds(key.Sequence, track.Frames())
	if err != nil {
		return nil, err
	}
	region := track.Samples[start*track.Channels : end*track.Channels]

	samples := region
	if key.Kind == models.KindProcessed {
		rp, err := p.resolve(key.TrackID, preset)
		if err != nil {
			return nil, err
		}

		chain := dsp.NewChain(rp.params, rp.sourceLUFS, track.SampleRate, track.Channels, p.logger)
		processed, err := chain.Process(region)
		if err != nil {
			return nil, fmt.Errorf("dsp chain failed for %s: %w", key, err)
		}
		samples = processed.Samples

		p.logger.Debugf("Processed %s: measured %.1f LUFS, peak %.1f dB, crest %.1f dB",
			key, processed.MeasuredLUFS, processed.MeasuredPeakDB, processed.MeasuredCrestDB)
	}

	chunk, err := p.encoder.EncodeChunk(key.TrackID, key.Sequence, key.Kind, samples)
	if err != nil {
		p.logger.Warnf("Encode failed for %s, retrying once: %v", key, err)
		chunk, err = p.encoder.EncodeChunk(key.TrackID, key.Sequence, key.Kind, samples)
		if err != nil {
			return nil, err
		}
	}
	return chunk, nil
}

// resolve returns the cached analysis products for (track, preset),
// computing fingerprint, recording profile, and parameters on first use.
func (p *Producer) resolve(trackID string, preset models.Philosophy) (resolvedParams, error) {
	state := p.trackState(trackID)

	state.mutex.Lock()
	defer state.mutex.Unlock()

	if rp, ok := state.resolved[preset]; ok {
		return rp, nil
	}

	if state.fingerprint == nil {
		track, err := p.catalog.Get(trackID)
		if err != nil {
			return resolvedParams{}, err
		}
		fp, err := p.analyzer.Fingerprint(track)
		if err != nil {
			return resolvedParams{}, fmt.Errorf("%w: %v", catalog.ErrDecode, err)
		}
		state.fingerprint = &fp
		p.logger.Infof("Fingerprinted track %s: %.1f LUFS, crest %.1f dB, bass ratio %.2f",
			trackID, fp[models.FPIntegratedLUFS], fp[models.FPCrestFactorDB], fp[models.FPBassRatio])
	}

	profile := analysis.DetectRecordingType(*state.fingerprint, preset)
	params := analysis.ResolveParameters(*state.fingerprint, profile, preset)
	if err := analysis.ValidateParameters(params); err != nil {
		// Unreachable given resolver clamps; fall back to passthrough
		// rather than failing the track.
		p.logger.Errorf("Parameter range invariant violated for track %s: %v", trackID, err)
		params = models.Passthrough()
	}

	rp := resolvedParams{
		profile:    profile,
		params:     params,
		hash:       models.HashParams(params),
		sourceLUFS: state.fingerprint[models.FPIntegratedLUFS],
	}
	state.resolved[preset] = rp

	p.logger.Infof("Resolved %s/%s: type=%s conf=%.2f target=%.1f LUFS bass=%+.1f dB mid=%+.1f dB air=%+.1f dB",
		trackID, preset, profile.Type, profile.Confidence,
		params.TargetLoudnessLUFS, params.BandGainsDB[0], params.BandGainsDB[1], params.BandGainsDB[2])
	return rp, nil
}

func (p *Producer) trackState(trackID string) *trackState {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	state, ok := p.tracks[trackID]
	if !ok {
		state = &trackState{resolved: make(map[models.Philosophy]resolvedParams)}
		p.tracks[trackID] = state
	}
	return state
}

// UnloadTrack evicts the track's analysis state and decoded audio. Cached
// chunks stay valid: they are content-deterministic for their key.
func (p *Producer) UnloadTrack(trackID string) {
	p.mutex.Lock()
	delete(p.tracks, trackID)
	p.mutex.Unlock()
	p.catalog.Unload(trackID)
}

// Metadata describes a track's chunked stream.
func (p *Producer) Metadata(trackID string) (*models.StreamMetadata, error) {
	track, err := p.catalog.Get(trackID)
	if err != nil {
		return nil, err
	}
	return &models.StreamMetadata{
		TrackID:       trackID,
		ChunkCount:    p.encoder.ChunkCount(track.Frames()),
		ChunkDuration: p.encoder.ChunkDuration(),
		Codec:         "opus",
		SampleRate:    track.SampleRate,
		Channels:      track.Channels,
		BitrateKbps:   p.encoder.Bitrate(),
	}, nil
}

// CacheStats exposes cache occupancy for status events and the stats API.
func (p *Producer) CacheStats() cache.Stats {
	return p.cache.Stats()
}
