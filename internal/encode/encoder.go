package encode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"gopkg.in/hraban/opus.v2"

	"masterd/internal/logger"
	"masterd/internal/models"
)

// ErrEncode marks a per-chunk encoding failure. Encoding is deterministic,
// so callers retry once with identical inputs before surfacing the error; a
// failed chunk is never inserted into the cache.
var ErrEncode = errors.New("encode error")

// FrameDuration is the codec frame length. 20 ms is the canonical Opus
// frame; a chunk payload is a sequence of length-prefixed packets.
const FrameDuration = 20 * time.Millisecond

const maxPacketBytes = 4000

// Encoder compresses processed (or original) audio regions into chunks at a
// fixed target bitrate. Encoding is CPU-bound; the caller schedules it on
// the worker pool.
type Encoder struct {
	sampleRate    int
	channels      int
	bitrateKbps   int
	chunkDuration time.Duration
	logger        logger.Logger
}

// NewEncoder returns a chunk encoder for the pipeline audio format.
func NewEncoder(sampleRate, channels, bitrateKbps int, chunkDuration time.Duration, log logger.Logger) *Encoder {
	return &Encoder{
		sampleRate:    sampleRate,
		channels:      channels,
		bitrateKbps:   bitrateKbps,
		chunkDuration: chunkDuration,
		logger:        log,
	}
}

// ChunkDuration returns the fixed target duration of a full chunk.
func (e *Encoder) ChunkDuration() time.Duration {
	return e.chunkDuration
}

// Bitrate returns the target bitrate in kbit/s.
func (e *Encoder) Bitrate() int {
	return e.bitrateKbps
}

// FramesPerChunk returns the number of sample frames in a full chunk.
func (e *Encoder) FramesPerChunk() int {
	return int(e.chunkDuration.Seconds() * float64(e.sampleRate))
}

// ChunkCount returns how many chunks a track of the given frame count
// slices into. The last chunk may be shorter than the target duration.
func (e *Encoder) ChunkCount(trackFrames int) int {
	per := e.FramesPerChunk()
	if per <= 0 || trackFrames <= 0 {
		return 0
	}
	return (trackFrames + per - 1) / per
}

// ChunkBounds returns the [start, end) frame range of a sequence index
// within a track of trackFrames frames.
func (e *Encoder) ChunkBounds(sequence, trackFrames int) (start, end int, err error) {
	per := e.FramesPerChunk()
	start = sequence * per
	if sequence < 0 || start >= trackFrames {
		return 0, 0, fmt.Errorf("sequence %d out of range for %d frames", sequence, trackFrames)
	}
	end = start + per
	if end > trackFrames {
		end = trackFrames
	}
	return start, end, nil
}

// EncodeChunk compresses one chunk's worth of interleaved float64 samples.
// The final partial frame is zero-padded to a full codec frame.
func (e *Encoder) EncodeChunk(trackID string, sequence int, kind models.ChunkKind, samples []float64) (*models.Chunk, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: empty region for %s/%d", ErrEncode, trackID, sequence)
	}

	enc, err := opus.NewEncoder(e.sampleRate, e.channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create opus encoder: %v", ErrEncode, err)
	}
	if err := enc.SetBitrate(e.bitrateKbps * 1000); err != nil {
		return nil, fmt.Errorf("%w: failed to set bitrate: %v", ErrEncode, err)
	}

	frameSamples := e.frameSamples()
	pcm := make([]int16, frameSamples)
	packet := make([]byte, maxPacketBytes)
	payload := make([]byte, 0, len(samples)/8)

	for offset := 0; offset < len(samples); offset += frameSamples {
		end := offset + frameSamples
		if end > len(samples) {
			end = len(samples)
		}

		for i := range pcm {
			pcm[i] = 0
		}
		floatToInt16(samples[offset:end], pcm)

		n, err := enc.Encode(pcm, packet)
		if err != nil {
			return nil, fmt.Errorf("%w: opus encode failed at offset %d for %s/%d: %v",
				ErrEncode, offset, trackID, sequence, err)
		}

		var prefix [2]byte
		binary.BigEndian.PutUint16(prefix[:], uint16(n))
		payload = append(payload, prefix[:]...)
		payload = append(payload, packet[:n]...)
	}

	frames := len(samples) / e.channels
	duration := time.Duration(frames) * time.Second / time.Duration(e.sampleRate)

	e.logger.Debugf("Encoded chunk %s/%d (%s): %d bytes for %v of audio",
		trackID, sequence, kind, len(payload), duration)

	return &models.Chunk{
		TrackID:  trackID,
		Sequence: sequence,
		Kind:     kind,
		Payload:  payload,
		Duration: duration,
	}, nil
}

// frameSamples is the number of interleaved values per codec frame.
func (e *Encoder) frameSamples() int {
	return int(FrameDuration.Seconds()*float64(e.sampleRate)) * e.channels
}

// floatToInt16 converts with clamping. Processing upstream runs in float64;
// this is the single point where precision drops to the output format.
func floatToInt16(src []float64, dst []int16) {
	for i, s := range src {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		dst[i] = int16(s * 32767)
	}
}
