package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"masterd/internal/logger"
	"masterd/internal/models"
)

// ErrDecode marks a track whose source audio could not be read or decoded.
// It is fatal per-track: no chunk is ever produced from an undecodable source.
var ErrDecode = errors.New("decode error")

// ErrTrackNotFound marks a track id unknown to the library.
var ErrTrackNotFound = errors.New("track not found")

// Provider supplies decoded tracks to the streaming core. Implementations
// must return read-only sample buffers; the core reads them concurrently.
type Provider interface {
	Get(trackID string) (*models.Track, error)
	List() []string
	// Unload drops any decoded audio held for the track.
	Unload(trackID string)
}

// Library is a directory-backed Provider. Track ids are file names without
// extension; decoded PCM is cached so a track is only decoded once. The
// library mutex guards map bookkeeping only; decoding runs under a per-track
// mutex, so a slow decode never blocks requests for other tracks.
type Library struct {
	dir        string
	sampleRate int
	channels   int
	logger     logger.Logger

	mutex  sync.RWMutex
	paths  map[string]string
	tracks map[string]*libraryTrack
}

// libraryTrack holds the decode state for one track. The first caller to
// take the mutex decodes; later callers find the cached result.
type libraryTrack struct {
	mutex sync.Mutex
	track *models.Track
}

// NewLibrary scans dir for supported audio files and returns a Library that
// decodes them lazily to interleaved float64 at the given rate and channels.
func NewLibrary(dir string, sampleRate, channels int, log logger.Logger) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read library dir %s: %w", dir, err)
	}

	lib := &Library{
		dir:        dir,
		sampleRate: sampleRate,
		channels:   channels,
		logger:     log,
		paths:      make(map[string]string),
		tracks:     make(map[string]*libraryTrack),
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		switch ext {
		case ".wav", ".mp3", ".ogg":
			id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
			lib.paths[id] = filepath.Join(dir, e.Name())
		default:
			log.Debugf("Skipping unsupported library file: %s", e.Name())
		}
	}

	log.Infof("Library scanned: %d tracks under %s", len(lib.paths), dir)
	return lib, nil
}

// List returns all known track ids.
func (l *Library) List() []string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	ids := make([]string, 0, len(l.paths))
	for id := range l.paths {
		ids = append(ids, id)
	}
	return ids
}

// Get returns the decoded track, decoding on first request. Concurrent
// first requests for the same track share one decode; requests for other
// tracks proceed independently.
func (l *Library) Get(trackID string) (*models.Track, error) {
	l.mutex.RLock()
	path, known := l.paths[trackID]
	entry := l.tracks[trackID]
	l.mutex.RUnlock()

	if !known {
		return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	if entry == nil {
		l.mutex.Lock()
		if entry = l.tracks[trackID]; entry == nil {
			entry = &libraryTrack{}
			l.tracks[trackID] = entry
		}
		l.mutex.Unlock()
	}

	entry.mutex.Lock()
	defer entry.mutex.Unlock()
	if entry.track != nil {
		return entry.track, nil
	}

	l.logger.Infof("Decoding track %s from %s", trackID, path)
	samples, srcRate, srcChannels, err := decodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: track %s: %v", ErrDecode, trackID, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: track %s: no audio frames", ErrDecode, trackID)
	}

	samples = remixChannels(samples, srcChannels, l.channels)
	samples = resampleLinear(samples, l.channels, srcRate, l.sampleRate)

	track := &models.Track{
		ID:         trackID,
		Title:      trackID,
		Samples:    samples,
		SampleRate: l.sampleRate,
		Channels:   l.channels,
	}
	entry.track = track
	l.logger.Infof("Decoded track %s: %d frames at %d Hz, %d channel(s)",
		trackID, track.Frames(), track.SampleRate, track.Channels)
	return track, nil
}

// Unload drops the decoded audio for a track, forcing a re-decode on the
// next request. The file itself stays in the library index.
func (l *Library) Unload(trackID string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	delete(l.tracks, trackID)
}
