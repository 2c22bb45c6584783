package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"masterd/internal/events"
	"masterd/internal/logger"
	"masterd/internal/models"
)

// ErrTimeout marks a chunk request that could not be satisfied within the
// configured bound. It is reported to the caller, never silently retried.
var ErrTimeout = errors.New("chunk request timed out")

// ErrSessionNotFound marks an unknown or already stopped session id.
var ErrSessionNotFound = errors.New("session not found")

// State is the lifecycle of a playback session.
type State int

const (
	StateStarting State = iota
	StateBuffering
	StatePlaying
	StateSeeking
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StateSeeking:
		return "seeking"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// StreamSession coordinates one playback of one track: it serves chunk
// requests in priority order, warms the look-ahead window, and emits status
// events. Session state is guarded by its own mutex; chunk production is
// shared infrastructure owned by the Producer.
type StreamSession struct {
	ID      string
	TrackID string
	Preset  models.Philosophy

	producer    *Producer
	prioritizer *Prioritizer
	events      events.Publisher
	logger      logger.Logger
	timeout     time.Duration

	mutex      sync.Mutex
	state      State
	position   int
	chunkCount int

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
}

// State returns the session's current lifecycle state.
func (s *StreamSession) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Position returns the current playback position as a chunk index.
func (s *StreamSession) Position() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.position
}

// Chunk serves the processed chunk at the given sequence, advancing the
// playback position and re-anchoring the prefetch window. The wait is
// bounded by the session's request timeout.
func (s *StreamSession) Chunk(ctx context.Context, sequence int) (*models.Chunk, error) {
	s.mutex.Lock()
	if s.state == StateStopped {
		s.mutex.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, s.ID)
	}
	if sequence < 0 || sequence >= s.chunkCount {
		count := s.chunkCount
		s.mutex.Unlock()
		return nil, fmt.Errorf("sequence %d out of range, track has %d chunks", sequence, count)
	}
	s.position = sequence
	s.state = StatePlaying
	s.mutex.Unlock()

	s.nudge()

	waitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	chunk, err := s.producer.GetChunk(waitCtx, s.ID, s.TrackID, sequence, models.KindProcessed, s.Preset)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s/%d after %v", ErrTimeout, s.TrackID, sequence, s.timeout)
	}
	return chunk, err
}

// Seek re-anchors the priority window at the new position. Work already in
// flight for the old window is neither canceled nor waited on; it completes
// and lands in cache.
func (s *StreamSession) Seek(position int) error {
	s.mutex.Lock()
	if s.state == StateStopped {
		s.mutex.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, s.ID)
	}
	if position < 0 || position >= s.chunkCount {
		count := s.chunkCount
		s.mutex.Unlock()
		return fmt.Errorf("seek position %d out of range, track has %d chunks", position, count)
	}
	s.state = StateSeeking
	s.position = position
	s.mutex.Unlock()

	s.logger.Infof("Session %s seeking to chunk %d", s.ID, position)
	s.nudge()
	return nil
}

// Pause marks the session paused. The prefetch window stays warm.
func (s *StreamSession) Pause() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state == StatePlaying || s.state == StateSeeking || s.state == StateBuffering {
		s.state = StatePaused
	}
}

// Resume returns a paused session to playing.
func (s *StreamSession) Resume() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state == StatePaused {
		s.state = StatePlaying
	}
}

// stop releases the priority window immediately. In-flight production keeps
// running on the shared pool: cache reuse outweighs cancellation savings.
func (s *StreamSession) stop() {
	s.mutex.Lock()
	already := s.state == StateStopped
	s.state = StateStopped
	s.mutex.Unlock()
	if !already {
		s.cancel()
	}
}

// nudge wakes the prefetch loop without blocking.
func (s *StreamSession) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// prefetchLoop keeps the look-ahead window warm. It re-reads the anchor on
// every pass, so seeks re-anchor naturally and chunks behind the position
// are never scheduled.
func (s *StreamSession) prefetchLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debugf("Prefetch loop for session %s stopped", s.ID)
			return
		case <-s.wake:
		case <-ticker.C:
		}

		s.mutex.Lock()
		state := s.state
		position := s.position
		count := s.chunkCount
		s.mutex.Unlock()

		if state == StateStopped {
			return
		}
		if state == StatePaused {
			continue
		}

		for _, seq := range s.prioritizer.Window(position, count) {
			s.producer.Prefetch(s.ID, s.TrackID, seq, models.KindProcessed, s.Preset)
		}

		s.events.Publish(models.Event{
			SessionID: s.ID,
			Type:      models.EventCacheStats,
			Payload:   map[string]any{"stats": s.producer.CacheStats()},
		})
	}
}

// Manager owns all active stream sessions and the shared production
// pipeline. Unrelated sessions never share a lock beyond the brief registry
// and cache bookkeeping sections.
type Manager struct {
	producer    *Producer
	prioritizer *Prioritizer
	events      events.Publisher
	logger      logger.Logger
	timeout     time.Duration

	mutex    sync.RWMutex
	sessions map[string]*StreamSession
}

// NewManager creates a session manager over the given producer.
func NewManager(producer *Producer, windowSize int, timeout time.Duration,
	pub events.Publisher, log logger.Logger) *Manager {
	return &Manager{
		producer:    producer,
		prioritizer: NewPrioritizer(windowSize),
		events:      pub,
		logger:      log,
		timeout:     timeout,
		sessions:    make(map[string]*StreamSession),
	}
}

// StartSession begins playback of a track. Chunk 0 is produced synchronously
// so the first chunk is ready with bounded latency; the rest of the window
// warms asynchronously.
func (m *Manager) StartSession(ctx context.Context, trackID string, preset models.Philosophy) (*StreamSession, error) {
	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &StreamSession{
		ID:          uuid.NewString(),
		TrackID:     trackID,
		Preset:      preset,
		producer:    m.producer,
		prioritizer: m.prioritizer,
		events:      m.events,
		logger:      m.logger,
		timeout:     m.timeout,
		state:       StateStarting,
		ctx:         sessionCtx,
		cancel:      cancel,
		wake:        make(chan struct{}, 1),
	}

	meta, err := m.producer.Metadata(trackID)
	if err != nil {
		cancel()
		return nil, err
	}
	s.chunkCount = meta.ChunkCount

	s.mutex.Lock()
	s.state = StateBuffering
	s.mutex.Unlock()

	waitCtx, waitCancel := context.WithTimeout(ctx, m.timeout)
	defer waitCancel()
	if _, err := m.producer.GetChunk(waitCtx, s.ID, trackID, 0, models.KindProcessed, preset); err != nil {
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: first chunk of %s after %v", ErrTimeout, trackID, m.timeout)
		}
		return nil, err
	}

	s.mutex.Lock()
	s.state = StatePlaying
	s.mutex.Unlock()

	m.mutex.Lock()
	m.sessions[s.ID] = s
	m.mutex.Unlock()

	go s.prefetchLoop()
	s.nudge()

	m.logger.Infof("Started session %s for track %s (preset %s, %d chunks)",
		s.ID, trackID, preset, s.chunkCount)
	return s, nil
}

// Get returns an active session by id.
func (m *Manager) Get(sessionID string) (*StreamSession, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// StopSession destroys a session. If no other session is playing the same
// track, the track's analysis state is evicted as well.
func (m *Manager) StopSession(sessionID string) error {
	m.mutex.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	trackInUse := false
	if ok {
		for _, other := range m.sessions {
			if other.TrackID == s.TrackID {
				trackInUse = true
				break
			}
		}
	}
	m.mutex.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	s.stop()
	if !trackInUse {
		m.producer.UnloadTrack(s.TrackID)
		m.logger.Infof("Unloaded track %s after last session stopped", s.TrackID)
	}
	m.logger.Infof("Stopped session %s", sessionID)
	return nil
}

// Stop shuts down all sessions and the production pipeline.
func (m *Manager) Stop() {
	m.mutex.Lock()
	sessions := make([]*StreamSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*StreamSession)
	m.mutex.Unlock()

	for _, s := range sessions {
		s.stop()
	}
	m.producer.Stop()
	m.logger.Infof("Session manager stopped")
}
