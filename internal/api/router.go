package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"masterd/internal/catalog"
	"masterd/internal/logger"
	"masterd/internal/models"
	"masterd/internal/session"
)

// API exposes the delivery surface: session control, chunk delivery, stream
// metadata, and cache stats.
type API struct {
	sessionMgr    *session.Manager
	producer      *session.Producer
	defaultPreset models.Philosophy
	logger        logger.Logger
}

// New builds the HTTP handler.
func New(sessionMgr *session.Manager, producer *session.Producer,
	defaultPreset models.Philosophy, log logger.Logger) http.Handler {
	a := &API{
		sessionMgr:    sessionMgr,
		producer:      producer,
		defaultPreset: defaultPreset,
		logger:        log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", a.handleStartSession)
	mux.HandleFunc("POST /sessions/{sessionId}/seek", a.handleSeek)
	mux.HandleFunc("POST /sessions/{sessionId}/pause", a.handlePause)
	mux.HandleFunc("POST /sessions/{sessionId}/resume", a.handleResume)
	mux.HandleFunc("DELETE /sessions/{sessionId}", a.handleStopSession)
	mux.HandleFunc("GET /sessions/{sessionId}/chunks/{sequence}", a.handleChunk)
	mux.HandleFunc("GET /tracks/{trackId}/metadata", a.handleMetadata)
	mux.HandleFunc("GET /stats/cache", a.handleCacheStats)

	return mux
}

type startSessionRequest struct {
	TrackID string `json:"trackId"`
	Preset  string `json:"preset"`
}

type startSessionResponse struct {
	SessionID  string `json:"sessionId"`
	ChunkCount int    `json:"chunkCount"`
}

func (a *API) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.TrackID == "" {
		http.Error(w, "trackId is required", http.StatusBadRequest)
		return
	}

	preset := a.defaultPreset
	if req.Preset != "" {
		preset = models.Philosophy(req.Preset)
	}

	sess, err := a.sessionMgr.StartSession(r.Context(), req.TrackID, preset)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, catalog.ErrTrackNotFound):
			status = http.StatusNotFound
		case errors.Is(err, catalog.ErrDecode):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, session.ErrTimeout):
			status = http.StatusGatewayTimeout
		}
		http.Error(w, fmt.Sprintf("Failed to start session: %v", err), status)
		return
	}

	meta, err := a.producer.Metadata(req.TrackID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read stream metadata: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, startSessionResponse{SessionID: sess.ID, ChunkCount: meta.ChunkCount})
}

type seekRequest struct {
	Position int `json:"position"`
}

func (a *API) handleSeek(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}

	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if err := sess.Seek(req.Position); err != nil {
		http.Error(w, fmt.Sprintf("Seek failed: %v", err), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePause(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	sess.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleResume(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	sess.Resume()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if err := a.sessionMgr.StopSession(sessionID); err != nil {
		http.Error(w, fmt.Sprintf("Stop failed: %v", err), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleChunk(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}

	sequence, err := strconv.Atoi(r.PathValue("sequence"))
	if err != nil {
		http.Error(w, "Invalid sequence index", http.StatusBadRequest)
		return
	}

	chunk, err := sess.Chunk(r.Context(), sequence)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, session.ErrTimeout):
			status = http.StatusGatewayTimeout
		case errors.Is(err, session.ErrSessionNotFound):
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("Chunk request failed: %v", err), status)
		return
	}

	w.Header().Set("Content-Type", "audio/opus")
	w.Header().Set("X-Chunk-Duration", chunk.Duration.String())
	w.Write(chunk.Payload)
}

func (a *API) handleMetadata(w http.ResponseWriter, r *http.Request) {
	trackID := r.PathValue("trackId")
	meta, err := a.producer.Metadata(trackID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, catalog.ErrTrackNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("Metadata lookup failed: %v", err), status)
		return
	}
	writeJSON(w, meta)
}

func (a *API) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.producer.CacheStats())
}

func (a *API) session(w http.ResponseWriter, r *http.Request) (*session.StreamSession, bool) {
	sess, err := a.sessionMgr.Get(r.PathValue("sessionId"))
	if err != nil {
		http.Error(w, fmt.Sprintf("Unknown session: %v", err), http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
