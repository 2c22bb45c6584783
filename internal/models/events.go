package models

// EventType enumerates the status events the core publishes. Delivery is
// best-effort and observational only; nothing gates on an event landing.
type EventType string

const (
	EventProcessingStarted EventType = "processingStarted"
	EventChunkReady        EventType = "chunkReady"
	EventChunkFailed       EventType = "chunkFailed"
	EventCacheStats        EventType = "cacheStats"
)

// Event is a single status notification for an external observer.
type Event struct {
	SessionID string         `json:"sessionId,omitempty"`
	Type      EventType      `json:"event"`
	Payload   map[string]any `json:"payload,omitempty"`
}
