package session

// Prioritizer orders pending chunk work by proximity to the playback
// position. The chunk at the current position is priority 0, each one after
// it priority +1. It never schedules chunks behind the position; a backward
// seek re-anchors the whole window at the new position instead.
type Prioritizer struct {
	windowSize int
}

// NewPrioritizer creates a prioritizer with the given look-ahead window.
func NewPrioritizer(windowSize int) *Prioritizer {
	if windowSize < 1 {
		windowSize = 1
	}
	return &Prioritizer{windowSize: windowSize}
}

// WindowSize returns the look-ahead size.
func (p *Prioritizer) WindowSize() int {
	return p.windowSize
}

// Window returns the sequence indices worth pre-producing for a session at
// position within a track of chunkCount chunks, in strict priority order:
// [position, position+1, ...] clipped to the track end.
func (p *Prioritizer) Window(position, chunkCount int) []int {
	if position < 0 {
		position = 0
	}
	if position >= chunkCount {
		return nil
	}

	end := position + p.windowSize
	if end > chunkCount {
		end = chunkCount
	}

	window := make([]int, 0, end-position)
	for seq := position; seq < end; seq++ {
		window = append(window, seq)
	}
	return window
}
