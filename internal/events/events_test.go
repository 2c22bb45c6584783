package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"masterd/internal/logger"
	"masterd/internal/models"
)

func TestBus_PublishAndDrain(t *testing.T) {
	b := NewBus(8, logger.Nop{})

	b.Publish(models.Event{SessionID: "s1", Type: models.EventChunkReady})
	b.Publish(models.Event{SessionID: "s1", Type: models.EventCacheStats})

	ev := <-b.Events()
	assert.Equal(t, models.EventChunkReady, ev.Type)
	ev = <-b.Events()
	assert.Equal(t, models.EventCacheStats, ev.Type)
	assert.Zero(t, b.Dropped())
}

func TestBus_DropsOnOverflow(t *testing.T) {
	b := NewBus(2, logger.Nop{})

	for i := 0; i < 5; i++ {
		b.Publish(models.Event{Type: models.EventChunkReady})
	}

	assert.Equal(t, int64(3), b.Dropped(), "publish never blocks, it drops")

	// The buffered events are intact.
	require.Len(t, b.Events(), 2)
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	b := NewBus(4, logger.Nop{})
	b.Publish(models.Event{Type: models.EventChunkReady})

	b.Close()
	b.Close()

	// Publishing after close is a silent no-op.
	b.Publish(models.Event{Type: models.EventChunkFailed})

	// The channel still drains buffered events, then reports closed.
	ev, ok := <-b.Events()
	assert.True(t, ok)
	assert.Equal(t, models.EventChunkReady, ev.Type)
	_, ok = <-b.Events()
	assert.False(t, ok)
}

func TestBus_DefaultBuffer(t *testing.T) {
	b := NewBus(0, logger.Nop{})
	for i := 0; i < 64; i++ {
		b.Publish(models.Event{Type: models.EventCacheStats})
	}
	assert.Zero(t, b.Dropped())
}
