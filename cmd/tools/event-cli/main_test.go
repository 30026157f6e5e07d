package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-terrain/internal/eventbus"
	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/world/block"
)

func blockEvent(t *testing.T, source string) *eventbus.Envelope {
	t.Helper()
	payload, err := json.Marshal(eventbus.BlockChangePayload{
		Chunk:    vec.Vec3{X: 1, Y: 0, Z: 0},
		Index:    7,
		Position: vec.Vec3{X: 39, Y: 0, Z: 0},
		Block:    block.New(block.Sand),
	})
	require.NoError(t, err)
	return &eventbus.Envelope{
		ID:        "ev-1",
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Source:    source,
		EventType: eventbus.EventBlockChange,
		Payload:   payload,
	}
}

func TestFormatEvent(t *testing.T) {
	out := formatEvent(blockEvent(t, "node-a"))
	assert.Contains(t, out, "[03:04:05] node-a [BlockChange] ev-1")
	assert.Contains(t, out, "Block: (39,0,0) sand health=15")
}

func TestMatches(t *testing.T) {
	ev := blockEvent(t, "node-a")
	assert.True(t, matches(ev, eventbus.Filter{}))
	assert.True(t, matches(ev, eventbus.Filter{Types: []string{eventbus.EventWorldReady, eventbus.EventBlockChange}}))
	assert.False(t, matches(ev, eventbus.Filter{Types: []string{eventbus.EventWorldReady}}))
	assert.False(t, matches(ev, eventbus.Filter{Sources: []string{"node-b"}}))
}

func TestTypeCounter(t *testing.T) {
	tc := newTypeCounter()
	tc.add(blockEvent(t, "a"))
	tc.add(blockEvent(t, "b"))
	tc.add(&eventbus.Envelope{EventType: eventbus.EventWorldReady})

	out := tc.String()
	assert.Contains(t, out, "Total events: 3")
	assert.Contains(t, out, "BlockChange: 2 events")
	assert.Contains(t, out, "WorldReady: 1 events")
}

func TestParseHelpers(t *testing.T) {
	assert.Nil(t, parseStringList(""))
	assert.Equal(t, []string{"a", "b"}, parseStringList(" a, ,b "))

	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	got, err := parseSinceTime("30m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-30*time.Minute), got)

	got, err = parseSinceTime("2024-01-01T00:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, 2024, got.Year())

	_, err = parseSinceTime("вчера", now)
	assert.Error(t, err)
}
