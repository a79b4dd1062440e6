package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theapemachine/longbow-go/pkg/wire"
)

func TestMemoryWireRoundTrip(t *testing.T) {
	mem, err := New("remember this", "client-a", map[string]string{"topic": "tests"})
	require.NoError(t, err)
	mem.Embedding = mustEmbed(t, "remember this")

	record := mem.wireRecord()
	assert.Equal(t, "remember this", record.Metadata[MetaContent])
	assert.Equal(t, "client-a", record.Metadata[MetaClientID])
	assert.Equal(t, "tests", record.Metadata["topic"])
	assert.Equal(t, record.Metadata[MetaCreatedAt], record.Timestamp)

	back := fromRow(wire.Row{
		ID:        record.ID,
		Vector:    record.Vector,
		Metadata:  record.Metadata,
		Timestamp: record.Timestamp,
	})
	assert.Equal(t, mem.ID, back.ID)
	assert.Equal(t, mem.Content, back.Content)
	assert.Equal(t, mem.ClientID, back.ClientID)
	// Reserved keys never leak into the open metadata map.
	assert.Equal(t, map[string]string{"topic": "tests"}, back.Metadata)
	assert.True(t, back.CreatedAt.Equal(mem.CreatedAt.Truncate(time.Microsecond)))
}

func TestFromRowDefaults(t *testing.T) {
	before := time.Now().UTC()

	back := fromRow(wire.Row{
		ID:       "mem-0",
		Metadata: map[string]string{MetaContent: "bare"},
	})

	assert.Equal(t, UnknownClient, back.ClientID)
	assert.False(t, back.CreatedAt.Before(before))
}

func TestTimestampOrderMatchesTime(t *testing.T) {
	earlier := time.Date(2026, 8, 29, 9, 59, 59, 999999000, time.UTC).Format(timestampLayout)
	later := time.Date(2026, 8, 29, 10, 0, 0, 1000, time.UTC).Format(timestampLayout)

	assert.Less(t, earlier, later)
}

func TestParseTimestampAcceptsRFC3339(t *testing.T) {
	parsed, err := parseTimestamp("2026-08-29T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2026, parsed.Year())
}
