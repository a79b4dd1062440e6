package memory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/theapemachine/longbow-go/pkg/errors"
	"github.com/theapemachine/longbow-go/pkg/wire"
)

// EmbeddingDim is the fixed embedding width (all-MiniLM-L6-v2 convention).
const EmbeddingDim = 384

// Reserved metadata keys. They are lifted into first-class Memory fields and
// rejected from the open metadata map at construction.
const (
	MetaContent   = "content"
	MetaClientID  = "client_id"
	MetaCreatedAt = "created_at"
)

// UnknownClient is the sentinel used when a record was uploaded without a
// client id.
const UnknownClient = "unknown"

// timestampLayout keeps fractional seconds fixed-width so that the
// lexicographic order of rendered timestamps equals their chronological
// order.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Memory is a single unit of stored knowledge. Embedding may be nil when the
// memory was reconstructed from a store that does not echo vectors.
type Memory struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
	CreatedAt time.Time
	ClientID  string
}

// New creates a memory with a fresh UUID and the current UTC time. The open
// metadata map must not redefine the reserved keys.
func New(content, clientID string, metadata map[string]string) (*Memory, error) {
	for _, key := range []string{MetaContent, MetaClientID, MetaCreatedAt} {
		if _, ok := metadata[key]; ok {
			return nil, errors.NewValidationError("metadata", fmt.Sprintf("%q is a reserved key", key))
		}
	}

	if metadata == nil {
		metadata = map[string]string{}
	}

	return &Memory{
		ID:        uuid.NewString(),
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
		ClientID:  clientID,
	}, nil
}

// wireRecord renders the memory into its on-wire shape: reserved fields are
// folded back into the opaque metadata cell.
func (m *Memory) wireRecord() wire.Record {
	meta := make(map[string]string, len(m.Metadata)+3)
	for key, value := range m.Metadata {
		meta[key] = value
	}
	meta[MetaContent] = m.Content
	meta[MetaClientID] = m.ClientID
	meta[MetaCreatedAt] = m.CreatedAt.Format(timestampLayout)

	return wire.Record{
		ID:        m.ID,
		Vector:    m.Embedding,
		Metadata:  meta,
		Timestamp: m.CreatedAt.Format(timestampLayout),
	}
}

// fromRow rebuilds a memory from a full downloaded record. Incomplete
// upload-time metadata never fails the read: created_at defaults to now and
// client_id to the unknown sentinel.
func fromRow(row wire.Row) Memory {
	meta := make(map[string]string, len(row.Metadata))
	for key, value := range row.Metadata {
		switch key {
		case MetaContent, MetaClientID, MetaCreatedAt:
		default:
			meta[key] = value
		}
	}

	createdAt := time.Now().UTC()
	if raw, ok := row.Metadata[MetaCreatedAt]; ok {
		if parsed, err := parseTimestamp(raw); err == nil {
			createdAt = parsed
		}
	}

	clientID := row.Metadata[MetaClientID]
	if clientID == "" {
		clientID = UnknownClient
	}

	return Memory{
		ID:        row.ID,
		Content:   row.Metadata[MetaContent],
		Embedding: row.Vector,
		Metadata:  meta,
		CreatedAt: createdAt,
		ClientID:  clientID,
	}
}

func parseTimestamp(raw string) (time.Time, error) {
	if parsed, err := time.Parse(timestampLayout, raw); err == nil {
		return parsed, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// SearchResult pairs a memory with its similarity score (higher is better).
type SearchResult struct {
	Memory Memory
	Score  float64
}

// Stats summarizes a namespace. Oldest and newest are rendered timestamps;
// empty when the namespace is empty.
type Stats struct {
	TotalMemories int
	UniqueClients int
	OldestMemory  string
	NewestMemory  string
	Backend       string
}
