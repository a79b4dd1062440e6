package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lberrors "github.com/theapemachine/longbow-go/pkg/errors"
)

func testVector(dim int, seed float32) []float32 {
	vector := make([]float32, dim)
	for i := range vector {
		vector[i] = seed + float32(i)*0.25
	}
	return vector
}

func TestEncodeBatchRoundTrip(t *testing.T) {
	records := []Record{
		{
			ID:     "a3f1c9d2-0000-4000-8000-000000000001",
			Vector: testVector(384, 0.5),
			Metadata: map[string]string{
				"content":    "the sky is blue",
				"client_id":  "c1",
				"created_at": "2026-08-29T10:00:00.000000Z",
				"topic":      "weather",
			},
			Timestamp: "2026-08-29T10:00:00.000000Z",
		},
		{
			ID:        "a3f1c9d2-0000-4000-8000-000000000002",
			Vector:    testVector(384, -1.25),
			Metadata:  nil,
			Timestamp: "2026-08-29T11:00:00.000000Z",
		},
	}

	buf, err := EncodeBatch(records, 384)
	require.NoError(t, err)

	frame, err := buf.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(frame)
	require.NoError(t, err)

	require.Equal(t, 2, decoded.Len())
	assert.Equal(t, 384, decoded.Dim)
	assert.True(t, decoded.HasVectors())
	assert.False(t, decoded.HasScores())

	rows := decoded.Rows()
	assert.Equal(t, records[0].ID, rows[0].ID)
	assert.Equal(t, records[0].Vector, rows[0].Vector)
	assert.Equal(t, records[0].Metadata, rows[0].Metadata)
	assert.Equal(t, records[0].Timestamp, rows[0].Timestamp)

	// A nil metadata map encodes to an empty cell that decodes to an empty map.
	assert.Equal(t, map[string]string{}, rows[1].Metadata)
	assert.Equal(t, records[1].Vector, rows[1].Vector)
}

func TestEncodeBatchDimensionMismatch(t *testing.T) {
	records := []Record{{ID: "x", Vector: testVector(100, 0)}}

	_, err := EncodeBatch(records, 384)
	require.Error(t, err)

	var validation *lberrors.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestScoreAndDistanceColumns(t *testing.T) {
	buf := &Buffer{
		Dim:        4,
		IDs:        []string{"0", "1"},
		Metadata:   []string{"", ""},
		Timestamps: []string{"", ""},
		Distances:  []float64{0.0, 3.0},
	}

	frame, err := buf.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(frame)
	require.NoError(t, err)

	require.True(t, decoded.HasDistances())
	assert.False(t, decoded.HasScores())
	assert.False(t, decoded.HasVectors())

	rows := decoded.Rows()
	assert.Equal(t, 0.0, rows[0].Distance)
	assert.Equal(t, 3.0, rows[1].Distance)
}

func TestUnmarshalRejectsBadMagic(t *testing.T) {
	buf, err := EncodeBatch([]Record{{ID: "a", Vector: testVector(4, 1)}}, 4)
	require.NoError(t, err)

	frame, err := buf.Marshal()
	require.NoError(t, err)

	frame[0] ^= 0xFF
	_, err = Unmarshal(frame)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestUnmarshalRejectsCorruptedHeader(t *testing.T) {
	buf, err := EncodeBatch([]Record{{ID: "a", Vector: testVector(4, 1)}}, 4)
	require.NoError(t, err)

	frame, err := buf.Marshal()
	require.NoError(t, err)

	// Flip the row count without fixing the checksum.
	binary.LittleEndian.PutUint64(frame[16:24], 99)
	_, err = Unmarshal(frame)
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestUnmarshalRejectsShortVectorSection(t *testing.T) {
	buf, err := EncodeBatch([]Record{{ID: "a", Vector: testVector(4, 1)}}, 4)
	require.NoError(t, err)

	frame, err := buf.Marshal()
	require.NoError(t, err)

	// Drop half of the vector section: no zero-padding, the frame is rejected.
	_, err = Unmarshal(frame[:len(frame)-8])
	assert.ErrorIs(t, err, ErrVectorLength)
}

func TestUnmarshalRejectsTruncatedStringColumn(t *testing.T) {
	buf, err := EncodeBatch([]Record{{ID: "abcdef", Vector: testVector(4, 1)}}, 4)
	require.NoError(t, err)

	frame, err := buf.Marshal()
	require.NoError(t, err)

	_, err = Unmarshal(frame[:36])
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeMetadataTolerance(t *testing.T) {
	assert.Equal(t, map[string]string{}, DecodeMetadata(""))
	assert.Equal(t, map[string]string{}, DecodeMetadata("not json"))
	assert.Equal(t, map[string]string{}, DecodeMetadata("null"))
	assert.Equal(t, map[string]string{"a": "b"}, DecodeMetadata(`{"a":"b"}`))
}
