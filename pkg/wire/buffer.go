/*
Package wire implements the columnar wire format spoken by the Longbow data
channel. A batch of records is encoded as parallel columns: a string column
each for id, metadata and timestamp, and a flat float32 buffer holding the
vectors back to back. Responses may additionally carry a score or distance
column. The codec is a pure transform; it performs no I/O.
*/
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	lberrors "github.com/theapemachine/longbow-go/pkg/errors"
)

const (
	// FrameMagic identifies columnar frames (ASCII: "LBW1").
	FrameMagic = 0x4C425731

	// FrameVersion is the current frame format version.
	FrameVersion uint32 = 1

	// headerSize is the size of the frame header in bytes.
	headerSize = 32

	// FlagHasVectors indicates the frame carries a vector column.
	FlagHasVectors uint32 = 1 << 0
	// FlagHasScores indicates the frame carries a score column (higher is better).
	FlagHasScores uint32 = 1 << 1
	// FlagHasDistances indicates the frame carries a distance column (lower is better).
	FlagHasDistances uint32 = 1 << 2
)

var (
	// ErrInvalidMagic is returned when a frame has an invalid magic number.
	ErrInvalidMagic = errors.New("wire: invalid magic number")

	// ErrUnsupportedVersion is returned when a frame has an unsupported version.
	ErrUnsupportedVersion = errors.New("wire: unsupported frame version")

	// ErrCorrupted is returned when a frame fails checksum validation.
	ErrCorrupted = errors.New("wire: frame corrupted (checksum mismatch)")

	// ErrTruncated is returned when a frame ends before all columns were read.
	ErrTruncated = errors.New("wire: truncated frame")

	// ErrVectorLength is returned when the vector section is not an exact
	// multiple of rows times the configured dimension. Such frames are
	// rejected rather than zero-padded.
	ErrVectorLength = errors.New("wire: vector section length mismatch")
)

// Record is the on-wire representation of a single memory. The metadata map
// includes the reserved keys (content, client_id, created_at) alongside any
// caller metadata; it is serialized to a single opaque string cell.
type Record struct {
	ID        string
	Vector    []float32
	Metadata  map[string]string
	Timestamp string
}

// Row is one decoded response row. Score and Distance are only meaningful
// when the owning buffer's HasScores/HasDistances report true.
type Row struct {
	ID        string
	Vector    []float32
	Metadata  map[string]string
	Timestamp string
	Score     float64
	Distance  float64
}

// Buffer holds a decoded or to-be-encoded columnar batch.
type Buffer struct {
	Dim        int
	IDs        []string
	Vectors    [][]float32
	Metadata   []string
	Timestamps []string
	Scores     []float64
	Distances  []float64
}

// Len returns the number of rows in the buffer.
func (b *Buffer) Len() int { return len(b.IDs) }

// HasVectors reports whether the buffer carries a vector column.
func (b *Buffer) HasVectors() bool { return b.Vectors != nil }

// HasScores reports whether the buffer carries a score column.
func (b *Buffer) HasScores() bool { return b.Scores != nil }

// HasDistances reports whether the buffer carries a distance column.
func (b *Buffer) HasDistances() bool { return b.Distances != nil }

// EncodeBatch builds a columnar buffer from records. Every vector must have
// exactly dim components; a mismatch is a local validation error and nothing
// is sent to the wire.
func EncodeBatch(records []Record, dim int) (*Buffer, error) {
	buf := &Buffer{
		Dim:        dim,
		IDs:        make([]string, 0, len(records)),
		Vectors:    make([][]float32, 0, len(records)),
		Metadata:   make([]string, 0, len(records)),
		Timestamps: make([]string, 0, len(records)),
	}

	for i, record := range records {
		if len(record.Vector) != dim {
			return nil, lberrors.NewValidationError(
				"vector",
				fmt.Sprintf("record %d has %d components, expected %d", i, len(record.Vector), dim),
			)
		}

		meta := record.Metadata
		if meta == nil {
			meta = map[string]string{}
		}

		cell, err := json.Marshal(meta)
		if err != nil {
			return nil, lberrors.NewValidationError("metadata", err.Error())
		}

		buf.IDs = append(buf.IDs, record.ID)
		buf.Vectors = append(buf.Vectors, record.Vector)
		buf.Metadata = append(buf.Metadata, string(cell))
		buf.Timestamps = append(buf.Timestamps, record.Timestamp)
	}

	return buf, nil
}

// Rows decodes the buffer into row values. An empty or missing metadata cell
// yields an empty map, never an error.
func (b *Buffer) Rows() []Row {
	rows := make([]Row, b.Len())

	for i := range rows {
		rows[i] = Row{
			ID:       b.IDs[i],
			Metadata: DecodeMetadata(cellAt(b.Metadata, i)),
		}
		if b.HasVectors() {
			rows[i].Vector = b.Vectors[i]
		}
		if i < len(b.Timestamps) {
			rows[i].Timestamp = b.Timestamps[i]
		}
		if b.HasScores() {
			rows[i].Score = b.Scores[i]
		}
		if b.HasDistances() {
			rows[i].Distance = b.Distances[i]
		}
	}

	return rows
}

// DecodeMetadata parses a metadata cell. Empty or malformed cells produce an
// empty map so that a bad upload never fails a read.
func DecodeMetadata(cell string) map[string]string {
	if cell == "" {
		return map[string]string{}
	}

	var meta map[string]string
	if err := json.Unmarshal([]byte(cell), &meta); err != nil || meta == nil {
		return map[string]string{}
	}

	return meta
}

func cellAt(column []string, i int) string {
	if i < len(column) {
		return column[i]
	}
	return ""
}

// Marshal serializes the buffer into a binary frame.
//
// Layout (all multi-byte fields little-endian): a 32-byte header (magic,
// version, flags, dimension, row count, CRC32 of the preceding bytes), then
// the id, metadata and timestamp string columns, then the optional vector,
// score and distance sections.
func (b *Buffer) Marshal() ([]byte, error) {
	flags := uint32(0)
	if b.HasVectors() {
		flags |= FlagHasVectors
	}
	if b.HasScores() {
		flags |= FlagHasScores
	}
	if b.HasDistances() {
		flags |= FlagHasDistances
	}

	rows := b.Len()
	out := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(out[0:4], FrameMagic)
	binary.LittleEndian.PutUint32(out[4:8], FrameVersion)
	binary.LittleEndian.PutUint32(out[8:12], flags)
	binary.LittleEndian.PutUint32(out[12:16], uint32(b.Dim))
	binary.LittleEndian.PutUint64(out[16:24], uint64(rows))
	binary.LittleEndian.PutUint32(out[24:28], crc32.ChecksumIEEE(out[:24]))
	// Bytes 28:32 stay reserved.

	out = appendStringColumn(out, b.IDs)
	out = appendStringColumn(out, padColumn(b.Metadata, rows))
	out = appendStringColumn(out, padColumn(b.Timestamps, rows))

	if b.HasVectors() {
		for i, vector := range b.Vectors {
			if len(vector) != b.Dim {
				return nil, lberrors.NewValidationError(
					"vector",
					fmt.Sprintf("row %d has %d components, expected %d", i, len(vector), b.Dim),
				)
			}
			for _, component := range vector {
				out = binary.LittleEndian.AppendUint32(out, math.Float32bits(component))
			}
		}
	}

	if b.HasScores() {
		out = appendFloat64Column(out, b.Scores)
	}
	if b.HasDistances() {
		out = appendFloat64Column(out, b.Distances)
	}

	return out, nil
}

// Unmarshal parses a binary frame back into a buffer. A vector section whose
// length does not match rows times dimension is rejected.
func Unmarshal(data []byte) (*Buffer, error) {
	if len(data) < headerSize {
		return nil, ErrTruncated
	}

	if binary.LittleEndian.Uint32(data[0:4]) != FrameMagic {
		return nil, ErrInvalidMagic
	}
	if binary.LittleEndian.Uint32(data[4:8]) > FrameVersion {
		return nil, ErrUnsupportedVersion
	}
	if binary.LittleEndian.Uint32(data[24:28]) != crc32.ChecksumIEEE(data[:24]) {
		return nil, ErrCorrupted
	}

	flags := binary.LittleEndian.Uint32(data[8:12])
	dim := int(binary.LittleEndian.Uint32(data[12:16]))
	rows := int(binary.LittleEndian.Uint64(data[16:24]))

	buf := &Buffer{Dim: dim}
	rest := data[headerSize:]

	var err error
	if buf.IDs, rest, err = readStringColumn(rest, rows); err != nil {
		return nil, err
	}
	if buf.Metadata, rest, err = readStringColumn(rest, rows); err != nil {
		return nil, err
	}
	if buf.Timestamps, rest, err = readStringColumn(rest, rows); err != nil {
		return nil, err
	}

	if flags&FlagHasVectors != 0 {
		want := rows * dim * 4
		if len(rest) < want {
			return nil, ErrVectorLength
		}
		buf.Vectors = make([][]float32, rows)
		for i := 0; i < rows; i++ {
			vector := make([]float32, dim)
			for j := 0; j < dim; j++ {
				bits := binary.LittleEndian.Uint32(rest[(i*dim+j)*4:])
				vector[j] = math.Float32frombits(bits)
			}
			buf.Vectors[i] = vector
		}
		rest = rest[want:]
	}

	if flags&FlagHasScores != 0 {
		if buf.Scores, rest, err = readFloat64Column(rest, rows); err != nil {
			return nil, err
		}
	}
	if flags&FlagHasDistances != 0 {
		if buf.Distances, rest, err = readFloat64Column(rest, rows); err != nil {
			return nil, err
		}
	}

	if len(rest) != 0 {
		return nil, ErrVectorLength
	}

	return buf, nil
}

func appendStringColumn(out []byte, column []string) []byte {
	for _, cell := range column {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(cell)))
		out = append(out, cell...)
	}
	return out
}

func readStringColumn(data []byte, rows int) ([]string, []byte, error) {
	column := make([]string, rows)
	for i := 0; i < rows; i++ {
		if len(data) < 4 {
			return nil, nil, ErrTruncated
		}
		length := int(binary.LittleEndian.Uint32(data[:4]))
		data = data[4:]
		if len(data) < length {
			return nil, nil, ErrTruncated
		}
		column[i] = string(data[:length])
		data = data[length:]
	}
	return column, data, nil
}

func appendFloat64Column(out []byte, column []float64) []byte {
	for _, value := range column {
		out = binary.LittleEndian.AppendUint64(out, math.Float64bits(value))
	}
	return out
}

func readFloat64Column(data []byte, rows int) ([]float64, []byte, error) {
	if len(data) < rows*8 {
		return nil, nil, ErrTruncated
	}
	column := make([]float64, rows)
	for i := 0; i < rows; i++ {
		column[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return column, data[rows*8:], nil
}

func padColumn(column []string, rows int) []string {
	if len(column) >= rows {
		return column[:rows]
	}
	padded := make([]string, rows)
	copy(padded, column)
	return padded
}
