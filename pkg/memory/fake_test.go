package memory

import (
	"context"
	"sort"
	"strconv"

	"github.com/theapemachine/longbow-go/pkg/transport"
	"github.com/theapemachine/longbow-go/pkg/wire"
)

// fakeTransport is an in-process stand-in for the remote store. It keeps
// uploaded records in order, answers queries by brute-force dot product and
// can be wired to fail individual operations.
type fakeTransport struct {
	dim     int
	records []wire.Record

	connectErr  error
	queryErr    error
	createErr   error
	downloadErr error
	infoErr     error
	info        *transport.NamespaceInfo

	// positionalIDs makes query responses identify rows by their download
	// ordinal instead of the stored id.
	positionalIDs bool

	// lastQuery records the options of the most recent Query call.
	lastQuery transport.QueryOptions

	edges        []transport.AddEdgePayload
	snapshots    int
	connectCalls int
	ensured      []string
	deletes      int
	creates      int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{dim: EmbeddingDim}
}

// seed appends a record directly, bypassing the upload path.
func (f *fakeTransport) seed(id, content, clientID, createdAt string, vector []float32) {
	f.records = append(f.records, wire.Record{
		ID:     id,
		Vector: vector,
		Metadata: map[string]string{
			MetaContent:   content,
			MetaClientID:  clientID,
			MetaCreatedAt: createdAt,
		},
		Timestamp: createdAt,
	})
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.connectCalls++
	return f.connectErr
}

func (f *fakeTransport) EnsureNamespace(ctx context.Context, name string) error {
	f.ensured = append(f.ensured, name)
	return nil
}

func (f *fakeTransport) Upload(ctx context.Context, namespace string, buf *wire.Buffer) error {
	for _, row := range buf.Rows() {
		f.records = append(f.records, wire.Record{
			ID:        row.ID,
			Vector:    row.Vector,
			Metadata:  row.Metadata,
			Timestamp: row.Timestamp,
		})
	}
	return nil
}

func (f *fakeTransport) Query(ctx context.Context, namespace string, vector []float32, opts transport.QueryOptions) (*wire.Buffer, error) {
	f.lastQuery = opts
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	if opts.SeedID != "" {
		vector = nil
		for _, record := range f.records {
			if record.ID == opts.SeedID {
				vector = record.Vector
				break
			}
		}
		if vector == nil {
			return &wire.Buffer{Dim: f.dim}, nil
		}
	}

	type scored struct {
		position int
		score    float64
	}
	ranked := make([]scored, 0, len(f.records))
	for position, record := range f.records {
		var dot float64
		for i := range vector {
			dot += float64(vector[i]) * float64(record.Vector[i])
		}
		ranked = append(ranked, scored{position: position, score: dot})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if opts.K > 0 && opts.K < len(ranked) {
		ranked = ranked[:opts.K]
	}

	out := &wire.Buffer{Dim: f.dim, Scores: []float64{}}
	for _, hit := range ranked {
		id := f.records[hit.position].ID
		if f.positionalIDs {
			id = strconv.Itoa(hit.position)
		}
		out.IDs = append(out.IDs, id)
		out.Metadata = append(out.Metadata, "")
		out.Timestamps = append(out.Timestamps, "")
		out.Scores = append(out.Scores, hit.score)
	}
	return out, nil
}

func (f *fakeTransport) DownloadAll(ctx context.Context, namespace string) (*wire.Buffer, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return wire.EncodeBatch(f.records, f.dim)
}

func (f *fakeTransport) CreateNamespace(ctx context.Context, name string, overwrite bool) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.creates++
	return nil
}

func (f *fakeTransport) DeleteNamespace(ctx context.Context, name string) error {
	f.records = nil
	f.deletes++
	return nil
}

func (f *fakeTransport) Info(ctx context.Context, name string) (*transport.NamespaceInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if f.info != nil {
		return f.info, nil
	}
	return &transport.NamespaceInfo{TotalRecords: -1, TotalBytes: -1}, nil
}

func (f *fakeTransport) Snapshot(ctx context.Context) error {
	f.snapshots++
	return nil
}

func (f *fakeTransport) AddEdge(ctx context.Context, payload transport.AddEdgePayload) error {
	f.edges = append(f.edges, payload)
	return nil
}

// Traverse walks one hop over the recorded edges, enough to exercise the
// request shaping above it.
func (f *fakeTransport) Traverse(ctx context.Context, payload transport.TraversePayload) ([]transport.NodeResult, error) {
	var results []transport.NodeResult
	for _, edge := range f.edges {
		switch {
		case !payload.Incoming && edge.Subject == payload.Start:
			results = append(results, transport.NodeResult{Node: edge.Object, Score: edge.Weight, Hops: 1})
		case payload.Incoming && edge.Object == payload.Start:
			results = append(results, transport.NodeResult{Node: edge.Subject, Score: edge.Weight, Hops: 1})
		}
	}
	return results, nil
}
