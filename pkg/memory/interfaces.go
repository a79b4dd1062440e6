package memory

import (
	"context"

	"github.com/theapemachine/longbow-go/pkg/transport"
	"github.com/theapemachine/longbow-go/pkg/wire"
)

// Embedder turns text into a fixed-width vector. Implementations must be
// deterministic for the same input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Transport is the slice of the Longbow client used by the memory engine.
// *transport.Client implements it; tests substitute fakes.
type Transport interface {
	Connect(ctx context.Context) error
	EnsureNamespace(ctx context.Context, name string) error
	Upload(ctx context.Context, namespace string, buf *wire.Buffer) error
	Query(ctx context.Context, namespace string, vector []float32, opts transport.QueryOptions) (*wire.Buffer, error)
	DownloadAll(ctx context.Context, namespace string) (*wire.Buffer, error)
	CreateNamespace(ctx context.Context, name string, overwrite bool) error
	DeleteNamespace(ctx context.Context, name string) error
	Info(ctx context.Context, name string) (*transport.NamespaceInfo, error)
	Snapshot(ctx context.Context) error
	AddEdge(ctx context.Context, payload transport.AddEdgePayload) error
	Traverse(ctx context.Context, payload transport.TraversePayload) ([]transport.NodeResult, error)
}
