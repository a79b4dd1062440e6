package memory

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/theapemachine/longbow-go/pkg/errors"
	"github.com/theapemachine/longbow-go/pkg/transport"
)

// DefaultPredicate labels edges created without an explicit predicate.
const DefaultPredicate = "related_to"

// nodeIDMask keeps node ids inside [0, 2^53), matching the store's native
// integer id space.
const nodeIDMask = (1 << 53) - 1

// NodeID maps a memory UUID to the store's integer node-id space with
// FNV-1a. The mapping is a pure function (stable across restarts) but not
// collision-free: two UUIDs may alias to one node id, an accepted
// bounded-probability risk.
func NodeID(memoryID string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(memoryID))
	return int64(hasher.Sum64() & nodeIDMask)
}

// Graph stores directed weighted edges between memories and traverses them.
// The write path takes memory UUIDs; traversal results come back in the
// store's native node-id space and are NOT mapped back to UUIDs.
type Graph struct {
	client    Transport
	namespace string
}

// NewGraph creates a graph layer over the given transport and namespace.
func NewGraph(client Transport, namespace string) *Graph {
	return &Graph{client: client, namespace: namespace}
}

// AddEdge inserts a directed edge from source to target. An empty predicate
// defaults to "related_to"; a negative weight is a validation error.
func (g *Graph) AddEdge(ctx context.Context, sourceID, targetID, predicate string, weight float64) error {
	if weight < 0 {
		return errors.NewValidationError("weight", fmt.Sprintf("must be non-negative, got %g", weight))
	}
	if predicate == "" {
		predicate = DefaultPredicate
	}

	return g.client.AddEdge(ctx, transport.AddEdgePayload{
		Namespace: g.namespace,
		Subject:   NodeID(sourceID),
		Predicate: predicate,
		Object:    NodeID(targetID),
		Weight:    weight,
	})
}

// TraverseOptions bound a graph walk. Decay is a per-hop multiplicative
// attenuation in [0,1] (0 disables it); with Weighted false every edge
// contributes equally regardless of its stored weight.
type TraverseOptions struct {
	MaxHops  int
	Incoming bool
	Decay    float64
	Weighted bool
}

// Traverse walks the graph breadth-first from the given memory. The store
// performs the walk; this layer only shapes the request and passes the node
// results through, still keyed by native node ids.
func (g *Graph) Traverse(ctx context.Context, startID string, opts TraverseOptions) ([]transport.NodeResult, error) {
	if opts.Decay < 0 || opts.Decay > 1 {
		return nil, errors.NewValidationError("decay", fmt.Sprintf("must be in [0,1], got %g", opts.Decay))
	}

	return g.client.Traverse(ctx, transport.TraversePayload{
		Namespace: g.namespace,
		Start:     NodeID(startID),
		MaxHops:   opts.MaxHops,
		Incoming:  opts.Incoming,
		Decay:     opts.Decay,
		Weighted:  opts.Weighted,
	})
}
