package memory

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/longbow-go/pkg/errors"
	"github.com/theapemachine/longbow-go/pkg/transport"
	"github.com/theapemachine/longbow-go/pkg/wire"
)

// BackendName identifies the remote store in stats output.
const BackendName = "longbow"

// DefaultNamespace is the dataset used when none is configured.
const DefaultNamespace = "memories"

// Store is the memory engine facade. It owns the embedder and transport
// explicitly (no package-level singleton) and initializes both lazily under
// a one-time guard: the first call pays the connect cost, later calls reuse
// the shared state.
type Store struct {
	Namespace string

	client     Transport
	embedder   Embedder
	reconciler *Reconciler
	graph      *Graph

	initOnce sync.Once
	initErr  error
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithNamespace overrides the dataset name.
func WithNamespace(namespace string) StoreOption {
	return func(s *Store) { s.Namespace = namespace }
}

// WithEmbedder injects an embedder. Without it the store picks the OpenAI
// embedder when OPENAI_API_KEY is set and the offline mock otherwise.
func WithEmbedder(embedder Embedder) StoreOption {
	return func(s *Store) { s.embedder = embedder }
}

// WithTransport injects a transport, mostly for tests.
func WithTransport(client Transport) StoreOption {
	return func(s *Store) { s.client = client }
}

// NewStore creates a memory store talking to the given Longbow endpoints.
// Nothing connects until the first operation.
func NewStore(dataURL, controlURL string, options ...StoreOption) *Store {
	store := &Store{Namespace: DefaultNamespace}

	for _, option := range options {
		option(store)
	}

	if store.client == nil {
		store.client = transport.New(dataURL, controlURL)
	}

	store.reconciler = NewReconciler(store.client)
	store.graph = NewGraph(store.client, store.Namespace)

	return store
}

// init connects the transport, ensures the namespace exists and picks an
// embedder. Runs at most once; a failure is sticky and fatal for the caller,
// since it means the remote store never became reachable.
func (s *Store) init(ctx context.Context) error {
	s.initOnce.Do(func() {
		if s.embedder == nil {
			if os.Getenv("OPENAI_API_KEY") != "" {
				s.embedder = NewOpenAIEmbedder()
			} else {
				log.Warn("OPENAI_API_KEY not set, falling back to the offline mock embedder")
				s.embedder = NewMockEmbedder(EmbeddingDim)
			}
		}

		if s.initErr = s.client.Connect(ctx); s.initErr != nil {
			return
		}

		s.initErr = s.client.EnsureNamespace(ctx, s.Namespace)
	})

	return s.initErr
}

// AddMemory embeds content and uploads a new memory. The returned memory is
// the client-side construction; nothing is round-tripped from the server.
func (s *Store) AddMemory(ctx context.Context, content, clientID string, metadata map[string]string) (*Memory, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}

	mem, err := New(content, clientID, metadata)
	if err != nil {
		return nil, err
	}

	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(embedding) != EmbeddingDim {
		return nil, errors.NewValidationError(
			"embedding",
			fmt.Sprintf("embedder produced %d components, expected %d", len(embedding), EmbeddingDim),
		)
	}
	mem.Embedding = embedding

	buf, err := wire.EncodeBatch([]wire.Record{mem.wireRecord()}, EmbeddingDim)
	if err != nil {
		return nil, err
	}

	if err := s.client.Upload(ctx, s.Namespace, buf); err != nil {
		return nil, err
	}

	return mem, nil
}

// Search runs plain vector similarity search.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	return s.search(ctx, query, transport.QueryOptions{K: topK})
}

// HybridSearch blends vector similarity and text matching by alpha.
func (s *Store) HybridSearch(ctx context.Context, query string, topK int, alpha float64) ([]SearchResult, error) {
	return s.search(ctx, query, transport.QueryOptions{K: topK, Alpha: &alpha, TextQuery: query})
}

// FilteredSearch runs vector search constrained by metadata predicates.
func (s *Store) FilteredSearch(ctx context.Context, query string, topK int, filters []transport.Predicate) ([]SearchResult, error) {
	return s.search(ctx, query, transport.QueryOptions{K: topK, Filters: filters})
}

func (s *Store) search(ctx context.Context, query string, opts transport.QueryOptions) ([]SearchResult, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	queried, err := s.client.Query(ctx, s.Namespace, embedding, opts)
	if err != nil {
		return s.degrade(err)
	}

	return s.reconciler.Reconcile(ctx, queried, s.Namespace)
}

// SearchByID finds memories similar to an existing memory, seeded by its id
// instead of a query vector.
func (s *Store) SearchByID(ctx context.Context, memoryID string, topK int) ([]SearchResult, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}

	queried, err := s.client.Query(ctx, s.Namespace, nil, transport.QueryOptions{K: topK, SeedID: memoryID})
	if err != nil {
		return s.degrade(err)
	}

	return s.reconciler.Reconcile(ctx, queried, s.Namespace)
}

// degrade turns a remote query failure into an empty result list so one bad
// query never takes down a long-lived caller. Anything that is not a query
// error still propagates.
func (s *Store) degrade(err error) ([]SearchResult, error) {
	var queryErr *errors.QueryError
	if stderrors.As(err, &queryErr) {
		log.Error("search failed", "namespace", s.Namespace, "err", err)
		return []SearchResult{}, nil
	}
	return nil, err
}

// ListMemories pages through all memories sorted by creation time, newest
// first. The page is the slice [offset, offset+limit), so a non-positive
// limit yields an empty page. The returned total is the full namespace count
// before slicing.
func (s *Store) ListMemories(ctx context.Context, limit, offset int) ([]Memory, int, error) {
	if err := s.init(ctx); err != nil {
		return nil, 0, err
	}

	rows, err := s.downloadRows(ctx)
	if err != nil {
		return nil, 0, err
	}
	total := len(rows)

	// Rendered timestamps are fixed-width ISO-8601, so lexicographic order
	// equals chronological order.
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Metadata[MetaCreatedAt] > rows[j].Metadata[MetaCreatedAt]
	})

	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	if limit < 0 {
		limit = 0
	}
	end := offset + limit
	if end > total {
		end = total
	}

	memories := make([]Memory, 0, end-offset)
	for _, row := range rows[offset:end] {
		memories = append(memories, fromRow(row))
	}

	return memories, total, nil
}

// DeleteAll wipes the namespace by deleting and recreating it, returning the
// pre-deletion count. The two steps are not transactional: a recreate
// failure is swallowed and the namespace is lazily recreated on the next
// operation.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	if err := s.init(ctx); err != nil {
		return 0, err
	}

	count := s.recordCount(ctx)

	if err := s.client.DeleteNamespace(ctx, s.Namespace); err != nil {
		return 0, err
	}

	if err := s.client.CreateNamespace(ctx, s.Namespace, false); err != nil {
		log.Warn("recreate after delete failed, namespace left absent", "namespace", s.Namespace, "err", err)
	}

	return count, nil
}

// Stats aggregates namespace statistics, preferring the store's cheap count
// and falling back to a full download when the store reports the -1
// sentinel.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}

	total := int64(-1)
	if info, err := s.client.Info(ctx, s.Namespace); err == nil {
		total = info.TotalRecords
	}

	rows, err := s.downloadRows(ctx)
	if err != nil {
		return nil, err
	}
	if total < 0 {
		total = int64(len(rows))
	}

	clients := map[string]struct{}{}
	oldest, newest := "", ""
	for _, row := range rows {
		clientID := row.Metadata[MetaClientID]
		if clientID == "" {
			clientID = UnknownClient
		}
		clients[clientID] = struct{}{}

		created := row.Metadata[MetaCreatedAt]
		if created == "" {
			continue
		}
		if oldest == "" || created < oldest {
			oldest = created
		}
		if newest == "" || created > newest {
			newest = created
		}
	}

	return &Stats{
		TotalMemories: int(total),
		UniqueClients: len(clients),
		OldestMemory:  oldest,
		NewestMemory:  newest,
		Backend:       BackendName,
	}, nil
}

// Info returns the raw namespace info, with -1 sentinels when the store
// cannot answer.
func (s *Store) Info(ctx context.Context) (*transport.NamespaceInfo, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}

	info, err := s.client.Info(ctx, s.Namespace)
	if err != nil {
		log.Error("namespace info failed", "namespace", s.Namespace, "err", err)
		return &transport.NamespaceInfo{TotalRecords: -1, TotalBytes: -1}, nil
	}

	return info, nil
}

// Snapshot triggers a manual persistence snapshot on the store.
func (s *Store) Snapshot(ctx context.Context) error {
	if err := s.init(ctx); err != nil {
		return err
	}
	return s.client.Snapshot(ctx)
}

// AddEdge records a directed relationship between two memories.
func (s *Store) AddEdge(ctx context.Context, sourceID, targetID, predicate string, weight float64) error {
	if err := s.init(ctx); err != nil {
		return err
	}
	return s.graph.AddEdge(ctx, sourceID, targetID, predicate, weight)
}

// Traverse walks the relationship graph from a starting memory. Results are
// in the store's native node-id space.
func (s *Store) Traverse(ctx context.Context, startID string, opts TraverseOptions) ([]transport.NodeResult, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	return s.graph.Traverse(ctx, startID, opts)
}

func (s *Store) downloadRows(ctx context.Context) ([]wire.Row, error) {
	buf, err := s.client.DownloadAll(ctx, s.Namespace)
	if err != nil {
		return nil, err
	}
	return buf.Rows(), nil
}

// recordCount prefers the store's cheap count and falls back to counting a
// full download.
func (s *Store) recordCount(ctx context.Context) int {
	if info, err := s.client.Info(ctx, s.Namespace); err == nil && info.TotalRecords >= 0 {
		return int(info.TotalRecords)
	}

	rows, err := s.downloadRows(ctx)
	if err != nil {
		log.Error("count fallback download failed", "namespace", s.Namespace, "err", err)
		return 0
	}
	return len(rows)
}
