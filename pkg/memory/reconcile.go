package memory

import (
	"context"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/longbow-go/pkg/wire"
)

// idScheme tags how a query response identifies its rows. The store does not
// guarantee that the caller-assigned UUID comes back: depending on the query
// path the id column may instead hold positional row indices rendered as
// numeric strings. The scheme is decided once per response, not re-derived
// per row.
type idScheme int

const (
	// schemeStable: every raw id resolved against the authoritative
	// download, so ids are the original UUIDs.
	schemeStable idScheme = iota
	// schemePositional: every raw id parses as an integer; unmatched ids
	// resolve as row ordinals into the download order.
	schemePositional
	// schemeMixed: neither holds for the whole response; rows fall back
	// from id lookup to positional lookup individually.
	schemeMixed
)

// Reconciler bridges sparse query responses back to full records. Every call
// performs one authoritative download of the namespace, which makes
// reconciliation O(N) in namespace size: correctness-first, and a known
// scaling limit for large namespaces.
type Reconciler struct {
	client Transport
}

// NewReconciler creates a reconciler over the given transport.
func NewReconciler(client Transport) *Reconciler {
	return &Reconciler{client: client}
}

// Reconcile resolves each query row to a full memory. Rows that match no
// record are dropped and logged, never fatal; the result preserves the input
// order, i.e. the remote ranking. When the response carries only a distance
// column it is converted to similarity as 1/(1+distance).
func (r *Reconciler) Reconcile(ctx context.Context, queried *wire.Buffer, namespace string) ([]SearchResult, error) {
	if queried == nil || queried.Len() == 0 {
		return []SearchResult{}, nil
	}

	downloaded, err := r.client.DownloadAll(ctx, namespace)
	if err != nil {
		log.Error("full download for reconciliation failed", "namespace", namespace, "err", err)
		return []SearchResult{}, nil
	}

	full := downloaded.Rows()
	byID := make(map[string]int, len(full))
	for position, row := range full {
		byID[row.ID] = position
	}

	rows := queried.Rows()
	scheme := classify(rows, byID)

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		position, ok := resolve(row.ID, scheme, byID, len(full))
		if !ok {
			log.Warn("could not find record for search result id", "id", row.ID, "namespace", namespace)
			continue
		}

		results = append(results, SearchResult{
			Memory: fromRow(full[position]),
			Score:  rowScore(queried, row),
		})
	}

	return results, nil
}

func classify(rows []wire.Row, byID map[string]int) idScheme {
	stable, positional := true, true
	for _, row := range rows {
		if _, ok := byID[row.ID]; !ok {
			stable = false
		}
		if _, err := strconv.Atoi(row.ID); err != nil {
			positional = false
		}
	}

	switch {
	case stable:
		return schemeStable
	case positional:
		return schemePositional
	default:
		return schemeMixed
	}
}

// resolve locates the downloaded record for one raw response id. The id
// lookup always runs first, even under the positional scheme: a record whose
// stable id happens to be numeric must never be reinterpreted as an ordinal.
func resolve(rawID string, scheme idScheme, byID map[string]int, total int) (int, bool) {
	if position, ok := byID[rawID]; ok {
		return position, true
	}
	if scheme == schemeStable {
		return 0, false
	}

	ordinal, err := strconv.Atoi(rawID)
	if err != nil || ordinal < 0 || ordinal >= total {
		return 0, false
	}
	return ordinal, true
}

func rowScore(buf *wire.Buffer, row wire.Row) float64 {
	if buf.HasScores() {
		return row.Score
	}
	if buf.HasDistances() {
		return 1.0 / (1.0 + row.Distance)
	}
	return 0
}
