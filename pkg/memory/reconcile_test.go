package memory

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theapemachine/longbow-go/pkg/wire"
)

// reconcileFixture seeds three records under stable UUID-style ids.
func reconcileFixture(t *testing.T) *fakeTransport {
	t.Helper()
	fake := newFakeTransport()
	fake.seed("id-alpha", "alpha content", "client-a", "2026-08-29T10:00:00.000000Z", mustEmbed(t, "alpha content"))
	fake.seed("id-beta", "beta content", "client-a", "2026-08-29T11:00:00.000000Z", mustEmbed(t, "beta content"))
	fake.seed("id-gamma", "gamma content", "client-b", "2026-08-29T12:00:00.000000Z", mustEmbed(t, "gamma content"))
	return fake
}

func queried(ids []string, scores []float64) *wire.Buffer {
	buf := &wire.Buffer{Dim: EmbeddingDim, Scores: scores}
	for _, id := range ids {
		buf.IDs = append(buf.IDs, id)
		buf.Metadata = append(buf.Metadata, "")
		buf.Timestamps = append(buf.Timestamps, "")
	}
	return buf
}

func TestReconcileStableIDs(t *testing.T) {
	fake := reconcileFixture(t)
	reconciler := NewReconciler(fake)

	results, err := reconciler.Reconcile(context.Background(), queried([]string{"id-beta", "id-alpha"}, []float64{0.9, 0.4}), "memories")

	require.NoError(t, err)
	require.Len(t, results, 2)
	// Remote ranking is preserved.
	assert.Equal(t, "beta content", results[0].Memory.Content)
	assert.Equal(t, "alpha content", results[1].Memory.Content)
	assert.Equal(t, 0.9, results[0].Score)
	assert.Equal(t, "client-a", results[0].Memory.ClientID)
}

func TestReconcilePositionalIDs(t *testing.T) {
	fake := reconcileFixture(t)
	reconciler := NewReconciler(fake)

	results, err := reconciler.Reconcile(context.Background(), queried([]string{"2", "0"}, []float64{0.8, 0.3}), "memories")

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "gamma content", results[0].Memory.Content)
	assert.Equal(t, "alpha content", results[1].Memory.Content)
	// Positional lookups keep the stable id from the download.
	assert.Equal(t, "id-gamma", results[0].Memory.ID)
}

func TestReconcilePositionalOutOfRange(t *testing.T) {
	fake := reconcileFixture(t)
	reconciler := NewReconciler(fake)

	results, err := reconciler.Reconcile(context.Background(), queried([]string{"1", "99"}, []float64{0.8, 0.3}), "memories")

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "beta content", results[0].Memory.Content)
}

func TestReconcileNumericStableIDsResolveByID(t *testing.T) {
	fake := newFakeTransport()
	fake.seed("7", "seventh content", "client-a", "2026-08-29T10:00:00.000000Z", mustEmbed(t, "seventh content"))
	fake.seed("8", "eighth content", "client-a", "2026-08-29T11:00:00.000000Z", mustEmbed(t, "eighth content"))
	fake.seed("9", "ninth content", "client-a", "2026-08-29T12:00:00.000000Z", mustEmbed(t, "ninth content"))
	reconciler := NewReconciler(fake)

	// "8" is a stored id and must win over its reading as an out-of-range
	// ordinal; "0" matches nothing stored and falls back to the ordinal.
	results, err := reconciler.Reconcile(context.Background(), queried([]string{"8", "0"}, []float64{0.9, 0.2}), "memories")

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "eighth content", results[0].Memory.Content)
	assert.Equal(t, "seventh content", results[1].Memory.Content)
}

func TestReconcileMixedIDsFallBackPerRow(t *testing.T) {
	fake := reconcileFixture(t)
	reconciler := NewReconciler(fake)

	// "id-alpha" resolves by id, "1" by ordinal, "ghost" matches nothing and
	// is dropped without failing the batch.
	results, err := reconciler.Reconcile(context.Background(), queried([]string{"id-alpha", "1", "ghost"}, []float64{0.9, 0.5, 0.1}), "memories")

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "alpha content", results[0].Memory.Content)
	assert.Equal(t, "beta content", results[1].Memory.Content)
}

func TestReconcileDistanceConversion(t *testing.T) {
	fake := reconcileFixture(t)
	reconciler := NewReconciler(fake)

	buf := queried([]string{"id-alpha", "id-beta"}, nil)
	buf.Scores = nil
	buf.Distances = []float64{0.0, 3.0}

	results, err := reconciler.Reconcile(context.Background(), buf, "memories")

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, 0.25, results[1].Score)
}

func TestReconcileEmptyResponse(t *testing.T) {
	reconciler := NewReconciler(reconcileFixture(t))

	results, err := reconciler.Reconcile(context.Background(), &wire.Buffer{}, "memories")
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = reconciler.Reconcile(context.Background(), nil, "memories")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestReconcileDownloadFailureDegrades(t *testing.T) {
	fake := reconcileFixture(t)
	fake.downloadErr = stderrors.New("store went away")
	reconciler := NewReconciler(fake)

	results, err := reconciler.Reconcile(context.Background(), queried([]string{"id-alpha"}, []float64{0.9}), "memories")

	require.NoError(t, err)
	assert.Empty(t, results)
}
