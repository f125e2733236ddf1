package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"parts-assistant/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() []models.Item {
	return []models.Item{
		{SAP: "100", Category: "Ferramenta", Description: "CHAVE DE FENDA 5MM"},
		{SAP: "200", Category: "Ferramenta", Description: "ALICATE UNIVERSAL 8\""},
		{SAP: "300", Category: "Elétrica", Description: "FURADEIRA DE IMPACTO 650W"},
		{SAP: "400", Category: "Ferramenta", Description: "MARTELO DE UNHA"},
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"chave de fenda":         "CHAVE DE FENDA",
		"  Furadeira   ELÉTRICA": "FURADEIRA ELETRICA",
		"instrução":              "INSTRUCAO",
		"":                       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestSimilarity_Properties(t *testing.T) {
	pairs := [][2]string{
		{"chave de fenda", "CHAVE DE FENDA 5MM"},
		{"alicate", "ALICATE UNIVERSAL"},
		{"martelo", "furadeira"},
	}
	for _, p := range pairs {
		s := Similarity(p[0], p[1])
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
		assert.Equal(t, s, Similarity(p[1], p[0]), "symmetry for %v", p)
	}

	assert.Equal(t, 1.0, Similarity("Chave de Fenda", "CHAVE DE FENDA"))
	assert.Equal(t, 1.0, Similarity("furadeira eletrica", "FURADEIRA ELÉTRICA"))
	assert.Zero(t, Similarity("", "ALICATE"))

	// extending the request towards the catalog text only increases the score
	target := "CHAVE DE FENDA 5MM"
	assert.Less(t, Similarity("chave", target), Similarity("chave de", target))
	assert.Less(t, Similarity("chave de", target), Similarity("chave de fenda", target))
	assert.Less(t, Similarity("chave de fenda", target), Similarity("chave de fenda 5mm", target))
}

func TestMemoryMatcher_Match(t *testing.T) {
	m := NewMemoryMatcher(testCatalog(), 0.75)
	ctx := context.Background()

	res, err := m.Match(ctx, "chave de fenda")
	require.NoError(t, err)
	require.True(t, res.Matched())
	assert.Equal(t, "100", res.Item.SAP)
	assert.Equal(t, "chave de fenda", res.Requested)
	assert.InDelta(t, 15.0/19.0, res.Score, 1e-9)

	res, err = m.Match(ctx, "serra circular")
	require.NoError(t, err)
	assert.False(t, res.Matched())
	assert.Equal(t, "serra circular", res.Requested)
}

func TestMemoryMatcher_Idempotent(t *testing.T) {
	m := NewMemoryMatcher(testCatalog(), 0.4)
	ctx := context.Background()

	first, err := m.Match(ctx, "Furadeira de impacto")
	require.NoError(t, err)
	second, err := m.Match(ctx, "FURADEIRA DE IMPACTO")
	require.NoError(t, err)
	assert.Equal(t, first.Item, second.Item)
	assert.Equal(t, first.Score, second.Score)
}

func TestMemoryMatcher_ThresholdMonotonic(t *testing.T) {
	queries := []string{"chave", "chave de fenda", "alicate", "furadeira", "martelo de unha", "serrote", "fenda 5mm"}
	thresholds := []float64{0.2, 0.3, 0.4, 0.5, 0.6, 0.75, 0.9, 1.0}
	ctx := context.Background()

	var previous map[string]bool
	for _, th := range thresholds {
		m := NewMemoryMatcher(testCatalog(), th)
		accepted := map[string]bool{}
		for _, q := range queries {
			res, err := m.Match(ctx, q)
			require.NoError(t, err)
			if res.Matched() {
				assert.GreaterOrEqual(t, res.Score, th, "accepted %q below threshold", q)
				accepted[q] = true
			}
		}
		for q := range accepted {
			if previous != nil {
				assert.True(t, previous[q], "raising threshold to %v accepted new query %q", th, q)
			}
		}
		previous = accepted
	}
}

func TestMemoryMatcher_TieBreakKeepsCatalogOrder(t *testing.T) {
	items := []models.Item{
		{SAP: "B-2", Description: "CHAVE ALLEN"},
		{SAP: "A-1", Description: "chave allen"},
	}
	m := NewMemoryMatcher(items, 0.5)

	for i := 0; i < 5; i++ {
		res, err := m.Match(context.Background(), "Chave Allen")
		require.NoError(t, err)
		require.True(t, res.Matched())
		assert.Equal(t, "B-2", res.Item.SAP)
	}
}

func TestMemoryMatcher_EmptyCatalog(t *testing.T) {
	m := NewMemoryMatcher(nil, 0)
	assert.Equal(t, DefaultThreshold, m.Threshold())
	res, err := m.Match(context.Background(), "alicate")
	require.NoError(t, err)
	assert.False(t, res.Matched())
}

func TestMemoryMatcher_CancelledContext(t *testing.T) {
	m := NewMemoryMatcher(testCatalog(), 0.75)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Match(ctx, "alicate")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatchAll_PreservesOrderAndPartition(t *testing.T) {
	m := NewMemoryMatcher(testCatalog(), 0.75)
	descs := []string{"martelo de unha", "serra circular", "chave de fenda", "martelo de unha"}

	results, err := MatchAll(context.Background(), m, descs, 3)
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i, r := range results {
		assert.Equal(t, descs[i], r.Requested)
	}
	assert.Equal(t, "400", results[0].Item.SAP)
	assert.False(t, results[1].Matched())
	assert.Equal(t, "100", results[2].Item.SAP)
	assert.Equal(t, "400", results[3].Item.SAP)
}

func TestMatchAll_Empty(t *testing.T) {
	results, err := MatchAll(context.Background(), NewMemoryMatcher(testCatalog(), 0), nil, 2)
	require.NoError(t, err)
	assert.Empty(t, results)
}

type fakeLookup struct {
	calls atomic.Int32
	item  *models.Item
	err   error
}

func (f *fakeLookup) MatchPiece(_ context.Context, description string, threshold float64) (*models.Item, float64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, 0, f.err
	}
	if description != Normalize(description) {
		return nil, 0, errors.New("description not normalized")
	}
	return f.item, threshold, nil
}

func TestStoreMatcher(t *testing.T) {
	lookup := &fakeLookup{item: &models.Item{SAP: "100"}}
	m := NewStoreMatcher(lookup, 0.6)

	res, err := m.Match(context.Background(), "chave de fenda")
	require.NoError(t, err)
	assert.Equal(t, "100", res.Item.SAP)
	assert.Equal(t, "chave de fenda", res.Requested)
	assert.Equal(t, 0.6, res.Score)
}

func TestMatchAll_PropagatesStoreErrors(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("connection refused")}
	m := NewStoreMatcher(lookup, 0.75)

	_, err := MatchAll(context.Background(), m, []string{"a", "b"}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.parquet")
	items := append(testCatalog(), models.Item{SAP: "", Description: "sem código"})
	require.NoError(t, WriteItemsParquet(path, items))

	got, err := ReadItemsParquet(path)
	require.NoError(t, err)
	assert.Equal(t, testCatalog(), got)
}
