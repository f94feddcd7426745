package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilchouksey/study-artifacts/model"
)

func TestPlan_TenPagesByFour(t *testing.T) {
	batches, err := Plan("doc-1", 10, model.StrategyDirect, 4)
	require.NoError(t, err)
	require.Len(t, batches, 3)

	assert.Equal(t, model.PageRange{Start: 1, End: 4}, batches[0].PageRange)
	assert.Equal(t, model.PageRange{Start: 5, End: 8}, batches[1].PageRange)
	assert.Equal(t, model.PageRange{Start: 9, End: 10}, batches[2].PageRange)

	for i, b := range batches {
		assert.Equal(t, i, b.BatchIndex)
		assert.Equal(t, "doc-1", b.DocumentID)
		assert.Equal(t, model.StrategyDirect, b.Strategy)
	}
}

func TestPlan_PartitionProperty(t *testing.T) {
	for pageCount := 1; pageCount <= 60; pageCount++ {
		for maxPages := 1; maxPages <= 25; maxPages++ {
			batches, err := Plan("doc", pageCount, model.StrategyOCR, maxPages)
			require.NoError(t, err)

			want := (pageCount + maxPages - 1) / maxPages
			require.Len(t, batches, want, "pages=%d max=%d", pageCount, maxPages)

			next := 1
			for _, b := range batches {
				require.Equal(t, next, b.PageRange.Start, "pages=%d max=%d: gap or overlap", pageCount, maxPages)
				require.GreaterOrEqual(t, b.PageRange.End, b.PageRange.Start)
				require.LessOrEqual(t, b.PageRange.Len(), maxPages)
				next = b.PageRange.End + 1
			}
			require.Equal(t, pageCount+1, next, "pages=%d max=%d: coverage", pageCount, maxPages)
		}
	}
}

func TestPlan_SmallDocumentSingleBatch(t *testing.T) {
	batches, err := Plan("doc", 3, model.StrategyDirect, 20)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, model.PageRange{Start: 1, End: 3}, batches[0].PageRange)
}

func TestPlan_EmptyDocument(t *testing.T) {
	batches, err := Plan("doc", 0, model.StrategyDirect, 4)
	assert.ErrorIs(t, err, ErrEmptyDocument)
	assert.Empty(t, batches)
}

func TestPlan_InvalidMax(t *testing.T) {
	_, err := Plan("doc", 10, model.StrategyDirect, 0)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyDocument)
}
