package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_CountsOutcomes(t *testing.T) {
	// Given: a fresh pipeline
	p := NewPipeline()

	// When: recording activity
	p.Enqueued("item")
	p.Enqueued("item")
	p.Completed(true)
	p.Completed(false)
	p.Committed(0.01, nil)
	p.Committed(0.02, errors.New("flush"))
	p.StageError("index")

	// Then: counters reflect it
	assert.Equal(t, 2.0, testutil.ToFloat64(p.itemsEnqueued.WithLabelValues("item")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.itemsCompleted.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.itemsCompleted.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.commits))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.commitFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.stageErrors.WithLabelValues("index")))
}

func TestPipeline_NilIsSafe(t *testing.T) {
	var p *Pipeline

	assert.NotPanics(t, func() {
		p.Enqueued("run")
		p.Completed(true)
		p.StageError("preprocess")
		p.Committed(1, nil)
		p.QueueDepths(1, 2, 3)
		p.SinceCommit(4)
	})
	assert.Nil(t, p.Registry())
}

func TestPipeline_HandlerServesMetrics(t *testing.T) {
	p := NewPipeline()
	p.QueueDepths(1, 2, 3)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `ftsindex_queue_depth{queue="item"} 2`)
}
