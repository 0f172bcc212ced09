package collector

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCollectSnapshotRecordsCensusMetrics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/code", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchBody(codeItem("owner/app", ".github/workflows/ci.yml")))
	})
	mux.HandleFunc("/repos/owner/app/contents/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, contentsBody("uses: org/metrics@v1"))
	})
	mux.HandleFunc("/repos/owner/app", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"full_name":"owner/app","stargazers_count":1}`)
	})

	c := newTestCollector(t, mux)

	beforePages := testutil.ToFloat64(searchPagesCounter.WithLabelValues("ok"))
	beforeCensus := histogramSampleCount(t)

	snap, err := c.CollectSnapshot(context.Background(), "org/metrics")
	require.NoError(t, err)
	require.Equal(t, 1, snap.Size())

	// One page per query phrasing.
	afterPages := testutil.ToFloat64(searchPagesCounter.WithLabelValues("ok"))
	require.InDelta(t, beforePages+3, afterPages, 0.0001)

	afterCensus := histogramSampleCount(t)
	require.Greater(t, afterCensus, beforeCensus)

	size := testutil.ToFloat64(snapshotSizeGauge.WithLabelValues("org/metrics"))
	require.InDelta(t, 1, size, 0.0001)
}

func TestFailedSearchPageCountsAsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/code", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message":"Validation Failed"}`)
	})

	c := newTestCollector(t, mux)

	beforeErrors := testutil.ToFloat64(searchPagesCounter.WithLabelValues("error"))

	_, err := c.CollectSnapshot(context.Background(), "org/metrics")
	require.Error(t, err)

	afterErrors := testutil.ToFloat64(searchPagesCounter.WithLabelValues("error"))
	require.InDelta(t, beforeErrors+3, afterErrors, 0.0001)
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, censusDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}
