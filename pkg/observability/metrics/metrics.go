package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	datasetsGenerated atomic.Int64
	datasetsFailed    atomic.Int64
	rowsEmitted       atomic.Int64
	cacheHits         atomic.Int64
	jobsRunning       atomic.Int64
)

func ObserveGenerated(rows int, cached bool) {
	datasetsGenerated.Add(1)
	rowsEmitted.Add(int64(rows))
	if cached {
		cacheHits.Add(1)
	}
}

func ObserveFailed() {
	datasetsFailed.Add(1)
}

func JobStarted() {
	jobsRunning.Add(1)
}

func JobFinished() {
	jobsRunning.Add(-1)
}

type Snapshot struct {
	Generated   int64
	Failed      int64
	RowsEmitted int64
	CacheHits   int64
	JobsRunning int64
}

func Read() Snapshot {
	return Snapshot{
		Generated:   datasetsGenerated.Load(),
		Failed:      datasetsFailed.Load(),
		RowsEmitted: rowsEmitted.Load(),
		CacheHits:   cacheHits.Load(),
		JobsRunning: jobsRunning.Load(),
	}
}

func WritePrometheus(w http.ResponseWriter) {
	s := Read()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP studydata_datasets_generated_total Number of datasets generated.\n")
	fmt.Fprintf(w, "# TYPE studydata_datasets_generated_total counter\n")
	fmt.Fprintf(w, "studydata_datasets_generated_total %d\n", s.Generated)

	fmt.Fprintf(w, "# HELP studydata_datasets_failed_total Number of dataset generations that failed.\n")
	fmt.Fprintf(w, "# TYPE studydata_datasets_failed_total counter\n")
	fmt.Fprintf(w, "studydata_datasets_failed_total %d\n", s.Failed)

	fmt.Fprintf(w, "# HELP studydata_dataset_rows_emitted_total Number of patient rows emitted across all datasets.\n")
	fmt.Fprintf(w, "# TYPE studydata_dataset_rows_emitted_total counter\n")
	fmt.Fprintf(w, "studydata_dataset_rows_emitted_total %d\n", s.RowsEmitted)

	fmt.Fprintf(w, "# HELP studydata_dataset_cache_hits_total Number of datasets served from the result cache.\n")
	fmt.Fprintf(w, "# TYPE studydata_dataset_cache_hits_total counter\n")
	fmt.Fprintf(w, "studydata_dataset_cache_hits_total %d\n", s.CacheHits)

	fmt.Fprintf(w, "# HELP studydata_dataset_jobs_running Number of dataset jobs currently running.\n")
	fmt.Fprintf(w, "# TYPE studydata_dataset_jobs_running gauge\n")
	fmt.Fprintf(w, "studydata_dataset_jobs_running %d\n", s.JobsRunning)
}
