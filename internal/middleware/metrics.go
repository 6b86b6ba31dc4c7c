package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	AnalysesTotal      uint64
	AnalysesRunning    uint64
	AnalysesFailed     uint64
	LedgerWrites       uint64
	LedgerFailures     uint64
	StartTime          time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

func IncrementRequests() { atomic.AddUint64(&globalMetrics.RequestsTotal, 1) }

func IncrementInProgress() { atomic.AddUint64(&globalMetrics.RequestsInProgress, 1) }

func DecrementInProgress() { atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0)) }

func IncrementSuccess() { atomic.AddUint64(&globalMetrics.RequestsSuccess, 1) }

func IncrementFailed() { atomic.AddUint64(&globalMetrics.RequestsFailed, 1) }

func IncrementAnalyses() { atomic.AddUint64(&globalMetrics.AnalysesTotal, 1) }

func IncrementAnalysesRunning() { atomic.AddUint64(&globalMetrics.AnalysesRunning, 1) }

func DecrementAnalysesRunning() { atomic.AddUint64(&globalMetrics.AnalysesRunning, ^uint64(0)) }

func IncrementAnalysesFailed() { atomic.AddUint64(&globalMetrics.AnalysesFailed, 1) }

func IncrementLedgerWrites() { atomic.AddUint64(&globalMetrics.LedgerWrites, 1) }

func IncrementLedgerFailures() { atomic.AddUint64(&globalMetrics.LedgerFailures, 1) }

// MetricsMiddleware counts requests and outcomes
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		IncrementRequests()
		IncrementInProgress()
		defer DecrementInProgress()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode < 400 {
			IncrementSuccess()
		} else {
			IncrementFailed()
		}
	})
}

// MetricsHandler exposes the counters plus runtime stats
func MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		out := map[string]any{
			"requests_total":       atomic.LoadUint64(&globalMetrics.RequestsTotal),
			"requests_in_progress": atomic.LoadUint64(&globalMetrics.RequestsInProgress),
			"requests_success":     atomic.LoadUint64(&globalMetrics.RequestsSuccess),
			"requests_failed":      atomic.LoadUint64(&globalMetrics.RequestsFailed),
			"analyses_total":       atomic.LoadUint64(&globalMetrics.AnalysesTotal),
			"analyses_running":     atomic.LoadUint64(&globalMetrics.AnalysesRunning),
			"analyses_failed":      atomic.LoadUint64(&globalMetrics.AnalysesFailed),
			"ledger_writes":        atomic.LoadUint64(&globalMetrics.LedgerWrites),
			"ledger_failures":      atomic.LoadUint64(&globalMetrics.LedgerFailures),
			"uptime_seconds":       time.Since(globalMetrics.StartTime).Seconds(),
			"goroutines":           runtime.NumGoroutine(),
			"heap_alloc_bytes":     m.HeapAlloc,
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}
