package part

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters of part writers
type Metrics struct {
	rowsWritten   prometheus.Counter
	marksWritten  prometheus.Counter
	bytesWritten  *prometheus.CounterVec
	parts         *prometheus.CounterVec
	finishSeconds prometheus.Histogram
}

// NewMetrics creates a new set of writer metrics. If reg is non-nil, the
// metrics will be registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var m Metrics

	m.rowsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "part_writer",
		Name:      "rows_written_total",
		Help:      "Total number of rows written into parts",
	})
	m.marksWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "part_writer",
		Name:      "marks_written_total",
		Help:      "Total number of marks written into mark files",
	})
	m.bytesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "part_writer",
		Name:      "bytes_written_total",
		Help:      "Total number of bytes written into part files, by file kind",
	}, []string{"kind"})
	m.parts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "part_writer",
		Name:      "parts_total",
		Help:      "Total number of parts by final writer status",
	}, []string{"status"})
	m.finishSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "part_writer",
		Name:      "finish_seconds",
		Help:      "Time spent finalizing a part",
		Buckets:   prometheus.DefBuckets,
	})

	if reg != nil {
		reg.MustRegister(
			m.rowsWritten,
			m.marksWritten,
			m.bytesWritten,
			m.parts,
			m.finishSeconds,
		)
	}

	return &m
}
