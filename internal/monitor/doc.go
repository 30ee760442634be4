// Package monitor samples relay health on a fixed interval and raises
// alerts when a sample crosses a threshold.
//
// The monitor only observes: it reads connection and session gauges and the
// cumulative counters in instrument.Metrics, but never changes connection,
// session or admission state. "Recent" failure counts are the difference
// between the current cumulative counter and the one seen at the previous
// sample.
//
// Samples and alerts go to a domain.EventStore; a daily retention sweep
// drops samples and resolved alerts older than the retention period. The
// monitor also acts as the audit EventSink, hashing sensitive detail fields
// before anything is persisted.
package monitor
