// Package prometheus renders engine counters and the ValidateAccess latency histogram in
// the Prometheus text format. Counters are named authcore_*_total.
//
// The exporter never touches a global registry; callers mount Handler themselves.
package prometheus
