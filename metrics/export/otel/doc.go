// Package otel mirrors engine counters into an OpenTelemetry Meter supplied by the caller.
// Each histogram bucket is published as a cumulative gauge.
package otel
