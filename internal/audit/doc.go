// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink]: event consumers (channel, JSON lines, zap, no-op).
//   - [Dispatcher]: buffered async relay that drops on a full buffer or waits a bounded time.
//   - [Event]: structured record with timestamp, type, identity, project, IP and metadata.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. Which events to emit is decided by the
// Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authcore or any sibling internal package.
//   - Record OTP codes, PINs, passwords or tokens.
package audit
