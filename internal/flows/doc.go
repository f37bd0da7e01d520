// Package flows contains orchestrators for the Engine's session operations.
//
// Each flow function (RunIssue, RunRefresh, RunValidate, RunLogout) accepts a typed
// dependency struct and returns a result carrying a failure kind instead of a root
// error, so the Engine owns error mapping, audit and metrics.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session store, JWT manager and rate limiter.
// They do not own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency interfaces.
package flows
