// Package audit implements the append-only action log.
//
// Every transmission attempt and sequence transition is recorded as one JSON
// line with action, detail, outcome and latency, for post-hoc debugging of
// robot behavior.
package audit
