// Package api exposes the controller's small northbound HTTP surface:
// status, ad-hoc commands, sequence run/abort, a live SSE log stream and
// prometheus metrics. The UI consuming it lives outside this repository.
package api
