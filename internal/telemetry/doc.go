// Package telemetry implements the event hub for the robot serial controller.
//
// The hub fans log entries out to registered handlers in registration order
// and keeps a bounded ring of recent entries so late subscribers (the SSE
// stream, diagnostics) can catch up.
package telemetry
