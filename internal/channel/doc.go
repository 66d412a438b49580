// Package channel serializes outbound command transmissions.
//
// All writes to the robot funnel through a single FIFO queue drained by one
// loop at a time. Every transmission attempt is paced by a fixed settling
// delay so the device's input buffer can clear; the delay applies even after
// failed or dropped attempts. A failed command is lost, never retried, and
// never blocks the commands behind it.
package channel
