// Package transport owns the serial link to the robot.
//
// The manager is the only component holding the device handles. It opens the
// port at the fixed device rate (115200 8N1), runs a background reader that
// turns incoming bytes into rx log entries, and exposes a single Write path
// used by the command channel (and the emergency motor-off bypass).
package transport
