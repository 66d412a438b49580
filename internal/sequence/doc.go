// Package sequence runs the timed reward sequence against the command
// channel.
//
// A run executes a fixed script of skill sends, motor writes and waits, one
// run at a time. Abort is cooperative: the flag is checked between steps, an
// in-flight transmission or wait is never interrupted. Whatever way a run
// ends, the motor channel is never left on: aborted and failed runs force a
// motor-off write exactly once before the run lock is released.
package sequence
