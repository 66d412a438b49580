// Package protocol implements the wire encoding for the robot's serial
// byte protocol.
//
// Three command shapes exist: binary digital writes (4-byte frames),
// skill mnemonics, and raw operator lines (both newline-terminated ASCII).
// Encoding is pure and stateless; validation happens before any bytes are
// produced.
package protocol
