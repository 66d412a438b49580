package protocol

import (
	"errors"
	"fmt"
)

// Normalized validation errors.
var (
	ErrPortRange  = errors.New("PORT_OUT_OF_RANGE")
	ErrValueRange = errors.New("VALUE_OUT_OF_RANGE")
)

const (
	// Digital write frame header bytes.
	headerWrite   = 0x57 // 'W'
	headerDigital = 0x64 // 'd'

	// MinPort and MaxPort bound the addressable actuator channels.
	MinPort = 0
	MaxPort = 99

	// MotorPort is the actuator channel driven by the reward sequence.
	MotorPort = 9
)

// Command is a logical command that can be encoded into an exact byte frame.
// Commands are immutable value objects; they carry no transmission state.
type Command interface {
	// Encode returns the wire bytes for this command. Validation errors are
	// returned before any bytes are produced.
	Encode() ([]byte, error)

	// Label returns a short human-readable description for logs and
	// progress displays.
	Label() string
}

// DigitalWrite sets or clears a single actuator channel.
type DigitalWrite struct {
	Port  int
	Value int
}

// Encode produces the 4-byte digital write frame:
// 'W' 'd' <port:u8> <value:u8>, with port and value as raw bytes.
func (d DigitalWrite) Encode() ([]byte, error) {
	if d.Port < MinPort || d.Port > MaxPort {
		return nil, fmt.Errorf("%w: port %d not in [%d,%d]", ErrPortRange, d.Port, MinPort, MaxPort)
	}
	if d.Value != 0 && d.Value != 1 {
		return nil, fmt.Errorf("%w: value %d not 0 or 1", ErrValueRange, d.Value)
	}
	return []byte{headerWrite, headerDigital, byte(d.Port), byte(d.Value)}, nil
}

func (d DigitalWrite) Label() string {
	state := "off"
	if d.Value == 1 {
		state = "on"
	}
	return fmt.Sprintf("digital write port %d %s", d.Port, state)
}

// Skill is a short mnemonic identifying a preprogrammed robot motion.
type Skill struct {
	Code string
}

// Encode produces the ASCII bytes of the code followed by a newline.
// There is no escaping or checksum; the frame is fire-and-forget.
func (s Skill) Encode() ([]byte, error) {
	return append([]byte(s.Code), '\n'), nil
}

func (s Skill) Label() string {
	return fmt.Sprintf("skill %q", s.Code)
}

// Raw is an arbitrary operator-supplied line.
type Raw struct {
	Text string
}

func (r Raw) Encode() ([]byte, error) {
	return append([]byte(r.Text), '\n'), nil
}

func (r Raw) Label() string {
	return fmt.Sprintf("raw %q", r.Text)
}

// MotorOn returns the command that switches the motor channel on.
func MotorOn() DigitalWrite {
	return DigitalWrite{Port: MotorPort, Value: 1}
}

// MotorOff returns the command that switches the motor channel off.
func MotorOff() DigitalWrite {
	return DigitalWrite{Port: MotorPort, Value: 0}
}
