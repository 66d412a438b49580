package transport

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/op/go-logging"
	"go.bug.st/serial"

	"github.com/robot-control/rsc/internal/metrics"
	"github.com/robot-control/rsc/internal/telemetry"
)

var log = logging.MustGetLogger("transport")

const (
	// Fixed device framing: 115200 symbols/second, 8 data bits, no parity.
	BaudRate = 115200
	DataBits = 8

	receiveBufferSize = 128

	// readLoopDrainTimeout bounds how long Disconnect waits for the read
	// loop to observe the closed port.
	readLoopDrainTimeout = 2 * time.Second
)

// State is the connection lifecycle state. It is owned by the Manager;
// every other component only reads it.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
)

// Opener opens the physical device. Injectable so tests run against a fake
// port instead of hardware.
type Opener func(path string, mode *serial.Mode) (io.ReadWriteCloser, error)

// DefaultOpener opens a real serial port via go.bug.st/serial.
func DefaultOpener(path string, mode *serial.Mode) (io.ReadWriteCloser, error) {
	return serial.Open(path, mode)
}

// ListPorts enumerates the host's serial devices. An enumeration failure is
// reported as ErrUnsupported since it usually means the host has no serial
// stack at all.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return ports, nil
}

// Manager owns the serial link lifecycle: open, background read loop,
// write handle, close.
type Manager struct {
	hub    *telemetry.Hub
	opener Opener

	mu       sync.Mutex
	state    State
	port     io.ReadWriteCloser
	readDone chan struct{}

	writeMu sync.Mutex
}

// NewManager creates a manager publishing to hub. A nil opener means the
// host has no serial capability; Connect will fail with ErrUnsupported.
func NewManager(hub *telemetry.Hub, opener Opener) *Manager {
	return &Manager{
		hub:    hub,
		opener: opener,
		state:  StateDisconnected,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the link is up.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Connect opens the device at path and starts the read loop. The rate and
// framing are fixed by the device and not configurable.
func (m *Manager) Connect(path string) error {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrAlreadyConnected, m.state)
	}
	if m.opener == nil {
		m.mu.Unlock()
		m.hub.Error("serial is not supported on this host")
		return ErrUnsupported
	}
	m.state = StateConnecting
	m.mu.Unlock()

	mode := &serial.Mode{
		BaudRate: BaudRate,
		DataBits: DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := m.opener(path, mode)
	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		m.hub.Error(fmt.Sprintf("failed to open %s: %v", path, err))
		return fmt.Errorf("%w: open %s: %v", ErrDevice, path, err)
	}

	m.mu.Lock()
	if m.state != StateConnecting {
		// A disconnect intervened while the device was being opened; it
		// wins, and the freshly opened port must not be installed.
		m.mu.Unlock()
		if cerr := port.Close(); cerr != nil {
			log.Errorf("close aborted port: %v", cerr)
		}
		m.hub.Info(fmt.Sprintf("connect to %s cancelled", path))
		return fmt.Errorf("%w: connect to %s cancelled by disconnect", ErrDevice, path)
	}
	m.port = port
	m.readDone = make(chan struct{})
	m.state = StateConnected
	done := m.readDone
	m.mu.Unlock()

	go m.readLoop(port, done)

	log.Infof("connected to %s at %d baud", path, BaudRate)
	m.hub.Info(fmt.Sprintf("connected to %s", path))
	return nil
}

// Disconnect tears the link down: stops the read loop, releases the handles,
// closes the device. Idempotent; every release step is attempted even when
// an earlier one fails, and failures are logged rather than returned.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected || m.state == StateDisconnecting {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnecting
	port := m.port
	done := m.readDone
	m.port = nil
	m.readDone = nil
	m.mu.Unlock()

	// Closing the device is what unblocks the pending read.
	if port != nil {
		if err := port.Close(); err != nil {
			log.Errorf("close failed: %v", err)
			m.hub.Error(fmt.Sprintf("failed to close device: %v", err))
		}
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(readLoopDrainTimeout):
			log.Warning("read loop did not stop in time")
			m.hub.Error("read loop did not stop in time")
		}
	}

	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()
	m.hub.Info("disconnected")
}

// Write sends raw frame bytes to the device. Callers other than the command
// channel are limited to the emergency motor-off bypass.
func (m *Manager) Write(frame []byte) error {
	m.mu.Lock()
	port := m.port
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || port == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if _, err := port.Write(frame); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// readLoop drains incoming bytes and publishes them line-by-line as rx
// entries. Trailing bytes without a newline are flushed when the loop ends.
func (m *Manager) readLoop(port io.Reader, done chan struct{}) {
	defer close(done)

	var pending bytes.Buffer
	buf := make([]byte, receiveBufferSize)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			pending.Write(buf[:n])
			for {
				line, rest, found := bytes.Cut(pending.Bytes(), []byte{'\n'})
				if !found {
					break
				}
				m.emitLine(line)
				remainder := append([]byte(nil), rest...)
				pending.Reset()
				pending.Write(remainder)
			}
		}
		if err != nil {
			if pending.Len() > 0 {
				m.emitLine(pending.Bytes())
			}
			if m.State() == StateConnected {
				// Device vanished under us rather than an orderly close.
				log.Warningf("read loop terminated: %v", err)
				m.hub.Error(fmt.Sprintf("read failed: %v", err))
			}
			return
		}
	}
}

func (m *Manager) emitLine(line []byte) {
	text := strings.TrimRight(string(line), "\r")
	if text == "" {
		return
	}
	metrics.RxLines.Inc()
	m.hub.Rx(text)
}
