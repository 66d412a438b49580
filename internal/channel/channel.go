package channel

import (
	"fmt"
	"sync"
	"time"

	"github.com/robot-control/rsc/internal/metrics"
	"github.com/robot-control/rsc/internal/protocol"
	"github.com/robot-control/rsc/internal/telemetry"
	"github.com/robot-control/rsc/internal/transport"
)

// Transport is the write side of the serial link, as seen by the queue.
type Transport interface {
	IsConnected() bool
	Write(frame []byte) error
}

// AuditLogger records transmission attempts.
type AuditLogger interface {
	LogAction(action, detail, outcome string, latency time.Duration)
}

// Pending resolves once its command has been transmitted or dropped.
type Pending struct {
	done chan struct{}
	err  error
}

// Done is closed when the command has left the queue.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err reports the transmission result. Only valid after Done is closed.
func (p *Pending) Err() error { return p.err }

// Wait blocks until resolution and returns the transmission result.
func (p *Pending) Wait() error {
	<-p.done
	return p.err
}

type item struct {
	cmd     protocol.Command
	frame   []byte
	pending *Pending
}

// Queue is the single outbound command channel. Submission order is
// transmission order; at most one write is ever in flight.
type Queue struct {
	transport Transport
	hub       *telemetry.Hub
	audit     AuditLogger
	settle    time.Duration

	mu      sync.Mutex
	items   []item
	running bool
}

// NewQueue creates a command queue writing through t, paced by settle.
func NewQueue(t Transport, hub *telemetry.Hub, settle time.Duration) *Queue {
	return &Queue{
		transport: t,
		hub:       hub,
		settle:    settle,
	}
}

// SetAuditLogger attaches the action log. A nil logger disables auditing.
func (q *Queue) SetAuditLogger(a AuditLogger) {
	q.audit = a
}

// Enqueue validates and appends a command, starting the drain loop if none
// is active. Validation failures are returned synchronously and nothing is
// queued. The returned Pending resolves when this command has been
// transmitted or dropped; resolution order matches enqueue order.
func (q *Queue) Enqueue(cmd protocol.Command) (*Pending, error) {
	frame, err := cmd.Encode()
	if err != nil {
		return nil, fmt.Errorf("invalid command %s: %w", cmd.Label(), err)
	}

	p := &Pending{done: make(chan struct{})}
	q.mu.Lock()
	q.items = append(q.items, item{cmd: cmd, frame: frame, pending: p})
	start := !q.running
	if start {
		q.running = true
	}
	q.mu.Unlock()

	// The running flag guarantees a single drain loop per queue.
	if start {
		go q.drain()
	}
	return p, nil
}

// drain pops and transmits queue entries until the queue is empty, then
// exits. Each attempt, successful or not, is followed by the settling delay.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		next := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		next.pending.err = q.transmit(next)
		close(next.pending.done)

		// Hardware buffer-clear time. Not skippable after failures.
		time.Sleep(q.settle)
	}
}

// transmit performs one attempt. Faults are logged and returned for the
// Pending but never halt the queue.
func (q *Queue) transmit(it item) error {
	start := time.Now()

	if !q.transport.IsConnected() {
		metrics.TxDropped.Inc()
		q.hub.Error(fmt.Sprintf("dropped %s: not connected", it.cmd.Label()))
		q.logAudit(it.cmd, "DROPPED", time.Since(start))
		return transport.ErrNotConnected
	}

	if err := q.transport.Write(it.frame); err != nil {
		metrics.TxErrors.Inc()
		q.hub.Error(fmt.Sprintf("failed to send %s: %v", it.cmd.Label(), err))
		q.logAudit(it.cmd, "ERROR", time.Since(start))
		return err
	}

	metrics.TxTotal.Inc()
	q.hub.Tx(it.cmd.Label())
	q.logAudit(it.cmd, "SUCCESS", time.Since(start))
	return nil
}

func (q *Queue) logAudit(cmd protocol.Command, outcome string, latency time.Duration) {
	if q.audit == nil {
		return
	}
	q.audit.LogAction("transmit", cmd.Label(), outcome, latency)
}
