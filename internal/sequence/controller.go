package sequence

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/op/go-logging"

	"github.com/robot-control/rsc/internal/channel"
	"github.com/robot-control/rsc/internal/config"
	"github.com/robot-control/rsc/internal/metrics"
	"github.com/robot-control/rsc/internal/protocol"
	"github.com/robot-control/rsc/internal/telemetry"
)

var log = logging.MustGetLogger("sequence")

// ErrBusy is returned when a run is requested while another is active.
var ErrBusy = errors.New("SEQUENCE_BUSY")

// State is the controller's run state. Terminal outcomes settle back to
// Idle; the last outcome stays readable via LastOutcome.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Outcome is how the last run terminated.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeCompleted Outcome = "completed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeFailed    Outcome = "failed"
)

// Enqueuer is the command channel as seen by the controller.
type Enqueuer interface {
	Enqueue(cmd protocol.Command) (*channel.Pending, error)
}

// DirectWriter is the transport bypass used only for the emergency
// motor-off write, which is allowed to race ahead of the FIFO.
type DirectWriter interface {
	Write(frame []byte) error
}

// SettingsProvider supplies the skill codes and durations for a run,
// read at run start.
type SettingsProvider interface {
	SequenceSettings() config.SequenceConfig
}

// AuditLogger records run transitions.
type AuditLogger interface {
	LogAction(action, detail, outcome string, latency time.Duration)
}

// Controller drives reward sequence runs with mutual exclusion, cooperative
// abort and guaranteed motor cleanup.
type Controller struct {
	queue    Enqueuer
	bypass   DirectWriter
	hub      *telemetry.Hub
	settings SettingsProvider
	audit    AuditLogger

	abort atomic.Bool

	// offStale marks that a queued transmission completed after the
	// emergency off write, so that write may no longer be the last motor
	// frame and termination must send a fresh one.
	offStale atomic.Bool

	mu          sync.Mutex
	state       State
	stepIndex   int
	stepTotal   int
	progress    string
	lastOutcome Outcome
	offOnce     *sync.Once
	done        chan struct{}
}

// NewController wires a controller. bypass must be the transport itself, not
// the queue, so the emergency off write skips pending commands.
func NewController(queue Enqueuer, bypass DirectWriter, hub *telemetry.Hub, settings SettingsProvider) *Controller {
	return &Controller{
		queue:    queue,
		bypass:   bypass,
		hub:      hub,
		settings: settings,
		state:    StateIdle,
	}
}

// SetAuditLogger attaches the action log. A nil logger disables auditing.
func (c *Controller) SetAuditLogger(a AuditLogger) {
	c.audit = a
}

// State returns the current run state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastOutcome returns how the most recent run terminated.
func (c *Controller) LastOutcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOutcome
}

// Progress returns the advisory step descriptor, "Step k/N: <label>", or ""
// when idle.
func (c *Controller) Progress() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Step returns the 1-based index of the current step and the script's step
// total, or zeros when no run is active.
func (c *Controller) Step() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return 0, 0
	}
	return c.stepIndex + 1, c.stepTotal
}

// Run executes one sequence run to termination. Returns ErrBusy if a run is
// already active; step failures terminate the run but are not returned.
func (c *Controller) Run() error {
	if err := c.begin(); err != nil {
		return err
	}
	c.runScript()
	return nil
}

// Start launches a run in the background. The entry guard still applies
// synchronously.
func (c *Controller) Start() error {
	if err := c.begin(); err != nil {
		return err
	}
	go c.runScript()
	return nil
}

// begin is the entry guard: Idle is the only state a run may start from.
func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrBusy
	}
	c.state = StateRunning
	c.stepIndex = 0
	c.offOnce = &sync.Once{}
	c.done = make(chan struct{})
	c.abort.Store(false)
	c.offStale.Store(false)
	return nil
}

// runScript executes the script and terminates the run. The termination
// block runs on every exit path, panics included, so the run lock is always
// released and aborted or failed runs always get their motor-off attempt.
func (c *Controller) runScript() {
	settings := c.settings.SequenceSettings()
	script := Build(settings)
	start := time.Now()
	outcome := OutcomeFailed

	c.mu.Lock()
	once := c.offOnce
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("sequence panicked: %v", r)
			c.hub.Error(fmt.Sprintf("sequence failed: %v", r))
			outcome = OutcomeFailed
		}
		// Completed runs switch the motor off as their own final step.
		if outcome != OutcomeCompleted {
			if c.offStale.Load() {
				// A queued frame went out after the emergency off; the
				// off must be the last motor frame of the run.
				c.writeMotorOff()
			} else {
				c.forceMotorOff(once)
			}
		}
		metrics.SequenceRuns.WithLabelValues(string(outcome)).Inc()
		if c.audit != nil {
			c.audit.LogAction("sequence", script.Name, string(outcome), time.Since(start))
		}
		c.hub.Info(fmt.Sprintf("sequence %s %s", script.Name, outcome))

		c.mu.Lock()
		c.state = StateIdle
		c.progress = ""
		c.stepIndex = 0
		c.stepTotal = 0
		c.lastOutcome = outcome
		done := c.done
		c.done = nil
		c.mu.Unlock()
		close(done)
	}()

	c.hub.Info(fmt.Sprintf("sequence %s started (%d steps)", script.Name, len(script.Steps)))
	outcome = c.execute(script)
}

// execute walks the script in order, checking the abort flag before each
// step. Abort never interrupts a step already underway.
func (c *Controller) execute(script Script) Outcome {
	total := len(script.Steps)
	for i, step := range script.Steps {
		if c.abort.Load() {
			c.hub.Info(fmt.Sprintf("sequence aborted before step %d/%d", i+1, total))
			return OutcomeAborted
		}

		c.setProgress(i, total, step.Label)

		if step.Command != nil {
			pending, err := c.queue.Enqueue(step.Command)
			if err != nil {
				c.hub.Error(fmt.Sprintf("sequence step %d/%d rejected: %v", i+1, total, err))
				return OutcomeFailed
			}
			if err := pending.Wait(); err != nil {
				c.hub.Error(fmt.Sprintf("sequence step %d/%d failed: %v", i+1, total, err))
				return OutcomeFailed
			}
			if c.abort.Load() {
				// This frame may have been sitting behind the settling
				// delay and overtaken the emergency off write.
				c.offStale.Store(true)
			}
			continue
		}

		// Waits run to completion; the abort flag is picked up afterwards.
		time.Sleep(step.Wait)
	}
	return OutcomeCompleted
}

func (c *Controller) setProgress(index, total int, label string) {
	c.mu.Lock()
	c.stepIndex = index
	c.stepTotal = total
	c.progress = fmt.Sprintf("Step %d/%d: %s", index+1, total, label)
	c.mu.Unlock()
}

// Abort requests an emergency stop: the cooperative flag is set, the motor
// is forced off directly on the transport ahead of any queued commands, and
// the call blocks until the run has settled. A no-op when idle.
func (c *Controller) Abort() {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	once := c.offOnce
	done := c.done
	c.mu.Unlock()

	c.abort.Store(true)
	c.hub.Info("emergency stop requested")
	c.forceMotorOff(once)

	if done != nil {
		<-done
	}
}

// forceMotorOff performs the once-per-run off attempt; its failure is
// logged, never propagated.
func (c *Controller) forceMotorOff(once *sync.Once) {
	once.Do(c.writeMotorOff)
}

// writeMotorOff writes the motor-off frame straight to the transport,
// bypassing the queue.
func (c *Controller) writeMotorOff() {
	cmd := protocol.MotorOff()
	frame, err := cmd.Encode()
	if err != nil {
		// Unreachable for the fixed motor port, kept for symmetry.
		c.hub.Error(fmt.Sprintf("motor off rejected: %v", err))
		return
	}
	start := time.Now()
	if err := c.bypass.Write(frame); err != nil {
		c.hub.Error(fmt.Sprintf("failed to force motor off: %v", err))
		if c.audit != nil {
			c.audit.LogAction("motorOff", cmd.Label(), "ERROR", time.Since(start))
		}
		return
	}
	metrics.TxTotal.Inc()
	c.hub.Tx(cmd.Label())
	if c.audit != nil {
		c.audit.LogAction("motorOff", cmd.Label(), "SUCCESS", time.Since(start))
	}
}
