package sequence

import (
	"fmt"
	"time"

	"github.com/robot-control/rsc/internal/config"
	"github.com/robot-control/rsc/internal/protocol"
)

// Step is one entry of a script: either a command send or a wait.
type Step struct {
	Label string

	// Command to transmit; nil for a pure wait step.
	Command protocol.Command

	// Wait duration for wait steps.
	Wait time.Duration
}

func command(cmd protocol.Command) Step {
	return Step{Label: cmd.Label(), Command: cmd}
}

func wait(d time.Duration) Step {
	return Step{Label: fmt.Sprintf("wait %s", d), Wait: d}
}

// Script is a fixed ordered step list executed as one logical operation.
type Script struct {
	Name  string
	Steps []Step
}

// Build returns the script for the configured variant. The two historical
// variants stay separate scripts with their own step counts.
func Build(s config.SequenceConfig) Script {
	if s.Variant == config.VariantClassic {
		return ClassicScript(s)
	}
	return TimedScript(s)
}

// ClassicScript is the original routine: fixed 3-second waits and servo
// sub-commands raising and lowering the dispenser arm.
func ClassicScript(s config.SequenceConfig) Script {
	const pause = 3 * time.Second
	return Script{
		Name: "reward-classic",
		Steps: []Step{
			command(protocol.Skill{Code: s.CelebrateSkill}),
			wait(pause),
			command(protocol.Raw{Text: "m 8 60"}),
			wait(pause),
			command(protocol.MotorOn()),
			wait(pause),
			command(protocol.MotorOff()),
			command(protocol.Raw{Text: "m 8 0"}),
			command(protocol.Skill{Code: s.RestSkill}),
		},
	}
}

// TimedScript is the current routine: operator-configured durations and no
// servo step.
func TimedScript(s config.SequenceConfig) Script {
	return Script{
		Name: "reward-timed",
		Steps: []Step{
			command(protocol.Skill{Code: s.CelebrateSkill}),
			wait(s.PreDispense),
			command(protocol.MotorOn()),
			wait(s.Dispense),
			command(protocol.Skill{Code: s.RestSkill}),
			command(protocol.MotorOff()),
		},
	}
}
