// Package config implements the configuration store for the robot serial
// controller.
//
// Configuration starts from baked-in baseline values and is optionally
// overlaid from a YAML file. Sequence settings (skill codes, step durations)
// are read by the sequence controller at run start, so edits take effect on
// the next run without a restart.
package config
