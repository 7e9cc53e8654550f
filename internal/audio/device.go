package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Device is the playback capability. Implementations block until the
// file has finished playing or ctx is cancelled.
type Device interface {
	Play(ctx context.Context, path string) error
}

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execCommandRunner struct{}

func (execCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w (%s)", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ExecDevice plays files by invoking an external player command
// (aplay-style). Configured args may reference {device} and {file};
// when no {file} placeholder is present the path is appended.
type ExecDevice struct {
	command string
	args    []string
	device  string
	runner  commandRunner
}

// NewExecDevice builds an ExecDevice for the configured player command
// and ALSA-style device name. Empty args default to aplay conventions.
func NewExecDevice(command string, args []string, device string) *ExecDevice {
	if len(args) == 0 {
		args = []string{"-q", "-D", "{device}"}
	}
	return &ExecDevice{command: command, args: args, device: device, runner: execCommandRunner{}}
}

// Play blocks until the player process exits.
func (d *ExecDevice) Play(ctx context.Context, path string) error {
	args := make([]string, 0, len(d.args)+1)
	fileBound := false
	for _, arg := range d.args {
		arg = strings.ReplaceAll(arg, "{device}", d.device)
		if strings.Contains(arg, "{file}") {
			arg = strings.ReplaceAll(arg, "{file}", path)
			fileBound = true
		}
		args = append(args, arg)
	}
	if !fileBound {
		args = append(args, path)
	}
	return d.runner.Run(ctx, d.command, args...)
}
