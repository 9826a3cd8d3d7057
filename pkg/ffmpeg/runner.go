// Package ffmpeg drives the external transcoder binary: bounded live-stream
// capture, clip re-encoding, thumbnail and preview-frame extraction.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner locates the transcoder binary. The zero value uses "ffmpeg" from
// PATH; tests substitute a stub.
type Runner struct {
	Path string
}

func (r Runner) binary() string {
	if strings.TrimSpace(r.Path) == "" {
		return "ffmpeg"
	}
	return r.Path
}

// Process is a running transcoder invocation with lifecycle management.
type Process struct {
	cmd    *exec.Cmd
	done   chan struct{}
	err    error
	stderr bytes.Buffer
}

// Wait blocks until the process exits and returns its error, if any.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Kill terminates the process immediately.
func (p *Process) Kill() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Done returns a channel that closes when the process exits.
func (p *Process) Done() <-chan struct{} { return p.done }

// Stderr returns the captured stderr output (complete after Wait).
func (p *Process) Stderr() string { return p.stderr.String() }

// Start launches the transcoder. When progress is non-nil, "-progress
// pipe:1" reporting is enabled and parsed updates are delivered on the
// channel, which is closed when the process exits. Context cancellation
// kills the subprocess.
func (r Runner) Start(ctx context.Context, args []string, progress chan<- Progress) (*Process, error) {
	if progress != nil {
		args = append([]string{"-progress", "pipe:1", "-nostats"}, args...)
	}
	cmd := exec.CommandContext(ctx, r.binary(), args...)

	p := &Process{cmd: cmd, done: make(chan struct{})}
	cmd.Stderr = &p.stderr

	if progress == nil {
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("ffmpeg: start: %w", err)
		}
		go func() {
			defer close(p.done)
			p.err = p.wrapWait(cmd.Wait(), args)
		}()
		return p, nil
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: start: %w", err)
	}

	go func() {
		defer close(p.done)
		scanner := bufio.NewScanner(stdout)
		parser := NewProgressParser()
		for scanner.Scan() {
			if parser.ParseLine(scanner.Text()) {
				progress <- parser.Current()
				if parser.Current().End() {
					break
				}
			}
		}
		p.err = p.wrapWait(cmd.Wait(), args)
		close(progress)
	}()
	return p, nil
}

// Run executes and waits.
func (r Runner) Run(ctx context.Context, args []string) error {
	proc, err := r.Start(ctx, args, nil)
	if err != nil {
		return err
	}
	return proc.Wait()
}

func (p *Process) wrapWait(waitErr error, args []string) error {
	if waitErr == nil {
		return nil
	}
	return &Error{Args: args, Stderr: p.stderr.String(), Err: waitErr}
}

// Error is a transcoder failure carrying the stderr tail.
type Error struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	tail := strings.TrimSpace(strings.Join(lines, "\n"))
	if tail != "" {
		return fmt.Sprintf("ffmpeg: %v: %s", e.Err, tail)
	}
	return fmt.Sprintf("ffmpeg: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
