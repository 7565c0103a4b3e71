package client

import (
	"fmt"
	"io"
	"os/exec"
	"time"
)

// StdioTransport connects to a JSON-RPC server running as a subprocess,
// exchanging newline-delimited JSON over its stdin and stdout.
type StdioTransport struct {
	*StreamTransport

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr io.ReadCloser
	grace  time.Duration
}

// NewStdioTransport starts command and connects to its stdio.
func NewStdioTransport(command string, args ...string) (*StdioTransport, error) {
	cmd := exec.Command(command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	return &StdioTransport{
		StreamTransport: newStreamTransport(stdout, stdin, stdin),
		cmd:             cmd,
		stdin:           stdin,
		stderr:          stderr,
		grace:           2 * time.Second,
	}, nil
}

// Close closes stdin and gives the subprocess a grace period to exit
// before killing it.
func (t *StdioTransport) Close() error {
	_ = t.shutdown()

	select {
	case <-t.done:
	case <-time.After(t.grace):
	}
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	// Wait closes stdout, so the reader must be finished first.
	<-t.done
	return t.cmd.Wait()
}

// Stderr returns the stderr reader for the subprocess.
func (t *StdioTransport) Stderr() io.Reader {
	return t.stderr
}
