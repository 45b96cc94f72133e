package ssh

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Run executes command inside dir on the remote host. The command is bounded
// by the configured CommandTimeout. On cancellation the remote process is
// sent SIGTERM, then SIGKILL.
func (c *Client) Run(ctx context.Context, dir string, command string) (*ExecResult, error) {
	client, err := c.getClient()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.CommandTimeout)
	defer cancel()

	session, err := client.NewSession()
	if err != nil {
		return nil, &TransportError{Op: "execute", Err: err, IsTemporary: true}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	finalCmd := command
	if dir != "" {
		finalCmd = "cd " + shellQuote(dir) + " && " + command
	}

	log.Debug().Str("host", c.config.Host).Str("dir", dir).Str("command", command).Msg("executing command")

	result := &ExecResult{StartedAt: time.Now()}
	done := make(chan error, 1)
	go func() {
		done <- session.Run(finalCmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
			_ = session.Signal(ssh.SIGKILL)
		}
		execErr = ctx.Err()
	case execErr = <-done:
	}

	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()

	var exitErr *ssh.ExitError
	switch {
	case execErr == nil:
	case errors.As(execErr, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
		execErr = nil
	default:
		return result, &TransportError{Op: "execute", Err: execErr, IsTemporary: ctx.Err() == nil}
	}

	log.Debug().
		Str("command", command).
		Int("exit_code", result.ExitCode).
		Int("stderr_len", len(result.Stderr)).
		Dur("duration", result.Duration).
		Msg("command completed")
	return result, nil
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
