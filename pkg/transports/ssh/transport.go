// Package ssh runs simulation plans on a remote render host.
//
// A Client holds one SSH connection and opens an SFTP session on it for file
// transfer. RemoteExecutor adapts any Transport to the engine executor: the
// project folder is pushed to the host, each step runs there and the result
// files are pulled back.
package ssh

import (
	"context"
	"time"
)

// Transport is the remote host surface the executor needs.
type Transport interface {
	// Run executes command inside dir on the remote host. A non-zero exit
	// status is reported in the result, not as an error.
	Run(ctx context.Context, dir string, command string) (*ExecResult, error)

	// UploadDirectory recursively uploads a local directory.
	UploadDirectory(ctx context.Context, localPath string, remotePath string) error

	// DownloadFile downloads a single remote file.
	DownloadFile(ctx context.Context, remotePath string, localPath string) error

	// DownloadDirectory recursively downloads a remote directory.
	DownloadDirectory(ctx context.Context, remotePath string, localPath string) error

	// Exists reports whether a remote path exists.
	Exists(ctx context.Context, remotePath string) (bool, error)
}

// ConnectionInfo contains details about an active SSH connection.
type ConnectionInfo struct {
	// Host is the remote hostname or IP address
	Host string

	// Port is the SSH port number
	Port int

	// User is the SSH username
	User string

	// ConnectedAt is when the connection was established
	ConnectedAt time.Time

	// ServerVersion is the SSH server version string
	ServerVersion string
}

// ExecResult contains the result of a remote command.
type ExecResult struct {
	// Stdout contains the standard output
	Stdout string

	// Stderr contains the standard error
	Stderr string

	// ExitCode is the command exit code
	ExitCode int

	// StartedAt is when the command started
	StartedAt time.Time

	// FinishedAt is when the command finished
	FinishedAt time.Time

	// Duration is how long the command took
	Duration time.Duration
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "exec", "upload")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
