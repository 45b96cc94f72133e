package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// UploadFile uploads a single file to the remote host via SFTP.
func (c *Client) UploadFile(ctx context.Context, localPath string, remotePath string, mode uint32) error {
	sc, err := c.getSFTP()
	if err != nil {
		return err
	}
	return uploadFile(ctx, sc, localPath, remotePath, mode)
}

// DownloadFile downloads a single file from the remote host via SFTP.
func (c *Client) DownloadFile(ctx context.Context, remotePath string, localPath string) error {
	sc, err := c.getSFTP()
	if err != nil {
		return err
	}
	return downloadFile(ctx, sc, remotePath, localPath)
}

// UploadDirectory recursively uploads a directory to the remote host.
func (c *Client) UploadDirectory(ctx context.Context, localPath string, remotePath string) error {
	sc, err := c.getSFTP()
	if err != nil {
		return err
	}
	return uploadDirectory(ctx, sc, localPath, remotePath)
}

// DownloadDirectory recursively downloads a directory from the remote host.
func (c *Client) DownloadDirectory(ctx context.Context, remotePath string, localPath string) error {
	sc, err := c.getSFTP()
	if err != nil {
		return err
	}
	return downloadDirectory(ctx, sc, remotePath, localPath)
}

// Exists reports whether remotePath exists on the host.
func (c *Client) Exists(ctx context.Context, remotePath string) (bool, error) {
	sc, err := c.getSFTP()
	if err != nil {
		return false, err
	}
	return exists(sc, remotePath)
}

func exists(sc *sftp.Client, remotePath string) (bool, error) {
	_, err := sc.Stat(remotePath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, &TransportError{Op: "stat", Err: err, IsTemporary: true}
}

func uploadFile(ctx context.Context, sc *sftp.Client, localPath string, remotePath string, mode uint32) error {
	startTime := time.Now()

	localFile, err := os.Open(localPath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to open local file: %w", err)}
	}
	defer localFile.Close()

	if err := sc.MkdirAll(path.Dir(remotePath)); err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create remote directory: %w", err)}
	}

	remoteFile, err := sc.Create(remotePath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create remote file: %w", err), IsTemporary: true}
	}
	defer remoteFile.Close()

	written, err := copyWithContext(ctx, remoteFile, localFile)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to copy file: %w", err), IsTemporary: true}
	}

	if mode > 0 {
		if err := sc.Chmod(remotePath, os.FileMode(mode)); err != nil {
			log.Warn().Err(err).Str("remote", remotePath).Msg("failed to set file permissions")
		}
	}

	log.Debug().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", written).
		Dur("duration", time.Since(startTime)).
		Msg("file uploaded")
	return nil
}

func downloadFile(ctx context.Context, sc *sftp.Client, remotePath string, localPath string) error {
	startTime := time.Now()

	remoteFile, err := sc.Open(remotePath)
	if err != nil {
		return &TransportError{Op: "download", Err: fmt.Errorf("failed to open remote file: %w", err), IsTemporary: true}
	}
	defer remoteFile.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return &TransportError{Op: "download", Err: fmt.Errorf("failed to create local directory: %w", err)}
	}

	localFile, err := os.Create(localPath)
	if err != nil {
		return &TransportError{Op: "download", Err: fmt.Errorf("failed to create local file: %w", err)}
	}
	defer localFile.Close()

	written, err := copyWithContext(ctx, localFile, remoteFile)
	if err != nil {
		return &TransportError{Op: "download", Err: fmt.Errorf("failed to copy file: %w", err), IsTemporary: true}
	}

	log.Debug().
		Str("remote", remotePath).
		Str("local", localPath).
		Int64("bytes", written).
		Dur("duration", time.Since(startTime)).
		Msg("file downloaded")
	return nil
}

func uploadDirectory(ctx context.Context, sc *sftp.Client, localPath string, remotePath string) error {
	log.Debug().Str("local", localPath).Str("remote", remotePath).Msg("uploading directory")

	return filepath.WalkDir(localPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(localPath, p)
		if err != nil {
			return err
		}
		target := path.Join(remotePath, filepath.ToSlash(rel))

		if d.IsDir() {
			if err := sc.MkdirAll(target); err != nil {
				return &TransportError{Op: "upload-dir", Err: fmt.Errorf("failed to create directory %s: %w", target, err)}
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return uploadFile(ctx, sc, p, target, uint32(info.Mode().Perm()))
	})
}

func downloadDirectory(ctx context.Context, sc *sftp.Client, remotePath string, localPath string) error {
	log.Debug().Str("remote", remotePath).Str("local", localPath).Msg("downloading directory")

	walker := sc.Walk(remotePath)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return &TransportError{Op: "download-dir", Err: fmt.Errorf("failed to walk remote directory: %w", err), IsTemporary: true}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(remotePath, walker.Path())
		if err != nil {
			return err
		}
		target := filepath.Join(localPath, rel)

		if walker.Stat().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
			continue
		}
		if err := downloadFile(ctx, sc, walker.Path(), target); err != nil {
			return err
		}
	}
	return nil
}

// copyWithContext copies data from src to dst while respecting context cancellation.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, err
		}
	}
}
