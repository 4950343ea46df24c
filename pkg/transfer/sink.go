// Package transfer materializes receipt documents from the API into local or
// cloud storage, gated by the receipts family's transfer tracker.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sink persists a document stream under name and returns where it ended up.
type Sink interface {
	Write(ctx context.Context, name string, r io.Reader) (string, error)
}

// FileSink writes documents into a local directory. Each document is written
// to a temporary file first and renamed into place, so readers never see a
// partial file.
type FileSink struct {
	dir    string
	logger zerolog.Logger
}

// NewFileSink creates dir if needed and returns a sink writing into it.
func NewFileSink(dir string, logger zerolog.Logger) (*FileSink, error) {
	if dir == "" {
		return nil, errors.New("directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return &FileSink{
		dir:    dir,
		logger: logger.With().Str("component", "FileSink").Str("dir", dir).Logger(),
	}, nil
}

// Write copies r into dir/name.
func (s *FileSink) Write(ctx context.Context, name string, r io.Reader) (string, error) {
	final := filepath.Join(s.dir, filepath.Base(name))
	tmp := filepath.Join(s.dir, "."+uuid.NewString()+".part")

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	n, err := io.Copy(f, contextReader{ctx: ctx, r: r})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to move %s into place: %w", name, err)
	}

	s.logger.Info().Str("path", final).Int64("bytes", n).Msg("Stored receipt document.")
	return final, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
