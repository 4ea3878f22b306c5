package logsource

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ErrScanBudget is returned by a capped reader once the configured byte
// budget is consumed. The engine surfaces it as a retryable failure distinct
// from an unreadable log.
var ErrScanBudget = errors.New("log scan byte budget exceeded")

// Source provides read access to the current contents of the append-only
// call-event log.
type Source interface {
	Open() (io.ReadCloser, error)
}

// FileSource reads an Asterisk queue_log file from disk.
type FileSource struct {
	path     string
	maxBytes int64 // 0 = unbounded
	logger   zerolog.Logger
}

// NewFileSource creates a FileSource capping each scan at maxBytes.
func NewFileSource(path string, maxBytes int64, logger zerolog.Logger) *FileSource {
	return &FileSource{
		path:     path,
		maxBytes: maxBytes,
		logger:   logger.With().Str("component", "logsource").Logger(),
	}
}

// Open opens the log for a full scan. The returned reader fails with
// ErrScanBudget if the file exceeds the byte budget mid-scan.
func (s *FileSource) Open() (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open queue log: %w", err)
	}
	if s.maxBytes <= 0 {
		return f, nil
	}
	return &cappedReadCloser{f: f, remaining: s.maxBytes}, nil
}

type cappedReadCloser struct {
	f         *os.File
	remaining int64
}

func (c *cappedReadCloser) Read(p []byte) (int, error) {
	if c.remaining <= 0 {
		return 0, ErrScanBudget
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.f.Read(p)
	c.remaining -= int64(n)
	if err == io.EOF {
		return n, io.EOF
	}
	if err != nil {
		return n, err
	}
	if c.remaining <= 0 {
		// Budget consumed exactly at the boundary: only an error if there is
		// more file behind it.
		var probe [1]byte
		if m, perr := c.f.Read(probe[:]); m > 0 || (perr != nil && perr != io.EOF) {
			return n, ErrScanBudget
		}
		return n, io.EOF
	}
	return n, nil
}

func (c *cappedReadCloser) Close() error {
	return c.f.Close()
}
