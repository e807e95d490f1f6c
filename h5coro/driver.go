package h5coro

// Byte backends. Every parser read funnels through the I/O cache into one of
// these drivers; reads are positional and stateless so a single driver handle
// can serve concurrent readers.

import (
	"io"
	"os"
	"strings"
)

type ioDriver interface {
	// read fills p from the resource starting at pos and returns the number
	// of bytes read. A short read is reported through the count, not the
	// error; only real I/O failures set the error.
	read(p []byte, pos uint64) (int64, error)
	close() error
}

// openDriver resolves the URL scheme, opens the resource and returns the
// driver together with the resource string (path, or bucket/key).
func openDriver(url string) (ioDriver, string, error) {
	switch {
	case strings.HasPrefix(url, "file://"):
		resource := strings.TrimPrefix(url, "file://")
		drv, err := openFileDriver(resource)
		return drv, resource, err

	case strings.HasPrefix(url, "s3://"):
		resource := strings.TrimPrefix(url, "s3://")
		drv, err := openS3Driver(resource)
		return drv, resource, err

	default:
		return nil, "", ErrInvalidURL
	}
}

type fileDriver struct {
	file *os.File
}

func openFileDriver(path string) (*fileDriver, error) {
	f, err := os.Open(path)
	if err != nil {
		logger.Error("open failed:", path, err)
		return nil, ErrOpenFailed
	}
	return &fileDriver{file: f}, nil
}

func (d *fileDriver) read(p []byte, pos uint64) (int64, error) {
	n, err := d.file.ReadAt(p, int64(pos))
	if err == io.EOF {
		// reading past the end is a short read, not a failure
		err = nil
	}
	return int64(n), err
}

func (d *fileDriver) close() error {
	return d.file.Close()
}
