package telemetry

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// RawTap tees every byte read off the serial link to a file, optionally
// gzip-compressed. A ".gz" suffix on the path selects gzip at the default
// compression level; any other suffix writes plain bytes.
type RawTap struct {
	f   *os.File
	buf *bufio.Writer
	gz  *gzip.Writer
}

// OpenRawTap creates (truncating) the file at path and returns a RawTap
// writing to it.
func OpenRawTap(path string) (*RawTap, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	t := &RawTap{f: f, buf: bufio.NewWriter(f)}
	if strings.HasSuffix(path, ".gz") {
		t.gz = gzip.NewWriter(t.buf)
	}
	return t, nil
}

// Write implements io.Writer. On error the tap makes a best effort to
// flush what it already buffered before returning the error, mirroring
// the original dumper's flush-then-fail behavior.
func (t *RawTap) Write(p []byte) (int, error) {
	var w io.Writer = t.buf
	if t.gz != nil {
		w = t.gz
	}
	n, err := w.Write(p)
	if err != nil {
		t.flushBestEffort()
		return n, err
	}
	return n, nil
}

func (t *RawTap) flushBestEffort() {
	if t.gz != nil {
		if err := t.gz.Flush(); err != nil {
			logrus.WithField("component", "rawtap").WithError(err).Warn("gzip flush failed")
		}
	}
	if err := t.buf.Flush(); err != nil {
		logrus.WithField("component", "rawtap").WithError(err).Warn("buffer flush failed")
	}
}

// Close flushes and closes the underlying file.
func (t *RawTap) Close() error {
	var gzErr error
	if t.gz != nil {
		gzErr = t.gz.Close()
	}
	bufErr := t.buf.Flush()
	closeErr := t.f.Close()
	if gzErr != nil {
		return gzErr
	}
	if bufErr != nil {
		return bufErr
	}
	return closeErr
}
