package telemetry

import (
	"errors"
	"io"
	"os"

	"github.com/jacobsa/go-serial/serial"
	"github.com/maruel/interrupt"
	"github.com/sirupsen/logrus"
)

// readChunkSize is the buffer size for each Read off the link.
const readChunkSize = 4096

// Source is the serial link a device is attached on: C1. It reads raw
// bytes and pushes them to a channel for the decoder (C2) to consume.
type Source struct {
	port io.ReadWriteCloser
}

// OpenSource opens portName at baud with the fixed link parameters spec
// §4.1 requires: 8 data bits, no parity, 1 stop bit, no flow control, and
// a 10ms read timeout.
func OpenSource(portName string, baud uint) (*Source, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		MinimumReadSize:       0,
		InterCharacterTimeout: 10, // milliseconds
	})
	if err != nil {
		return nil, err
	}
	return &Source{port: port}, nil
}

// Close releases the underlying port.
func (s *Source) Close() error {
	return s.port.Close()
}

// Run reads from the link until interrupt.Channel is closed or a fatal I/O
// error occurs, pushing each non-empty read onto out. Read-timeout errors
// (no bytes available within the 10ms window) are silently ignored per
// spec §7; any other I/O error is fatal and reported on done.
func (s *Source) Run(out chan<- []byte, done chan<- error) {
	buf := make([]byte, readChunkSize)
	for {
		select {
		case <-interrupt.Channel:
			done <- nil
			return
		default:
		}

		n, err := s.port.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			out <- cp
		}
		if err == nil {
			continue
		}
		if isTimeout(err) {
			continue
		}
		logrus.WithFields(logrus.Fields{
			"component": "serial",
		}).WithError(err).Error("fatal I/O error on link")
		done <- err
		return
	}
}

// RunCommands writes each UTF-8 command string received on cmds verbatim
// to the link, until interrupt.Channel closes, cmds is closed, or a fatal
// I/O error occurs — the outbound half of C1, run concurrently with Run's
// inbound read loop on the same port.
func (s *Source) RunCommands(cmds <-chan string, done chan<- error) {
	for {
		select {
		case <-interrupt.Channel:
			done <- nil
			return
		case cmd, ok := <-cmds:
			if !ok {
				done <- nil
				return
			}
			if _, err := io.WriteString(s.port, cmd); err != nil {
				logrus.WithFields(logrus.Fields{
					"component": "serial",
				}).WithError(err).Error("fatal I/O error writing command")
				done <- err
				return
			}
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Timeout()
	}
	return false
}
