package telemetry

import (
	"bytes"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldform/sensorbridge/telemetry/internal"
)

// DecodeStatus reports the outcome of one Accumulator.Next attempt.
type DecodeStatus int

// Valid values for DecodeStatus.
const (
	// StatusTruncated means no complete delimiter-terminated span is
	// buffered yet; more bytes are needed.
	StatusTruncated DecodeStatus = iota
	// StatusCorrupt means a delimited span failed COBS destuffing, was
	// shorter than the minimum envelope, or failed its CRC check. Next
	// does not return it: such a span is counted in Corrupt and discarded,
	// the data buffered after it is kept, and the scan moves on to the
	// next delimiter.
	StatusCorrupt
	// StatusEncodingError means a span passed CRC but named an
	// unrecognized payload kind or a too-short payload. The entire
	// accumulator is cleared: the stream's framing can no longer be
	// trusted past this point.
	StatusEncodingError
	// StatusOK means a Frame was successfully decoded and drained.
	StatusOK
)

// maxAccumulatorBytes caps how much unsynced data Accumulator will hold
// before giving up and clearing, so a device that never emits a 0x00
// cannot grow the buffer without bound.
const maxAccumulatorBytes = 64 * 1024

// Accumulator incrementally decodes a byte stream into Frames. It is not
// safe for concurrent use; a single goroutine (C2) owns it.
type Accumulator struct {
	buf []byte

	lastTruncatedWarn time.Time

	Frames     uint64
	Corrupt    uint64
	Encoding   uint64
	Truncated  uint64
	Overflowed uint64
}

// NewAccumulator returns an empty decoder.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Write appends raw bytes read off the link to the accumulator.
func (a *Accumulator) Write(p []byte) {
	a.buf = append(a.buf, p...)
	if len(a.buf) > maxAccumulatorBytes {
		a.Overflowed++
		logrus.WithFields(logrus.Fields{
			"component": "decode",
			"bytes":     len(a.buf),
		}).Error("accumulator overflow, discarding unsynced data")
		a.buf = a.buf[:0]
	}
}

// Next attempts to decode one Frame from the currently buffered data. It
// returns StatusTruncated when no complete frame is available yet; callers
// should loop calling Next after each Write until it returns
// StatusTruncated.
func (a *Accumulator) Next() (Frame, DecodeStatus) {
	for {
		delim := bytes.IndexByte(a.buf, 0)
		if delim < 0 {
			a.Truncated++
			a.rateLimitedTruncatedLog()
			return Frame{}, StatusTruncated
		}

		span := a.buf[:delim]
		stuffed, ok := internal.Destuff(span)
		if !ok || len(stuffed) < minEnvelopeSize {
			a.Corrupt++
			logrus.WithFields(logrus.Fields{
				"component": "decode",
				"bytes":     len(span),
			}).Error("corrupt frame, skipping to next delimiter")
			a.buf = a.buf[delim+1:]
			continue
		}

		body, crcBytes := stuffed[:len(stuffed)-crcSize], stuffed[len(stuffed)-crcSize:]
		wantCRC := uint16(crcBytes[0]) | uint16(crcBytes[1])<<8
		if internal.CRC16(body) != wantCRC {
			a.Corrupt++
			logrus.WithFields(logrus.Fields{
				"component": "decode",
				"bytes":     len(span),
			}).Error("CRC mismatch, skipping to next delimiter")
			a.buf = a.buf[delim+1:]
			continue
		}

		frame, ok := decodeFrame(body)
		if !ok {
			a.Encoding++
			logrus.WithFields(logrus.Fields{
				"component": "decode",
			}).Error("unreadable payload, clearing accumulator")
			a.buf = a.buf[:0]
			return Frame{}, StatusEncodingError
		}

		a.buf = a.buf[delim+1:]
		for len(a.buf) > 0 && a.buf[0] == 0 {
			a.buf = a.buf[1:]
		}
		a.Frames++
		return frame, StatusOK
	}
}

func (a *Accumulator) rateLimitedTruncatedLog() {
	now := time.Now()
	if now.Sub(a.lastTruncatedWarn) < time.Second {
		return
	}
	a.lastTruncatedWarn = now
	logrus.WithFields(logrus.Fields{
		"component": "decode",
		"bytes":     len(a.buf),
	}).Warn("waiting for more data, no frame delimiter buffered")
}
