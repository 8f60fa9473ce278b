package telemetry

import (
	"testing"

	"github.com/fieldform/sensorbridge/telemetry/internal"
)

func sampleFrame() Frame {
	return Frame{
		GlobalSequence: 42,
		Sensor:         SensorID{SensorTag: 0x01, SensorTypeID: 2, ValueType: ValueTypeI16},
		SensorSequence: 7,
		SystemSecs:     100,
		SystemMillis:   250,
		SystemNanos:    500,
		Payload:        Accelerometer{Vector3I16{X: 10, Y: -20, Z: 30}},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := sampleFrame()
	wire := Encode(f)

	a := NewAccumulator()
	a.Write(wire)
	got, status := a.Next()
	if status != StatusOK {
		t.Fatalf("status = %v, want StatusOK", status)
	}
	if got.GlobalSequence != f.GlobalSequence || got.Sensor != f.Sensor || got.SensorSequence != f.SensorSequence {
		t.Fatalf("got %+v, want %+v", got, f)
	}
	acc, ok := got.Payload.(Accelerometer)
	if !ok {
		t.Fatalf("payload type = %T, want Accelerometer", got.Payload)
	}
	if acc.Vector3I16 != f.Payload.(Accelerometer).Vector3I16 {
		t.Fatalf("payload = %+v, want %+v", acc, f.Payload)
	}

	if _, status := a.Next(); status != StatusTruncated {
		t.Fatalf("second Next() status = %v, want StatusTruncated (buffer should be drained)", status)
	}
}

func TestTruncatedWaitsForMoreData(t *testing.T) {
	a := NewAccumulator()
	a.Write([]byte{0x01, 0x02, 0x03})
	if _, status := a.Next(); status != StatusTruncated {
		t.Fatalf("status = %v, want StatusTruncated", status)
	}
}

// TestResyncAfterGarbage verifies that garbage ∥ 0 ∥ encode(F) decodes to
// exactly one Frame in a single pass: the garbage span is skipped as
// Corrupt and the scan continues within the same buffered data rather
// than waiting for more bytes.
func TestResyncAfterGarbage(t *testing.T) {
	f := sampleFrame()
	garbage := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	stream := append(append(garbage, 0x00), Encode(f)...)

	a := NewAccumulator()
	a.Write(stream)

	got, status := a.Next()
	if status != StatusOK {
		t.Fatalf("status = %v, want StatusOK", status)
	}
	if got.Sensor != f.Sensor {
		t.Fatalf("got sensor %+v, want %+v", got.Sensor, f.Sensor)
	}
	if a.Corrupt == 0 {
		t.Fatal("expected the garbage span to be counted as corrupt")
	}

	if _, status := a.Next(); status != StatusTruncated {
		t.Fatalf("after draining, status = %v, want StatusTruncated", status)
	}
}

func TestCorruptCRCSkipsSpanWithoutDroppingData(t *testing.T) {
	f := sampleFrame()
	body := encodeBody(f)
	correctCRC := internal.CRC16(body)

	// Flip a payload byte so the body no longer matches its own CRC, but
	// the structure (length, COBS stuffing) stays well-formed.
	corruptedBody := append([]byte{}, body...)
	corruptedBody[len(corruptedBody)-1] ^= 0xFF
	corruptedBody = append(corruptedBody, byte(correctCRC), byte(correctCRC>>8))
	corruptedWire := append(internal.Stuff(corruptedBody), 0)

	a := NewAccumulator()
	a.Write(corruptedWire)
	a.Write(Encode(f))

	got, status := a.Next()
	if status != StatusOK {
		t.Fatalf("status = %v, want StatusOK after skipping the corrupt span", status)
	}
	if got.Sensor != f.Sensor {
		t.Fatalf("got %+v, want %+v", got.Sensor, f.Sensor)
	}
	if a.Corrupt == 0 {
		t.Fatal("expected the first frame to be counted as corrupt")
	}
}

func TestEncodingErrorClearsAccumulator(t *testing.T) {
	f := sampleFrame()
	body := encodeBody(f)
	// Use an unrecognized payload_kind byte; CRC is computed over the
	// already-invalid body so it still matches when recomputed the same
	// way, but decodeFrame must reject the kind.
	body[19] = 0xFE
	crc := internal.CRC16(body)
	body = append(body, byte(crc), byte(crc>>8))
	wire := append(internal.Stuff(body), 0)

	// Follow it with a second, valid frame in the same Write.
	wire = append(wire, Encode(f)...)

	a := NewAccumulator()
	a.Write(wire)

	_, status := a.Next()
	if status != StatusEncodingError {
		t.Fatalf("status = %v, want StatusEncodingError", status)
	}
	if a.Encoding == 0 {
		t.Fatal("expected Encoding counter to increment")
	}

	// The accumulator was cleared, so the trailing valid frame is gone
	// too: the next call must report Truncated, not recover it.
	if _, status := a.Next(); status != StatusTruncated {
		t.Fatalf("status = %v, want StatusTruncated (accumulator should have been cleared)", status)
	}
}

func TestAccumulatorOverflowClears(t *testing.T) {
	a := NewAccumulator()
	a.Write(make([]byte, maxAccumulatorBytes+1))
	if len(a.buf) != 0 {
		t.Fatalf("accumulator should have cleared on overflow, len = %d", len(a.buf))
	}
	if a.Overflowed == 0 {
		t.Fatal("expected Overflowed counter to increment")
	}
}

func TestDeviceTimeSentinelElision(t *testing.T) {
	f := Frame{SystemSecs: 5, SystemMillis: sentinelMilli, SystemNanos: 250}
	if got, want := f.DeviceTime(), 5.00025; got != want {
		t.Fatalf("DeviceTime() = %v, want %v", got, want)
	}

	secsSentinel := Frame{SystemSecs: sentinelSecs, SystemMillis: 999, SystemNanos: 999}
	if got := secsSentinel.DeviceTime(); got != 0 {
		t.Fatalf("DeviceTime() = %v, want 0 when seconds is the sentinel", got)
	}
}
