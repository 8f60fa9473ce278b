package telemetry

import (
	"bytes"
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/fieldform/sensorbridge/telemetry/internal"
)

// headerSize is the size in bytes of the fixed envelope fields preceding
// the payload: global_sequence(4) sensor_tag(1) sensor_type_id(1)
// value_type(1) sensor_sequence(4) system_secs(4) system_millis(2)
// system_nanos(2) payload_kind(1).
const headerSize = 20

// crcSize is the size in bytes of the trailing CRC16 appended to body
// before COBS stuffing.
const crcSize = 2

// minEnvelopeSize is the smallest a de-stuffed span can legally be: a
// header plus a CRC and no payload (the Clock-less empty case never
// occurs in practice, but it is the floor below which a span cannot be a
// valid envelope regardless of payload kind).
const minEnvelopeSize = headerSize + crcSize

// Encode serializes f into a complete wire frame: COBS-stuffed
// body-plus-CRC followed by the single 0x00 delimiter.
func Encode(f Frame) []byte {
	body := encodeBody(f)
	crc := internal.CRC16(body)
	body = append(body, byte(crc), byte(crc>>8))
	stuffed := internal.Stuff(body)
	return append(stuffed, 0)
}

func encodeBody(f Frame) []byte {
	b := make([]byte, headerSize, headerSize+16)
	binary.LittleEndian.PutUint32(b[0:4], f.GlobalSequence)
	b[4] = f.Sensor.SensorTag
	b[5] = f.Sensor.SensorTypeID
	b[6] = byte(f.Sensor.ValueType)
	binary.LittleEndian.PutUint32(b[7:11], f.SensorSequence)
	binary.LittleEndian.PutUint32(b[11:15], f.SystemSecs)
	binary.LittleEndian.PutUint16(b[15:17], f.SystemMillis)
	binary.LittleEndian.PutUint16(b[17:19], f.SystemNanos)
	b[19] = byte(f.Payload.Kind())
	return appendPayload(b, f.Payload)
}

func appendPayload(b []byte, p Payload) []byte {
	switch v := p.(type) {
	case Clock:
		return binary.LittleEndian.AppendUint32(b, v.Ticks)
	case Accelerometer:
		return appendVec3(b, v.Vector3I16)
	case Magnetometer:
		return appendVec3(b, v.Vector3I16)
	case Gyroscope:
		return appendVec3(b, v.Vector3I16)
	case Temperature:
		return appendI16(b, v.Value)
	case Heading:
		return appendI16(b, v.Value)
	case Euler:
		b = appendF32(b, v.Roll)
		b = appendF32(b, v.Pitch)
		return appendF32(b, v.Yaw)
	case Quaternion:
		b = appendF32(b, v.W)
		b = appendF32(b, v.X)
		b = appendF32(b, v.Y)
		return appendF32(b, v.Z)
	case LinearRanges:
		b = append(b, v.ResolutionBits)
		b = append(b, byte(v.Op))
		b = binary.LittleEndian.AppendUint32(b, uint32(v.Offset))
		b = append(b, v.OffsetDiv)
		b = binary.LittleEndian.AppendUint32(b, uint32(v.Scale))
		return append(b, v.ScaleDiv)
	case Identification:
		b = append(b, byte(v.Code))
		value := []byte(v.Value)
		b = append(b, byte(len(value)))
		return append(b, value...)
	default:
		return b
	}
}

func appendVec3(b []byte, v Vector3I16) []byte {
	b = appendI16(b, v.X)
	b = appendI16(b, v.Y)
	return appendI16(b, v.Z)
}

func appendI16(b []byte, v int16) []byte {
	return binary.LittleEndian.AppendUint16(b, uint16(v))
}

func appendF32(b []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
}

func readF32(p []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(p))
}

// decodeFrame parses a de-stuffed, CRC-verified body (CRC already
// stripped) into a Frame. It reports false if payload_kind is unrecognized
// or the payload is short for its declared kind — the Encoding error case
// of spec §4.2.
func decodeFrame(body []byte) (Frame, bool) {
	if len(body) < headerSize {
		return Frame{}, false
	}
	f := Frame{
		GlobalSequence: binary.LittleEndian.Uint32(body[0:4]),
		Sensor: SensorID{
			SensorTag:    body[4],
			SensorTypeID: body[5],
			ValueType:    ValueType(body[6]),
		},
		SensorSequence: binary.LittleEndian.Uint32(body[7:11]),
		SystemSecs:     binary.LittleEndian.Uint32(body[11:15]),
		SystemMillis:   binary.LittleEndian.Uint16(body[15:17]),
		SystemNanos:    binary.LittleEndian.Uint16(body[17:19]),
	}
	kind := PayloadKind(body[19])
	payload, ok := decodePayload(kind, body[headerSize:])
	if !ok {
		return Frame{}, false
	}
	f.Payload = payload
	return f, true
}

func decodePayload(kind PayloadKind, p []byte) (Payload, bool) {
	switch kind {
	case KindClock:
		if len(p) < 4 {
			return nil, false
		}
		return Clock{Ticks: binary.LittleEndian.Uint32(p)}, true
	case KindAccelerometer:
		v, ok := readVec3(p)
		return Accelerometer{v}, ok
	case KindMagnetometer:
		v, ok := readVec3(p)
		return Magnetometer{v}, ok
	case KindGyroscope:
		v, ok := readVec3(p)
		return Gyroscope{v}, ok
	case KindTemperature:
		if len(p) < 2 {
			return nil, false
		}
		return Temperature{Value: readI16(p[0:2])}, true
	case KindHeading:
		if len(p) < 2 {
			return nil, false
		}
		return Heading{Value: readI16(p[0:2])}, true
	case KindEuler:
		if len(p) < 12 {
			return nil, false
		}
		return Euler{Roll: readF32(p[0:4]), Pitch: readF32(p[4:8]), Yaw: readF32(p[8:12])}, true
	case KindQuaternion:
		if len(p) < 16 {
			return nil, false
		}
		return Quaternion{W: readF32(p[0:4]), X: readF32(p[4:8]), Y: readF32(p[8:12]), Z: readF32(p[12:16])}, true
	case KindLinearRanges:
		if len(p) < 12 {
			return nil, false
		}
		return LinearRanges{
			ResolutionBits: p[0],
			Op:             ScaleOp(p[1]),
			Offset:         int32(binary.LittleEndian.Uint32(p[2:6])),
			OffsetDiv:      p[6],
			Scale:          int32(binary.LittleEndian.Uint32(p[7:11])),
			ScaleDiv:       p[11],
		}, true
	case KindIdentification:
		if len(p) < 2 {
			return nil, false
		}
		n := int(p[1])
		if len(p) < 2+n {
			return nil, false
		}
		s := string(bytes.TrimRight(p[2:2+n], "\x00 \t\r\n"))
		if !utf8.ValidString(s) {
			s = ""
		}
		return Identification{Code: IdentifierCode(p[0]), Value: s}, true
	default:
		return nil, false
	}
}

func readVec3(p []byte) (Vector3I16, bool) {
	if len(p) < 6 {
		return Vector3I16{}, false
	}
	return Vector3I16{X: readI16(p[0:2]), Y: readI16(p[2:4]), Z: readI16(p[4:6])}, true
}

func readI16(p []byte) int16 {
	return int16(binary.LittleEndian.Uint16(p))
}
