package telemetry

import "fmt"

// SensorID identifies a single logical sensor stream. Two frames compare
// equal as the same sensor only when all three fields match; a device can
// carry several sensors of the same type (e.g. two accelerometers) so
// SensorTag alone is not sufficient, and a single physical sensor can emit
// more than one ValueType (e.g. a calibrated and a raw stream).
type SensorID struct {
	SensorTag    uint8
	SensorTypeID uint8
	ValueType    ValueType
}

func (s SensorID) String() string {
	return fmt.Sprintf("%02x-%d-%s", s.SensorTag, s.SensorTypeID, s.ValueType)
}

// ValueType is the wire data-type code a sensor stream is encoded with. It
// is part of a SensorID's identity alongside SensorTag/SensorTypeID: the
// same physical sensor can expose more than one stream (e.g. a raw integer
// reading and a floating point orientation estimate) and each is tracked
// separately.
type ValueType uint8

// Valid values for ValueType.
const (
	ValueTypeU8 ValueType = iota
	ValueTypeI8
	ValueTypeU16
	ValueTypeI16
	ValueTypeU32
	ValueTypeI32
	ValueTypeU64
	ValueTypeI64
	ValueTypeF32
	ValueTypeF64
	ValueTypeLinearRange
	ValueTypeIdentifier
)

func (v ValueType) String() string {
	switch v {
	case ValueTypeU8:
		return "u8"
	case ValueTypeI8:
		return "i8"
	case ValueTypeU16:
		return "u16"
	case ValueTypeI16:
		return "i16"
	case ValueTypeU32:
		return "u32"
	case ValueTypeI32:
		return "i32"
	case ValueTypeU64:
		return "u64"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeLinearRange:
		return "lrange"
	case ValueTypeIdentifier:
		return "ident"
	default:
		return "unknown"
	}
}

// PayloadKind identifies which concrete Payload a Frame carries.
type PayloadKind uint8

// Valid values for PayloadKind. These are also the wire tag byte values;
// renumbering them breaks decoding of previously recorded raw taps.
const (
	KindClock PayloadKind = iota
	KindAccelerometer
	KindMagnetometer
	KindGyroscope
	KindTemperature
	KindHeading
	KindEuler
	KindQuaternion
	KindLinearRanges
	KindIdentification
)

func (k PayloadKind) String() string {
	switch k {
	case KindClock:
		return "clock"
	case KindAccelerometer:
		return "acc"
	case KindMagnetometer:
		return "mag"
	case KindGyroscope:
		return "gyro"
	case KindTemperature:
		return "temp"
	case KindHeading:
		return "heading"
	case KindEuler:
		return "euler"
	case KindQuaternion:
		return "quat"
	case KindLinearRanges:
		return "lranges"
	case KindIdentification:
		return "ident"
	default:
		return "unknown"
	}
}

// Payload is implemented by every concrete sensor value type. It is a closed
// set; Kind identifies which one a given value is without a type switch on
// every caller.
type Payload interface {
	Kind() PayloadKind
}

// Vector3I16 is the common shape shared by Accelerometer, Magnetometer and
// Gyroscope readings: three signed 16-bit device-unit components.
type Vector3I16 struct {
	X, Y, Z int16
}

// Accelerometer is a raw or calibrated 3-axis accelerometer reading.
type Accelerometer struct{ Vector3I16 }

func (Accelerometer) Kind() PayloadKind { return KindAccelerometer }

// Magnetometer is a raw or calibrated 3-axis magnetometer reading.
type Magnetometer struct{ Vector3I16 }

func (Magnetometer) Kind() PayloadKind { return KindMagnetometer }

// Gyroscope is a raw or calibrated 3-axis gyroscope reading.
type Gyroscope struct{ Vector3I16 }

func (Gyroscope) Kind() PayloadKind { return KindGyroscope }

// Temperature is a single scalar device-unit temperature reading.
type Temperature struct {
	Value int16
}

func (Temperature) Kind() PayloadKind { return KindTemperature }

// Heading is a single scalar heading in device units (e.g. centi-degrees).
type Heading struct {
	Value int16
}

func (Heading) Kind() PayloadKind { return KindHeading }

// Euler is a roll/pitch/yaw orientation estimate. Unlike the other sensor
// kinds it is carried on the wire as three float32 components rather than
// scaled integers, matching the device's own orientation-filter output.
type Euler struct {
	Roll, Pitch, Yaw float32
}

func (Euler) Kind() PayloadKind { return KindEuler }

// Quaternion is a w/x/y/z orientation estimate, carried on the wire as four
// float32 components for the same reason as Euler.
type Quaternion struct {
	W, X, Y, Z float32
}

func (Quaternion) Kind() PayloadKind { return KindQuaternion }

// ScaleOp selects the calibration formula a LinearRanges frame applies.
// See SPEC_FULL.md "Wire envelope" for the two recognized behaviors.
type ScaleOp uint8

// Valid values for ScaleOp.
const (
	ScaleMultiply        ScaleOp = 0
	ScaleOffsetThenScale ScaleOp = 1
)

// LinearRanges carries the affine calibration coefficients and resolution
// for the sensor named by the enclosing Frame's SensorTag/SensorTypeID
// pair. ResolutionBits is the ADC/register width the raw readings were
// taken at (e.g. 12, 16); it has no effect on Convert but is recorded for
// the CSV dump and any downstream consumer that needs it.
type LinearRanges struct {
	ResolutionBits uint8
	Op             ScaleOp
	Offset         int32
	OffsetDiv      uint8 // offset is divided by 10^OffsetDiv before use
	Scale          int32
	ScaleDiv       uint8 // scale is divided by 10^ScaleDiv before use
}

func (LinearRanges) Kind() PayloadKind { return KindLinearRanges }

// IdentifierCode distinguishes what an Identification frame's Value names.
type IdentifierCode uint8

// Valid values for IdentifierCode.
const (
	IdentifierGeneric IdentifierCode = iota
	IdentifierMaker
	IdentifierProduct
	IdentifierRevision
)

func (c IdentifierCode) String() string {
	switch c {
	case IdentifierGeneric:
		return "generic"
	case IdentifierMaker:
		return "maker"
	case IdentifierProduct:
		return "product"
	case IdentifierRevision:
		return "revision"
	default:
		return "unknown"
	}
}

// Identification carries a single piece of device/product metadata for the
// sensor named by the enclosing Frame's SensorTag/SensorTypeID pair. A
// device typically emits one frame per IdentifierCode it knows (maker,
// product, revision, ...) rather than bundling them into one payload.
type Identification struct {
	Code  IdentifierCode
	Value string
}

func (Identification) Kind() PayloadKind { return KindIdentification }

// Clock carries the device's own free-running clock tick count, used to
// cross check SystemSecs/SystemMillis/SystemNanos drift. On the wire it is
// a single little-endian uint32 following the common envelope.
type Clock struct {
	Ticks uint32
}

func (Clock) Kind() PayloadKind { return KindClock }

const (
	sentinelSecs  = 0xFFFFFFFF
	sentinelMilli = 0xFFFF
	sentinelNanos = 0xFFFF
)

// Frame is one decoded, CRC-verified unit of sensor telemetry.
type Frame struct {
	GlobalSequence uint32
	Sensor         SensorID
	SensorSequence uint32

	// SystemSecs/SystemMillis/SystemNanos are the device's wall-clock
	// estimate at the time of the reading; see DeviceTime for sentinel
	// handling.
	SystemSecs   uint32
	SystemMillis uint16
	SystemNanos  uint16

	Payload Payload
}

// DeviceTime returns the device's wall-clock estimate in fractional
// seconds, eliding whichever of SystemSecs/SystemMillis/SystemNanos carry
// their sentinel "unknown" value (all-ones for their width). If SystemSecs
// is the sentinel the whole result is 0, since the device reported no
// wall-clock basis at all; the millis/nanos sentinels are elided
// individually since they can be unknown while the seconds term is not.
func (f Frame) DeviceTime() float64 {
	if f.SystemSecs == sentinelSecs {
		return 0
	}
	t := float64(f.SystemSecs)
	if f.SystemMillis != sentinelMilli {
		t += float64(f.SystemMillis) / 1e3
	}
	if f.SystemNanos != sentinelNanos {
		t += float64(f.SystemNanos) / 1e6
	}
	return t
}
