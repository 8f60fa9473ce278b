package telemetry

import "math"

// Convert applies the calibration coefficients in r to a raw device-unit
// reading, producing a calibrated value. The two recognized ScaleOp
// behaviors are the two formulas named in spec §3; any unrecognized
// ScaleOp value is treated as ScaleOffsetThenScale, the more general of
// the two, rather than guessed at further.
func (r LinearRanges) Convert(raw float64) float64 {
	scale := float64(r.Scale) / math.Pow10(int(r.ScaleDiv))
	if r.Op == ScaleMultiply {
		return raw * scale
	}
	offset := float64(r.Offset) / math.Pow10(int(r.OffsetDiv))
	return (raw + offset) * scale
}

// ConvertVec3 applies Convert component-wise.
func (r LinearRanges) ConvertVec3(v Vector3I16) (x, y, z float64) {
	return r.Convert(float64(v.X)), r.Convert(float64(v.Y)), r.Convert(float64(v.Z))
}
