package telemetry

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// hostTimeSeconds returns the ingesting host's wall clock as seconds since
// the Unix epoch, matching the device-independent "host_time" column.
func hostTimeSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func pow10(n uint8) float64 {
	return math.Pow10(int(n))
}

type csvFile struct {
	f    *os.File
	w    *csv.Writer
	kind PayloadKind
}

// Dumper writes one CSV file per distinct SensorID, named
// "{tag}-{sensor_type}-{value_type}-x{components}.csv" (tag in decimal,
// sensor_type and value_type as their short string codes), with a header
// row written the first time a given SensorID is seen. It keeps its own
// calibration table (independent of any Buffer), keyed by
// SensorTag/SensorTypeID so a LinearRanges frame's own ValueType never
// has to match the stream it corrects, and writes a dedicated row to the
// LinearRanges frame's own file as well as updating that table.
type Dumper struct {
	dir    string
	files  map[SensorID]*csvFile
	ranges map[sensorKey]LinearRanges
}

// NewDumper returns a Dumper that creates files under dir.
func NewDumper(dir string) *Dumper {
	return &Dumper{
		dir:    dir,
		files:  make(map[SensorID]*csvFile),
		ranges: make(map[sensorKey]LinearRanges),
	}
}

// Ingest writes f's data row, creating the file and header for f.Sensor on
// first sight. LinearRanges frames additionally update the dumper's
// calibration table, keyed by the frame's SensorTag/SensorTypeID.
func (d *Dumper) Ingest(f Frame) error {
	key := sensorKey{Tag: f.Sensor.SensorTag, TypeID: f.Sensor.SensorTypeID}
	if lr, ok := f.Payload.(LinearRanges); ok {
		d.ranges[key] = lr
	}

	cf, err := d.fileFor(f)
	if err != nil {
		return err
	}

	calib, haveCalib := d.ranges[key]
	row := createDataRow(f, calib, haveCalib)
	if err := cf.w.Write(row); err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "csv",
			"sensor_id": f.Sensor.String(),
		}).WithError(err).Error("CSV write failed")
		return err
	}
	cf.w.Flush()
	return cf.w.Error()
}

// Close flushes and closes every open file.
func (d *Dumper) Close() error {
	var first error
	for _, cf := range d.files {
		cf.w.Flush()
		if err := cf.w.Error(); err != nil && first == nil {
			first = err
		}
		if err := cf.f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (d *Dumper) fileFor(f Frame) (*csvFile, error) {
	if cf, ok := d.files[f.Sensor]; ok {
		return cf, nil
	}

	kind := f.Payload.Kind()
	name := fmt.Sprintf("%d-%s-%s-x%d.csv", f.Sensor.SensorTag, kind, f.Sensor.ValueType, numComponents(kind))
	path := filepath.Join(d.dir, name)
	osf, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(bufio.NewWriter(osf))
	if err := w.Write(createHeaderRow(kind)); err != nil {
		osf.Close()
		return nil, err
	}
	cf := &csvFile{f: osf, w: w, kind: kind}
	d.files[f.Sensor] = cf
	return cf, nil
}

func numComponents(kind PayloadKind) int {
	switch kind {
	case KindAccelerometer, KindMagnetometer, KindGyroscope, KindEuler:
		return 3
	case KindQuaternion:
		return 4
	case KindTemperature, KindHeading:
		return 1
	default:
		return 0
	}
}

func createHeaderRow(kind PayloadKind) []string {
	common := []string{"host_time", "device_time", "sensor_tag", "num_components", "value_type"}
	switch kind {
	case KindAccelerometer, KindMagnetometer, KindGyroscope, KindEuler:
		return append(common, "x", "y", "z", "converted_x", "converted_y", "converted_z")
	case KindQuaternion:
		return append(common, "a", "b", "c", "d", "converted_a", "converted_b", "converted_c", "converted_d")
	case KindTemperature:
		return append(common, "temp", "converted_temp")
	case KindHeading:
		return append(common, "heading", "converted_heading")
	case KindLinearRanges:
		return append(common, "resolution_bits", "scale_op", "scale", "scale_raw", "scale_decimals", "offset", "offset_raw", "offset_decimals")
	case KindIdentification:
		return append(common, "code", "value")
	case KindClock:
		return append(common, "freq")
	default:
		return common
	}
}

func createDataRow(f Frame, calib LinearRanges, haveCalib bool) []string {
	row := []string{
		fmt.Sprintf("%.9f", hostTimeSeconds()),
		fmt.Sprintf("%.9f", f.DeviceTime()),
		fmt.Sprintf("%02X", f.Sensor.SensorTag),
		fmt.Sprintf("%d", numComponents(f.Payload.Kind())),
		f.Sensor.ValueType.String(),
	}
	switch p := f.Payload.(type) {
	case Accelerometer:
		row = append(row, csvVec3(p.Vector3I16, calib, haveCalib)...)
	case Magnetometer:
		row = append(row, csvVec3(p.Vector3I16, calib, haveCalib)...)
	case Gyroscope:
		row = append(row, csvVec3(p.Vector3I16, calib, haveCalib)...)
	case Euler:
		row = append(row, csvGroup(calib, haveCalib, float64(p.Roll), float64(p.Pitch), float64(p.Yaw))...)
	case Quaternion:
		row = append(row, csvGroup(calib, haveCalib, float64(p.W), float64(p.X), float64(p.Y), float64(p.Z))...)
	case Temperature:
		row = append(row, csvScalar(float64(p.Value), calib, haveCalib)...)
	case Heading:
		row = append(row, csvScalar(float64(p.Value), calib, haveCalib)...)
	case Identification:
		row = append(row, p.Code.String(), p.Value)
	case LinearRanges:
		row = append(row,
			fmt.Sprintf("%d", p.ResolutionBits),
			fmt.Sprintf("%02X", byte(p.Op)),
			fmt.Sprintf("%g", float64(p.Scale)/pow10(p.ScaleDiv)),
			fmt.Sprintf("%d", p.Scale),
			fmt.Sprintf("%d", p.ScaleDiv),
			fmt.Sprintf("%g", float64(p.Offset)/pow10(p.OffsetDiv)),
			fmt.Sprintf("%d", p.Offset),
			fmt.Sprintf("%d", p.OffsetDiv),
		)
	case Clock:
		row = append(row, fmt.Sprintf("%d", p.Ticks))
	}
	return row
}

// csvVec3 returns [x, y, z, converted_x, converted_y, converted_z].
func csvVec3(v Vector3I16, calib LinearRanges, haveCalib bool) []string {
	raw := []string{fmt.Sprintf("%d", v.X), fmt.Sprintf("%d", v.Y), fmt.Sprintf("%d", v.Z)}
	if !haveCalib {
		return append(raw, "", "", "")
	}
	x, y, z := calib.ConvertVec3(v)
	return append(raw, fmt.Sprintf("%g", x), fmt.Sprintf("%g", y), fmt.Sprintf("%g", z))
}

// csvScalar returns [value, converted_value] for a single scalar reading.
func csvScalar(raw float64, calib LinearRanges, haveCalib bool) []string {
	if !haveCalib {
		return []string{fmt.Sprintf("%g", raw), ""}
	}
	return []string{fmt.Sprintf("%g", raw), fmt.Sprintf("%g", calib.Convert(raw))}
}

// csvGroup returns vals followed by their converted counterparts (or empty
// columns if haveCalib is false), matching the header's
// "component* then converted_component*" ordering.
func csvGroup(calib LinearRanges, haveCalib bool, vals ...float64) []string {
	out := make([]string, 0, 2*len(vals))
	for _, v := range vals {
		out = append(out, fmt.Sprintf("%g", v))
	}
	for _, v := range vals {
		if !haveCalib {
			out = append(out, "")
			continue
		}
		out = append(out, fmt.Sprintf("%g", calib.Convert(v)))
	}
	return out
}
