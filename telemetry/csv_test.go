package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDumperCreatesHeaderOnFirstSight(t *testing.T) {
	dir := t.TempDir()
	d := NewDumper(dir)
	defer d.Close()

	id := SensorID{SensorTag: 10, SensorTypeID: 3, ValueType: ValueTypeI16}
	if err := d.Ingest(Frame{Sensor: id, Payload: Accelerometer{Vector3I16{X: 1, Y: 2, Z: 3}}}); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	name := "10-acc-i16-x3.csv"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("expected file %s to exist: %v", name, err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 data row, got %d lines: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "converted_z") {
		t.Fatalf("header missing converted_z column: %q", lines[0])
	}
	fields := strings.Split(lines[1], ",")
	if fields[2] != "0A" {
		t.Fatalf("sensor_tag column = %q, want uppercase 2-digit hex %q", fields[2], "0A")
	}
	if fields[4] != "i16" {
		t.Fatalf("value_type column = %q, want short code %q", fields[4], "i16")
	}
}

func TestDumperPadsEmptyConvertedColumnsWithoutCalibration(t *testing.T) {
	dir := t.TempDir()
	d := NewDumper(dir)
	defer d.Close()

	id := SensorID{SensorTag: 1, ValueType: ValueTypeI16}
	if err := d.Ingest(Frame{Sensor: id, Payload: Temperature{Value: 42}}); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "1-temp-i16-x1.csv"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if !strings.HasSuffix(lines[1], ",42,") {
		t.Fatalf("expected value=42 followed by an empty converted column, got %q", lines[1])
	}
}

func TestDumperAppliesCalibrationAfterLinearRangesSeen(t *testing.T) {
	dir := t.TempDir()
	d := NewDumper(dir)
	defer d.Close()

	lrID := SensorID{SensorTag: 1, SensorTypeID: 0, ValueType: ValueTypeLinearRange}
	dataID := SensorID{SensorTag: 1, SensorTypeID: 0, ValueType: ValueTypeI16}

	if err := d.Ingest(Frame{Sensor: lrID, Payload: LinearRanges{ResolutionBits: 16, Op: ScaleMultiply, Scale: 2}}); err != nil {
		t.Fatalf("Ingest(LinearRanges) error: %v", err)
	}
	if err := d.Ingest(Frame{Sensor: dataID, Payload: Temperature{Value: 10}}); err != nil {
		t.Fatalf("Ingest(Temperature) error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "1-temp-i16-x1.csv"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if !strings.HasSuffix(lines[1], ",10,20") {
		t.Fatalf("expected raw=10, converted=20 (calibration must apply despite the LinearRanges frame's own ValueType differing), got %q", lines[1])
	}
}

func TestDumperWritesLinearRangesRow(t *testing.T) {
	dir := t.TempDir()
	d := NewDumper(dir)
	defer d.Close()

	id := SensorID{SensorTag: 2, SensorTypeID: 1, ValueType: ValueTypeLinearRange}
	lr := LinearRanges{ResolutionBits: 12, Op: ScaleOffsetThenScale, Offset: 20, OffsetDiv: 1, Scale: 1, ScaleDiv: 1}
	if err := d.Ingest(Frame{Sensor: id, Payload: lr}); err != nil {
		t.Fatalf("Ingest(LinearRanges) error: %v", err)
	}

	name := "2-lranges-lrange-x0.csv"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("expected file %s to exist: %v", name, err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 data row, got %d lines: %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "host_time,device_time,sensor_tag,num_components,value_type,resolution_bits,scale_op") {
		t.Fatalf("unexpected LinearRanges header: %q", lines[0])
	}
	fields := strings.Split(lines[1], ",")
	if fields[5] != "12" {
		t.Fatalf("resolution_bits column = %q, want 12", fields[5])
	}
	if fields[6] != "01" {
		t.Fatalf("scale_op column = %q, want uppercase 2-digit hex %q", fields[6], "01")
	}
}

func TestDumperWritesIdentificationRow(t *testing.T) {
	dir := t.TempDir()
	d := NewDumper(dir)
	defer d.Close()

	id := SensorID{SensorTag: 1, SensorTypeID: 1, ValueType: ValueTypeIdentifier}
	if err := d.Ingest(Frame{Sensor: id, Payload: Identification{Code: IdentifierProduct, Value: "LSM303DLHC"}}); err != nil {
		t.Fatalf("Ingest(Identification) error: %v", err)
	}

	name := "1-ident-ident-x0.csv"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("expected file %s to exist: %v", name, err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if !strings.HasSuffix(lines[1], "product,LSM303DLHC") {
		t.Fatalf("expected code=product, value=LSM303DLHC, got %q", lines[1])
	}
}
