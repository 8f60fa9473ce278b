package telemetry

import (
	"sync"
	"time"

	"github.com/samber/lo"
	"periph.io/x/periph/conn/physic"
)

// SensorState describes how much is known about a sensor. Transitions are
// monotonic and idempotent: a sensor never regresses to an earlier state,
// and re-observing the same kind of frame never moves it backwards.
type SensorState int

// Valid values for SensorState, in transition order. There is no terminal
// state: a Calibrated sensor simply stays Calibrated as further readings
// and identification/calibration frames arrive.
const (
	StateUnknown SensorState = iota
	StateSeen
	StateIdentified
	StateCalibrated
)

func (s SensorState) String() string {
	switch s {
	case StateSeen:
		return "seen"
	case StateIdentified:
		return "identified"
	case StateCalibrated:
		return "calibrated"
	default:
		return "unknown"
	}
}

// defaultRingCapacity is the default number of most-recent frames kept,
// both globally and per sensor.
const defaultRingCapacity = 100

type sensorEntry struct {
	mu sync.RWMutex

	state SensorState

	haveSeq bool
	lastSeq uint32
	skipped uint64

	ring []Frame // newest first

	rate rateEstimator
}

// sensorKey groups the readings, calibration and identification that all
// describe the same physical sensor, independent of which ValueType a
// particular stream off it happens to use. A LinearRanges or
// Identification frame names its target by this pair, not by the full
// SensorID triple, since the calibration or metadata frame itself carries
// its own ValueType (ValueTypeLinearRange / ValueTypeIdentifier) distinct
// from the numeric stream it describes.
type sensorKey struct {
	Tag    uint8
	TypeID uint8
}

type sensorMeta struct {
	mu sync.RWMutex

	ident map[IdentifierCode]string

	calibration   LinearRanges
	haveCalibrate bool
}

// Buffer holds the most recent frames globally and per sensor, along with
// per-sensor calibration state, identification, skip counters and arrival
// rate. It is safe for concurrent use: the C4 task writes via Ingest while
// any query caller reads concurrently.
type Buffer struct {
	capacity int

	globalMu   sync.Mutex
	globalRing []Frame // newest first

	sensorsMu sync.RWMutex
	sensors   map[SensorID]*sensorEntry

	metaMu sync.RWMutex
	meta   map[sensorKey]*sensorMeta
}

// NewBuffer returns an empty Buffer retaining up to capacity frames both
// globally and per sensor. A capacity of 0 uses defaultRingCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	return &Buffer{
		capacity: capacity,
		sensors:  make(map[SensorID]*sensorEntry),
		meta:     make(map[sensorKey]*sensorMeta),
	}
}

// Ingest records f, updating the global ring and — unless f names the
// board/global sensor_tag 0 — the per-sensor ring, state machine, skip
// counter, arrival rate and (for Identification/LinearRanges payloads)
// known metadata.
func (b *Buffer) Ingest(f Frame) {
	now := time.Now()

	b.globalMu.Lock()
	b.globalRing = prependCapped(b.globalRing, f, b.capacity)
	b.globalMu.Unlock()

	if f.Sensor.SensorTag == 0 {
		return
	}

	key := sensorKey{Tag: f.Sensor.SensorTag, TypeID: f.Sensor.SensorTypeID}
	switch p := f.Payload.(type) {
	case Identification:
		m := b.metaFor(key)
		m.mu.Lock()
		if m.ident == nil {
			m.ident = make(map[IdentifierCode]string)
		}
		m.ident[p.Code] = p.Value
		m.mu.Unlock()
		return
	case LinearRanges:
		m := b.metaFor(key)
		m.mu.Lock()
		m.calibration = p
		m.haveCalibrate = true
		m.mu.Unlock()
		return
	}

	e := b.entry(f.Sensor)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state < StateSeen {
		e.state = StateSeen
	}
	if e.haveSeq {
		if gap := int32(f.SensorSequence - e.lastSeq); gap > 1 {
			e.skipped++
		}
	}
	e.haveSeq = true
	e.lastSeq = f.SensorSequence

	e.ring = prependCapped(e.ring, f, b.capacity)
	e.rate.observe(now)
}

func (b *Buffer) metaFor(key sensorKey) *sensorMeta {
	b.metaMu.RLock()
	m, ok := b.meta[key]
	b.metaMu.RUnlock()
	if ok {
		return m
	}

	b.metaMu.Lock()
	defer b.metaMu.Unlock()
	if m, ok = b.meta[key]; ok {
		return m
	}
	m = &sensorMeta{}
	b.meta[key] = m
	return m
}

func (b *Buffer) metaLookup(key sensorKey) *sensorMeta {
	b.metaMu.RLock()
	defer b.metaMu.RUnlock()
	return b.meta[key]
}

func prependCapped(ring []Frame, f Frame, capacity int) []Frame {
	ring = append([]Frame{f}, ring...)
	if len(ring) > capacity {
		ring = ring[:capacity]
	}
	return ring
}

func (b *Buffer) entry(id SensorID) *sensorEntry {
	b.sensorsMu.RLock()
	e, ok := b.sensors[id]
	b.sensorsMu.RUnlock()
	if ok {
		return e
	}

	b.sensorsMu.Lock()
	defer b.sensorsMu.Unlock()
	if e, ok = b.sensors[id]; ok {
		return e
	}
	e = &sensorEntry{}
	b.sensors[id] = e
	return e
}

// SensorIDs returns every sensor observed so far, in no particular order.
func (b *Buffer) SensorIDs() []SensorID {
	b.sensorsMu.RLock()
	defer b.sensorsMu.RUnlock()
	return lo.Keys(b.sensors)
}

// State returns id's current state machine position, StateUnknown if id
// has never been observed. Identified/Calibrated are reached once any
// Identification/LinearRanges frame has been seen for id's
// SensorTag/SensorTypeID pair, regardless of which ValueType carried it.
func (b *Buffer) State(id SensorID) SensorState {
	e := b.lookup(id)
	if e == nil {
		return StateUnknown
	}
	e.mu.RLock()
	s := e.state
	e.mu.RUnlock()
	if s < StateSeen {
		return s
	}

	m := b.metaLookup(sensorKey{Tag: id.SensorTag, TypeID: id.SensorTypeID})
	if m == nil {
		return s
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch {
	case m.haveCalibrate:
		return StateCalibrated
	case len(m.ident) > 0:
		return StateIdentified
	default:
		return s
	}
}

// Latest returns the most recently ingested frame for id.
func (b *Buffer) Latest(id SensorID) (Frame, bool) {
	e := b.lookup(id)
	if e == nil {
		return Frame{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.ring) == 0 {
		return Frame{}, false
	}
	return e.ring[0], true
}

// History returns up to n of the most recent frames for id, newest first.
func (b *Buffer) History(id SensorID, n int) []Frame {
	e := b.lookup(id)
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if n <= 0 || n > len(e.ring) {
		n = len(e.ring)
	}
	out := make([]Frame, n)
	copy(out, e.ring[:n])
	return out
}

// GlobalHistory returns up to n of the most recently ingested frames
// across all sensors, newest first.
func (b *Buffer) GlobalHistory(n int) []Frame {
	b.globalMu.Lock()
	defer b.globalMu.Unlock()
	if n <= 0 || n > len(b.globalRing) {
		n = len(b.globalRing)
	}
	out := make([]Frame, n)
	copy(out, b.globalRing[:n])
	return out
}

// SkippedFrames returns the cumulative number of sensor-sequence gaps
// observed for id.
func (b *Buffer) SkippedFrames(id SensorID) uint64 {
	e := b.lookup(id)
	if e == nil {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.skipped
}

// ProductName returns the Identification values reported so far for id's
// SensorTag/SensorTypeID pair, keyed by IdentifierCode. ok is false if no
// Identification frame has been seen for that pair yet.
func (b *Buffer) ProductName(id SensorID) (map[IdentifierCode]string, bool) {
	m := b.metaLookup(sensorKey{Tag: id.SensorTag, TypeID: id.SensorTypeID})
	if m == nil {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.ident) == 0 {
		return nil, false
	}
	out := make(map[IdentifierCode]string, len(m.ident))
	for k, v := range m.ident {
		out[k] = v
	}
	return out, true
}

// Calibration returns the currently known calibration for id's
// SensorTag/SensorTypeID pair, if any.
func (b *Buffer) Calibration(id SensorID) (LinearRanges, bool) {
	m := b.metaLookup(sensorKey{Tag: id.SensorTag, TypeID: id.SensorTypeID})
	if m == nil {
		return LinearRanges{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calibration, m.haveCalibrate
}

// NumSensors returns the total number of distinct sensor streams observed
// so far (sensor_tag 0 board/global frames are never counted: see Ingest).
func (b *Buffer) NumSensors() int {
	b.sensorsMu.RLock()
	defer b.sensorsMu.RUnlock()
	return len(b.sensors)
}

// AverageRate returns id's current mean arrival rate.
func (b *Buffer) AverageRate(id SensorID) physic.Frequency {
	e := b.lookup(id)
	if e == nil {
		return 0
	}
	return e.rate.rate()
}

func (b *Buffer) lookup(id SensorID) *sensorEntry {
	b.sensorsMu.RLock()
	defer b.sensorsMu.RUnlock()
	return b.sensors[id]
}
