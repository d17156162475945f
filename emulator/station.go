package emulator

import (
	"slices"
	"sync"
	"time"

	"github.com/arloliu/go-meteodata/frame"
)

// Fault injects misbehaviour into a station's responses.
type Fault struct {
	// ShortResponses is the number of upcoming responses cut to ShortLength bytes.
	ShortResponses int
	// ShortLength is the size of a cut response. Zero means 10 bytes.
	ShortLength int
	// Silent drops every request without answering.
	Silent bool
	// ForeignHeader answers with the header of another station.
	ForeignHeader bool
	// Reject answers clock synchronizations with a NAK carrying this code.
	Reject *frame.DeviceError
}

// Station is the state of one emulated station.
type Station struct {
	id     uint16
	userID uint16

	mu            sync.Mutex
	values        []float64
	sampleIndices []uint16
	alarmStates   []frame.AlarmState
	clockOffset   time.Duration
	lastSync      time.Time
	fault         Fault
}

// NewStation creates a station reporting values in channel order.
func NewStation(id, userID uint16, values []float64) *Station {
	return &Station{
		id:     id,
		userID: userID,
		values: slices.Clone(values),
	}
}

// ID returns the station id.
func (s *Station) ID() uint16 { return s.id }

// Values returns a copy of the reported channel values.
func (s *Station) Values() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.values)
}

// SetValues replaces the reported channel values.
func (s *Station) SetValues(values []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = slices.Clone(values)
}

// SetTrailer sets the per-channel sample indices and alarm states reported
// in instantaneous frames.
func (s *Station) SetTrailer(indices []uint16, alarms []frame.AlarmState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampleIndices = slices.Clone(indices)
	s.alarmStates = slices.Clone(alarms)
}

// SetFault replaces the injected fault.
func (s *Station) SetFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// Now returns the station clock.
func (s *Station) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return time.Now().Add(s.clockOffset)
}

// LastSync returns the clock value of the last accepted synchronization.
func (s *Station) LastSync() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastSync, !s.lastSync.IsZero()
}

func (s *Station) snapshot(mode frame.Mode) *frame.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()

	tm := &frame.Telemetry{
		StationID: s.id,
		UserID:    s.userID,
		Command:   mode,
		Timestamp: time.Now().Add(s.clockOffset).Truncate(time.Second),
		Values:    slices.Clone(s.values),
	}
	if mode == frame.ModeInstantaneous {
		tm.SampleIndices = slices.Clone(s.sampleIndices)
		tm.AlarmStates = slices.Clone(s.alarmStates)
	}

	return tm
}

func (s *Station) sync(t time.Time) *frame.DeviceError {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fault.Reject != nil {
		return s.fault.Reject
	}
	s.clockOffset = time.Until(t)
	s.lastSync = t

	return nil
}

// takeFault returns the current fault and consumes one short response.
func (s *Station) takeFault() (f Fault, short bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f = s.fault
	if s.fault.ShortResponses > 0 {
		s.fault.ShortResponses--
		short = true
	}

	return f, short
}
