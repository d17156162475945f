package session

import "sync/atomic"

// Metrics contains atomic counters for a Controller.
// Metrics can be used as the value of a prometheus CounterFunc.
type Metrics struct {
	// AttemptCount indicates the number of transport attempts.
	AttemptCount atomic.Uint64
	// RetryCount indicates the number of attempts after the first one of a request.
	RetryCount atomic.Uint64
	// CommFailureCount indicates the number of requests that exhausted their attempts.
	CommFailureCount atomic.Uint64
	// HeaderMismatchCount indicates the number of responses addressed to another station or user.
	HeaderMismatchCount atomic.Uint64
	// DeviceErrorCount indicates the number of NAK acknowledgements.
	DeviceErrorCount atomic.Uint64
	// ReadCount indicates the number of successful channel reads.
	ReadCount atomic.Uint64
	// SyncCount indicates the number of successful clock synchronizations.
	SyncCount atomic.Uint64
}

func (m *Metrics) incAttemptCount() {
	m.AttemptCount.Add(1)
}

func (m *Metrics) incRetryCount() {
	m.RetryCount.Add(1)
}

func (m *Metrics) incCommFailureCount() {
	m.CommFailureCount.Add(1)
}

func (m *Metrics) incHeaderMismatchCount() {
	m.HeaderMismatchCount.Add(1)
}

func (m *Metrics) incDeviceErrorCount() {
	m.DeviceErrorCount.Add(1)
}

func (m *Metrics) incReadCount() {
	m.ReadCount.Add(1)
}

func (m *Metrics) incSyncCount() {
	m.SyncCount.Add(1)
}
