package observers

import (
	"sync"
	"time"

	"github.com/anggasct/exflow"
)

// MetricsObserver collects counters and review latencies
type MetricsObserver struct {
	phaseEntries     map[exflow.Phase]int
	phaseTimeSpent   map[exflow.Phase]time.Duration
	eventCounts      map[string]int
	transitionCounts map[string]int
	statusCounts     map[exflow.Status]int
	rejectionCounts  map[string]int
	submitted        int
	voided           int
	errorCount       int
	lastPhaseEntry   map[string]time.Time
	now              func() time.Time
	mutex            sync.RWMutex
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	o := &MetricsObserver{now: time.Now}
	o.Reset()
	return o
}

// SetClock replaces the wall clock used to measure time spent in a phase
func (o *MetricsObserver) SetClock(now func() time.Time) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.now = now
}

// OnSubmitted records a request entering its first phase
func (o *MetricsObserver) OnSubmitted(request *exflow.ExceptionRequest) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.submitted++
	o.phaseEntries[request.Phase]++
	o.lastPhaseEntry[request.RequestID] = o.now()
}

// OnTransition records transition metrics
func (o *MetricsObserver) OnTransition(from, to exflow.Phase, event *exflow.Event, request *exflow.ExceptionRequest) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.eventCounts[event.Name]++
	o.transitionCounts[string(from)+"->"+string(to)]++
	if from == to {
		return
	}

	now := o.now()
	if entered, ok := o.lastPhaseEntry[request.RequestID]; ok {
		o.phaseTimeSpent[from] += now.Sub(entered)
	}
	o.phaseEntries[to]++
	o.lastPhaseEntry[request.RequestID] = now
}

// OnStatusChange records status metrics
func (o *MetricsObserver) OnStatusChange(from, to exflow.Status, request *exflow.ExceptionRequest) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.statusCounts[to]++
	if to == exflow.StatusApproved || to == exflow.StatusVoided {
		delete(o.lastPhaseEntry, request.RequestID)
	}
}

// OnRejected records refused events by reason
func (o *MetricsObserver) OnRejected(requestID string, event *exflow.Event, reason string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.rejectionCounts[reason]++
}

// OnVoided records voided exceptions
func (o *MetricsObserver) OnVoided(request *exflow.ExceptionRequest) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.voided++
}

// OnError records error metrics
func (o *MetricsObserver) OnError(err error, requestID string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.errorCount++
}

// Snapshot is a point-in-time copy of the collected metrics
type Snapshot struct {
	Submitted        int                            `json:"submitted"`
	Voided           int                            `json:"voided"`
	Errors           int                            `json:"errors"`
	PhaseEntries     map[exflow.Phase]int           `json:"phaseEntries"`
	PhaseTimeSpent   map[exflow.Phase]time.Duration `json:"phaseTimeSpent"`
	EventCounts      map[string]int                 `json:"eventCounts"`
	TransitionCounts map[string]int                 `json:"transitionCounts"`
	StatusCounts     map[exflow.Status]int          `json:"statusCounts"`
	RejectionCounts  map[string]int                 `json:"rejectionCounts"`
}

// Snapshot returns a copy of all metrics
func (o *MetricsObserver) Snapshot() Snapshot {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return Snapshot{
		Submitted:        o.submitted,
		Voided:           o.voided,
		Errors:           o.errorCount,
		PhaseEntries:     copyMap(o.phaseEntries),
		PhaseTimeSpent:   copyMap(o.phaseTimeSpent),
		EventCounts:      copyMap(o.eventCounts),
		TransitionCounts: copyMap(o.transitionCounts),
		StatusCounts:     copyMap(o.statusCounts),
		RejectionCounts:  copyMap(o.rejectionCounts),
	}
}

// GetErrorCount returns the number of errors
func (o *MetricsObserver) GetErrorCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return o.errorCount
}

// Reset resets all metrics
func (o *MetricsObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.phaseEntries = make(map[exflow.Phase]int)
	o.phaseTimeSpent = make(map[exflow.Phase]time.Duration)
	o.eventCounts = make(map[string]int)
	o.transitionCounts = make(map[string]int)
	o.statusCounts = make(map[exflow.Status]int)
	o.rejectionCounts = make(map[string]int)
	o.lastPhaseEntry = make(map[string]time.Time)
	o.submitted = 0
	o.voided = 0
	o.errorCount = 0
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	result := make(map[K]V, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
