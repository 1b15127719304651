package exflow

import (
	"fmt"
	"sync"
)

// Observer is notified about committed changes to exception requests
type Observer interface {
	// OnTransition is called after an event has been applied and persisted
	OnTransition(from Phase, to Phase, event *Event, request *ExceptionRequest)

	// OnStatusChange is called when the display status changes
	OnStatusChange(from Status, to Status, request *ExceptionRequest)
}

// ExtendedObserver provides additional optional observation methods
type ExtendedObserver interface {
	Observer

	// OnSubmitted is called after a new request has been stored
	OnSubmitted(request *ExceptionRequest)

	// OnRejected is called when an event is refused by the approval machine
	OnRejected(requestID string, event *Event, reason string)

	// OnVoided is called after a rescan voided an approved exception
	OnVoided(request *ExceptionRequest)

	// OnError is called when an operation fails after validation
	OnError(err error, requestID string)
}

// BaseObserver provides a default implementation with no-op methods
type BaseObserver struct{}

// OnTransition implements the required Observer method
func (o *BaseObserver) OnTransition(from Phase, to Phase, event *Event, request *ExceptionRequest) {}

// OnStatusChange implements the required Observer method
func (o *BaseObserver) OnStatusChange(from Status, to Status, request *ExceptionRequest) {}

// OnSubmitted implements the optional ExtendedObserver method
func (o *BaseObserver) OnSubmitted(request *ExceptionRequest) {}

// OnRejected implements the optional ExtendedObserver method
func (o *BaseObserver) OnRejected(requestID string, event *Event, reason string) {}

// OnVoided implements the optional ExtendedObserver method
func (o *BaseObserver) OnVoided(request *ExceptionRequest) {}

// OnError implements the optional ExtendedObserver method
func (o *BaseObserver) OnError(err error, requestID string) {}

// ObserverManager manages a collection of observers. A panicking observer
// never affects the others or the caller.
type ObserverManager struct {
	observers []Observer
	mutex     sync.RWMutex
}

// NewObserverManager creates a new observer manager
func NewObserverManager() *ObserverManager {
	return &ObserverManager{
		observers: make([]Observer, 0),
	}
}

// AddObserver adds an observer to the manager
func (om *ObserverManager) AddObserver(observer Observer) {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	om.observers = append(om.observers, observer)
}

// RemoveObserver removes an observer from the manager
func (om *ObserverManager) RemoveObserver(observer Observer) {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	for i, obs := range om.observers {
		if obs == observer {
			om.observers = append(om.observers[:i], om.observers[i+1:]...)
			break
		}
	}
}

// Len returns the number of registered observers
func (om *ObserverManager) Len() int {
	om.mutex.RLock()
	defer om.mutex.RUnlock()
	return len(om.observers)
}

func (om *ObserverManager) snapshot() []Observer {
	om.mutex.RLock()
	defer om.mutex.RUnlock()
	observers := make([]Observer, len(om.observers))
	copy(observers, om.observers)
	return observers
}

// each calls fn for every observer, recovering panics and reporting them to
// the panicking observer's OnError when it has one
func (om *ObserverManager) each(hook, requestID string, fn func(Observer)) {
	for _, observer := range om.snapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					if extObs, ok := observer.(ExtendedObserver); ok {
						func() {
							defer func() { recover() }()
							extObs.OnError(fmt.Errorf("observer panic in %s: %v", hook, r), requestID)
						}()
					}
				}
			}()
			fn(observer)
		}()
	}
}

// NotifyTransition notifies all observers of an applied event
func (om *ObserverManager) NotifyTransition(from Phase, to Phase, event *Event, request *ExceptionRequest) {
	om.each("OnTransition", request.RequestID, func(o Observer) {
		o.OnTransition(from, to, event, request)
	})
}

// NotifyStatusChange notifies all observers of a status change
func (om *ObserverManager) NotifyStatusChange(from Status, to Status, request *ExceptionRequest) {
	om.each("OnStatusChange", request.RequestID, func(o Observer) {
		o.OnStatusChange(from, to, request)
	})
}

// NotifySubmitted notifies extended observers of a new request
func (om *ObserverManager) NotifySubmitted(request *ExceptionRequest) {
	om.each("OnSubmitted", request.RequestID, func(o Observer) {
		if extObs, ok := o.(ExtendedObserver); ok {
			extObs.OnSubmitted(request)
		}
	})
}

// NotifyRejected notifies extended observers of a refused event
func (om *ObserverManager) NotifyRejected(requestID string, event *Event, reason string) {
	om.each("OnRejected", requestID, func(o Observer) {
		if extObs, ok := o.(ExtendedObserver); ok {
			extObs.OnRejected(requestID, event, reason)
		}
	})
}

// NotifyVoided notifies extended observers of a voided exception
func (om *ObserverManager) NotifyVoided(request *ExceptionRequest) {
	om.each("OnVoided", request.RequestID, func(o Observer) {
		if extObs, ok := o.(ExtendedObserver); ok {
			extObs.OnVoided(request)
		}
	})
}

// NotifyError notifies extended observers of a failed operation
func (om *ObserverManager) NotifyError(err error, requestID string) {
	for _, observer := range om.snapshot() {
		if extObs, ok := observer.(ExtendedObserver); ok {
			func() {
				defer func() { recover() }()
				extObs.OnError(err, requestID)
			}()
		}
	}
}
