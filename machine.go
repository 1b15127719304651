package exflow

import (
	"context"
	"fmt"
	"strings"
)

// MachineBuilder provides the main entry point for building approval machines
type MachineBuilder interface {
	State(phase Phase) StateBuilder
	Build() *Machine
}

// StateBuilder configures a phase
type StateBuilder interface {
	To(target Phase) TransitionBuilder
	ToSelf() TransitionBuilder
	Initial() StateBuilder
	Final() StateBuilder

	State(phase Phase) StateBuilder
	Build() *Machine
}

// TransitionBuilder configures a transition with its guards and action
type TransitionBuilder interface {
	On(event string) TransitionBuilder
	When(name string, guard GuardFunc) TransitionBuilder
	Otherwise(reason string) TransitionBuilder
	Do(name string, action ActionFunc) TransitionBuilder

	To(target Phase) TransitionBuilder
	ToSelf() TransitionBuilder

	State(phase Phase) StateBuilder
	Build() *Machine
}

// Machine is an immutable transition table over approval phases. It holds no
// per-request state: the phase of a request is always derived from its
// reviewer decisions, and Fire works on a copy of the request it is given.
type Machine struct {
	initial     Phase
	finals      map[Phase]bool
	phases      []Phase
	transitions map[Phase][]*Transition
}

type machineBuilderImpl struct {
	machine *Machine
	pending *Transition
}

// NewMachine starts a machine definition
func NewMachine() MachineBuilder {
	return &machineBuilderImpl{
		machine: &Machine{
			finals:      make(map[Phase]bool),
			transitions: make(map[Phase][]*Transition),
		},
	}
}

func (mb *machineBuilderImpl) State(phase Phase) StateBuilder {
	mb.flush()
	if !mb.hasPhase(phase) {
		mb.machine.phases = append(mb.machine.phases, phase)
	}
	if mb.machine.initial == "" {
		mb.machine.initial = phase
	}
	return &stateBuilderImpl{mb: mb, phase: phase}
}

// Build validates and returns the machine. It panics on an inconsistent
// definition, since machines are built once from static code.
func (mb *machineBuilderImpl) Build() *Machine {
	mb.flush()
	if err := mb.validate(); err != nil {
		panic(fmt.Sprintf("Failed to build machine: %v", err))
	}
	return mb.machine
}

func (mb *machineBuilderImpl) hasPhase(phase Phase) bool {
	for _, p := range mb.machine.phases {
		if p == phase {
			return true
		}
	}
	return false
}

func (mb *machineBuilderImpl) flush() {
	if mb.pending == nil {
		return
	}
	t := mb.pending
	mb.machine.transitions[t.SourcePhase] = append(mb.machine.transitions[t.SourcePhase], t)
	mb.pending = nil
}

func (mb *machineBuilderImpl) validate() error {
	if mb.machine.initial == "" {
		return NewConfigurationError("Machine", "no initial phase defined")
	}
	for source, transitions := range mb.machine.transitions {
		for _, t := range transitions {
			if strings.TrimSpace(t.EventName) == "" {
				return NewConfigurationError("Machine", fmt.Sprintf("transition %s -> %s has no event", source, t.TargetPhase))
			}
			if !mb.hasPhase(t.TargetPhase) {
				return NewConfigurationError("Machine", fmt.Sprintf("target phase '%s' does not exist", t.TargetPhase))
			}
			if mb.machine.finals[source] && !t.IsSelf() {
				return NewConfigurationError("Machine", fmt.Sprintf("final phase '%s' cannot leave to '%s'", source, t.TargetPhase))
			}
		}
	}
	return nil
}

type stateBuilderImpl struct {
	mb    *machineBuilderImpl
	phase Phase
}

func (sb *stateBuilderImpl) To(target Phase) TransitionBuilder {
	sb.mb.flush()
	sb.mb.pending = NewTransition(sb.phase, target, "")
	return &transitionBuilderImpl{mb: sb.mb, source: sb.phase}
}

func (sb *stateBuilderImpl) ToSelf() TransitionBuilder {
	return sb.To(sb.phase)
}

func (sb *stateBuilderImpl) Initial() StateBuilder {
	sb.mb.machine.initial = sb.phase
	return sb
}

func (sb *stateBuilderImpl) Final() StateBuilder {
	sb.mb.machine.finals[sb.phase] = true
	return sb
}

func (sb *stateBuilderImpl) State(phase Phase) StateBuilder {
	return sb.mb.State(phase)
}

func (sb *stateBuilderImpl) Build() *Machine {
	return sb.mb.Build()
}

type transitionBuilderImpl struct {
	mb     *machineBuilderImpl
	source Phase
}

// On sets the event for this transition
func (tb *transitionBuilderImpl) On(event string) TransitionBuilder {
	tb.mb.pending.EventName = event
	return tb
}

// When adds a named guard; all guards must pass
func (tb *transitionBuilderImpl) When(name string, guard GuardFunc) TransitionBuilder {
	tb.mb.pending.WithGuard(name, guard)
	return tb
}

// Otherwise sets the rejection reason of the most recent guard
func (tb *transitionBuilderImpl) Otherwise(reason string) TransitionBuilder {
	guards := tb.mb.pending.Guards
	if len(guards) > 0 {
		guards[len(guards)-1].Reason = reason
	}
	return tb
}

// Do sets the transition action
func (tb *transitionBuilderImpl) Do(name string, action ActionFunc) TransitionBuilder {
	tb.mb.pending.WithAction(name, action)
	return tb
}

// To creates another transition from the same source phase
func (tb *transitionBuilderImpl) To(target Phase) TransitionBuilder {
	tb.mb.flush()
	tb.mb.pending = NewTransition(tb.source, target, "")
	return tb
}

func (tb *transitionBuilderImpl) ToSelf() TransitionBuilder {
	return tb.To(tb.source)
}

func (tb *transitionBuilderImpl) State(phase Phase) StateBuilder {
	return tb.mb.State(phase)
}

func (tb *transitionBuilderImpl) Build() *Machine {
	return tb.mb.Build()
}

// InitialPhase returns the phase new requests start in
func (m *Machine) InitialPhase() Phase {
	return m.initial
}

// Phases returns the phases in definition order
func (m *Machine) Phases() []Phase {
	return append([]Phase(nil), m.phases...)
}

// IsFinal reports whether a phase was declared final
func (m *Machine) IsFinal(phase Phase) bool {
	return m.finals[phase]
}

// Transitions returns every transition in definition order
func (m *Machine) Transitions() []*Transition {
	var all []*Transition
	for _, p := range m.phases {
		all = append(all, m.transitions[p]...)
	}
	return all
}

// Events returns the event names accepted in a phase
func (m *Machine) Events(phase Phase) []string {
	var events []string
	for _, t := range m.transitions[phase] {
		if !containsString(events, t.EventName) {
			events = append(events, t.EventName)
		}
	}
	return events
}

// Fire applies an event to a copy of the request. The first transition out of
// the request's derived phase whose guards all pass is taken; its action runs
// against the copy and phase/status are re-derived. The original request is
// never modified. A refused event yields an InvalidTransitionError.
func (m *Machine) Fire(ctx context.Context, request *ExceptionRequest, event *Event) *EventResult {
	working := request.Clone()
	working.Refresh()

	result := NewEventResult(false, false, working.Phase, working.Phase)
	result.PreviousStatus = working.Status
	result.CurrentStatus = working.Status

	reject := func(reason string) *EventResult {
		return result.WithRejection(reason).
			WithError(NewInvalidTransitionError(request.RequestID, working.Phase, working.Status, event.Name, reason))
	}

	if event == nil || strings.TrimSpace(event.Name) == "" {
		event = &Event{}
		return reject("event name cannot be empty")
	}

	var candidates []*Transition
	for _, t := range m.transitions[working.Phase] {
		if t.EventName == event.Name {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		reason := fmt.Sprintf("event '%s' is not accepted in phase %s", event.Name, working.Phase)
		if accepted := m.Events(working.Phase); len(accepted) > 0 {
			reason += " (accepts: " + strings.Join(accepted, ", ") + ")"
		}
		return reject(reason)
	}

	tctx := NewContext(ctx, working, event)
	var reason string
	for _, t := range candidates {
		failed, err := evaluateGuards(t, tctx)
		if err != nil {
			return result.WithError(NewActionError("guard "+failed.Name, working.Phase, err))
		}
		if failed != nil {
			if reason == "" {
				reason = failed.rejection()
			}
			continue
		}
		return m.apply(t, tctx, result)
	}
	return reject(reason)
}

func (m *Machine) apply(t *Transition, tctx *TransitionContext, result *EventResult) *EventResult {
	working := tctx.Request()
	if t.Action != nil {
		if err := safeExecuteAction(t.Action, tctx); err != nil {
			if GetErrorCode(err) == ErrCodeNone {
				err = NewActionError(t.ActionName, t.SourcePhase, err)
			}
			return result.WithError(err)
		}
	}

	working.Refresh()
	if working.Phase != t.TargetPhase {
		return result.WithError(NewActionError(t.ActionName, t.SourcePhase,
			fmt.Errorf("derived phase %s does not match transition target %s", working.Phase, t.TargetPhase)))
	}

	result.Processed = true
	result.CurrentPhase = working.Phase
	result.CurrentStatus = working.Status
	result.StateChanged = result.PreviousPhase != result.CurrentPhase || result.PreviousStatus != result.CurrentStatus
	result.Request = working
	return result
}

// evaluateGuards returns the first guard that did not pass, or nil
func evaluateGuards(t *Transition, ctx Context) (*Guard, error) {
	for i := range t.Guards {
		g := &t.Guards[i]
		ok, err := safeEvaluateGuard(g.Check, ctx)
		if err != nil {
			return g, err
		}
		if !ok {
			return g, nil
		}
	}
	return nil, nil
}

// safeEvaluateGuard safely evaluates a guard function with panic recovery
func safeEvaluateGuard(guard GuardFunc, ctx Context) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = false
			err = fmt.Errorf("guard panic: %v", r)
		}
	}()

	if guard == nil {
		return true, nil
	}
	result = guard(ctx)
	return result, nil
}

// safeExecuteAction safely executes an action function with panic recovery
func safeExecuteAction(action ActionFunc, ctx Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panic: %v", r)
		}
	}()

	err = action(ctx)
	return err
}
