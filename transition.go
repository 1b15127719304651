package exflow

// GuardFunc decides whether a transition may fire
type GuardFunc func(ctx Context) bool

// ActionFunc mutates the request carried by the context
type ActionFunc func(ctx Context) error

// Guard is a named transition condition. Reason is reported when it fails.
type Guard struct {
	Name   string
	Reason string
	Check  GuardFunc
}

// rejection returns the message used when the guard fails
func (g Guard) rejection() string {
	if g.Reason != "" {
		return g.Reason
	}
	return "condition not met: " + g.Name
}

// Transition represents a phase transition of an exception request
type Transition struct {
	SourcePhase Phase
	TargetPhase Phase
	EventName   string
	Guards      []Guard
	ActionName  string
	Action      ActionFunc
}

// NewTransition creates a new transition
func NewTransition(source, target Phase, eventName string) *Transition {
	return &Transition{
		SourcePhase: source,
		TargetPhase: target,
		EventName:   eventName,
	}
}

// WithGuard adds a guard condition to the transition
func (t *Transition) WithGuard(name string, guard GuardFunc) *Transition {
	t.Guards = append(t.Guards, Guard{Name: name, Check: guard})
	return t
}

// WithAction sets the action of the transition
func (t *Transition) WithAction(name string, action ActionFunc) *Transition {
	t.ActionName = name
	t.Action = action
	return t
}

// IsSelf reports whether the transition stays in its source phase
func (t *Transition) IsSelf() bool {
	return t.SourcePhase == t.TargetPhase
}
