package exflow

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultMaxRetries bounds the read-decide-write retries after a version conflict
const DefaultMaxRetries = 3

// Engine runs the approval workflow against a Store. Every mutation is a
// read-decide-write cycle under a per-request lock, committed with a version
// check and retried on conflict.
type Engine struct {
	store       Store
	locker      Locker
	directory   Directory
	machine     *Machine
	observers   *ObserverManager
	clock       func() time.Time
	ids         IDGenerator
	maxRetries  int
	gracePeriod time.Duration
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the wall clock
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLocker replaces the in-process per-request locker
func WithLocker(locker Locker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithDirectory enables contact auto-population on submission
func WithDirectory(directory Directory) Option {
	return func(e *Engine) { e.directory = directory }
}

// WithObserver registers an observer
func WithObserver(observer Observer) Option {
	return func(e *Engine) { e.observers.AddObserver(observer) }
}

// WithMaxRetries sets how often a conflicting write is retried
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithIDGenerator replaces the request ID generator
func WithIDGenerator(ids IDGenerator) Option {
	return func(e *Engine) { e.ids = ids }
}

// WithGracePeriod sets the remediation window granted when an exception is voided
func WithGracePeriod(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.gracePeriod = d
		}
	}
}

// NewEngine creates an engine over the given store
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		locker:      NewKeyedLocker(),
		machine:     ApprovalMachine(),
		observers:   NewObserverManager(),
		clock:       time.Now,
		ids:         DefaultIDGenerator,
		maxRetries:  DefaultMaxRetries,
		gracePeriod: DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Machine returns the approval machine the engine drives
func (e *Engine) Machine() *Machine {
	return e.machine
}

// Now returns the engine clock's current time
func (e *Engine) Now() time.Time {
	return e.clock()
}

// AddObserver registers an observer after construction
func (e *Engine) AddObserver(observer Observer) {
	e.observers.AddObserver(observer)
}

// Submit validates and stores a new request in ISO review. Approver and
// requester contact details missing from the input are filled from the
// directory when one is configured.
func (e *Engine) Submit(ctx context.Context, in CreateInput) (*ExceptionRequest, error) {
	if err := e.populateContacts(ctx, &in); err != nil {
		return nil, err
	}

	req, err := NewExceptionRequest(in, e.clock(), e.ids)
	if err != nil {
		return nil, err
	}

	saved, err := e.store.Save(ctx, req)
	if err != nil {
		e.observers.NotifyError(err, req.RequestID)
		return nil, fmt.Errorf("failed to save exception request: %w", err)
	}
	e.observers.NotifySubmitted(saved)
	return saved, nil
}

func (e *Engine) populateContacts(ctx context.Context, in *CreateInput) error {
	if e.directory == nil {
		return nil
	}

	approver := strings.TrimSpace(in.Approver.Username)
	if approver == "" {
		approver = strings.TrimSpace(in.ApproverUsername)
	}
	if approver != "" && !contactComplete(in.Approver) {
		c, err := e.directory.LookupUser(ctx, approver)
		if err != nil {
			return fmt.Errorf("approver lookup: %w", err)
		}
		in.Approver = mergeContact(in.Approver, c)
		in.Approver.Username = approver
	}

	if in.RequestedBy != "" && !contactComplete(in.Requester) {
		c, err := e.directory.LookupUser(ctx, in.RequestedBy)
		if err != nil && !IsNotFoundError(err) {
			return fmt.Errorf("requester lookup: %w", err)
		}
		if err == nil {
			in.Requester = mergeContact(in.Requester, c)
		}
	}
	return nil
}

func contactComplete(c Contact) bool {
	return c.FirstName != "" && c.LastName != "" && c.Email != "" && c.JobTitle != "" &&
		c.Department != "" && c.Phone != ""
}

// mergeContact fills blank fields of dst from src
func mergeContact(dst, src Contact) Contact {
	fill := func(d *string, s string) {
		if strings.TrimSpace(*d) == "" {
			*d = s
		}
	}
	fill(&dst.Username, src.Username)
	fill(&dst.FirstName, src.FirstName)
	fill(&dst.LastName, src.LastName)
	fill(&dst.Department, src.Department)
	fill(&dst.JobTitle, src.JobTitle)
	fill(&dst.Email, src.Email)
	fill(&dst.Phone, src.Phone)
	return dst
}

// Get returns a request by its request ID
func (e *Engine) Get(ctx context.Context, requestID string) (*ExceptionRequest, error) {
	return e.store.Get(ctx, requestID)
}

// List returns requests matching the filter
func (e *Engine) List(ctx context.Context, filter Filter) ([]*ExceptionRequest, error) {
	return e.store.List(ctx, filter)
}

// Review records a reviewer decision. The role must own the request's current
// phase and the request must be pending.
func (e *Engine) Review(ctx context.Context, requestID string, role Role, outcome Outcome, reviewedBy, comments string) (*ExceptionRequest, error) {
	if !outcome.IsSet() {
		return nil, NewValidationError("outcome", "review outcome required")
	}
	saved, _, err := e.fire(ctx, requestID, func(_ *ExceptionRequest, now time.Time) (*Event, error) {
		return NewReviewEvent(role, outcome, reviewedBy, comments, now), nil
	})
	return saved, err
}

// Resubmit re-queues a declined or need-more-info request to the reviewer
// that blocked it, applying the requester's edits
func (e *Engine) Resubmit(ctx context.Context, requestID string, fields *UpdateFields, comment string) (*ExceptionRequest, error) {
	saved, _, err := e.fire(ctx, requestID, func(current *ExceptionRequest, now time.Time) (*Event, error) {
		ev := NewEvent(EventResubmit, now)
		ev.Actor = current.RequestedBy
		ev.Comment = comment
		ev.Data = fields
		return ev, nil
	})
	return saved, err
}

// RevalidateOnRescan checks an approved exception against fresh scan results
// and voids it when a covered finding escalated or a more severe finding
// appeared. Nothing is written when there is no escalation.
func (e *Engine) RevalidateOnRescan(ctx context.Context, requestID string, findings []Finding) (*RevalidationResult, error) {
	result := &RevalidationResult{RequestID: requestID}
	saved, fired, err := e.fire(ctx, requestID, func(current *ExceptionRequest, now time.Time) (*Event, error) {
		current.Refresh()
		if current.Status != StatusApproved {
			return nil, NewInvalidTransitionError(current.RequestID, current.Phase, current.Status, EventVoid, ReasonNotApproved)
		}
		result.Escalations = nil
		if current.Type != ExceptionVulnerability {
			return nil, nil
		}
		escalations := DetectEscalations(current.Findings(), findings)
		if len(escalations) == 0 {
			return nil, nil
		}
		result.Escalations = escalations

		ev := NewEvent(EventVoid, now)
		ev.Data = &VoidInput{
			Reason:      VoidReason(escalations),
			Escalations: escalations,
			GracePeriod: e.gracePeriod,
		}
		return ev, nil
	})
	if err != nil {
		return nil, err
	}
	result.Voided = fired != nil
	result.Request = saved
	return result, nil
}

// RevalidateServer revalidates every approved vulnerability exception of a server
func (e *Engine) RevalidateServer(ctx context.Context, serverName string, findings []Finding) ([]*RevalidationResult, error) {
	approved, err := e.store.List(ctx, Filter{
		Status:     StatusApproved,
		Type:       ExceptionVulnerability,
		ServerName: serverName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list approved exceptions: %w", err)
	}

	results := make([]*RevalidationResult, 0, len(approved))
	for _, r := range approved {
		res, err := e.RevalidateOnRescan(ctx, r.RequestID, findings)
		if err != nil {
			if IsInvalidTransitionError(err) {
				// changed status since it was listed
				continue
			}
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// decideFunc builds the event to fire from the freshly read request. A nil
// event means there is nothing to do.
type decideFunc func(current *ExceptionRequest, now time.Time) (*Event, error)

// fire runs one read-decide-write cycle under the request lock. It returns the
// saved request and the machine result, or the unchanged request and a nil
// result when decide produced no event.
func (e *Engine) fire(ctx context.Context, requestID string, decide decideFunc) (*ExceptionRequest, *EventResult, error) {
	unlock, err := e.locker.Lock(ctx, requestID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock %s: %w", requestID, err)
	}
	defer unlock()

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		current, err := e.store.Get(ctx, requestID)
		if err != nil {
			return nil, nil, err
		}

		event, err := decide(current, e.clock())
		if err != nil {
			return nil, nil, err
		}
		if event == nil {
			return current, nil, nil
		}

		result := e.machine.Fire(ctx, current, event)
		if result.Error != nil {
			if result.RejectionReason != "" {
				e.observers.NotifyRejected(requestID, event, result.RejectionReason)
			} else if !IsValidationError(result.Error) {
				e.observers.NotifyError(result.Error, requestID)
			}
			return nil, result, result.Error
		}

		saved, err := e.store.Save(ctx, result.Request)
		if IsConcurrencyConflictError(err) {
			lastErr = err
			continue
		}
		if err != nil {
			e.observers.NotifyError(err, requestID)
			return nil, result, fmt.Errorf("failed to save exception request: %w", err)
		}

		e.notify(result, event, saved)
		return saved, result, nil
	}

	e.observers.NotifyError(lastErr, requestID)
	return nil, nil, lastErr
}

func (e *Engine) notify(result *EventResult, event *Event, saved *ExceptionRequest) {
	e.observers.NotifyTransition(result.PreviousPhase, result.CurrentPhase, event, saved)
	if result.PreviousStatus != result.CurrentStatus {
		e.observers.NotifyStatusChange(result.PreviousStatus, result.CurrentStatus, saved)
	}
	if event.Name == EventVoid {
		e.observers.NotifyVoided(saved)
	}
}
