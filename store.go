package exflow

import (
	"context"
	"strings"
)

// Store persists exception requests. Save is an atomic compare-and-swap on
// Version: the request passed in carries the version it was read at (0 for a
// new request) and the stored copy comes back with the version incremented.
// A mismatch fails with ConcurrencyConflictError. Get fails with
// NotFoundError for unknown request IDs.
type Store interface {
	Get(ctx context.Context, requestID string) (*ExceptionRequest, error)
	List(ctx context.Context, filter Filter) ([]*ExceptionRequest, error)
	Save(ctx context.Context, request *ExceptionRequest) (*ExceptionRequest, error)
}

// Locker serializes mutations of one request. The returned function releases
// the lock and is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Directory resolves usernames to contact details. Unknown users fail with
// NotFoundError.
type Directory interface {
	LookupUser(ctx context.Context, username string) (Contact, error)
}

// Filter selects requests in List. Zero fields match everything.
type Filter struct {
	Status      Status        `json:"status,omitempty"`
	Phase       Phase         `json:"phase,omitempty"`
	Type        ExceptionType `json:"exceptionType,omitempty"`
	RequestedBy string        `json:"requestedBy,omitempty"`
	ServerName  string        `json:"serverName,omitempty"`
	Limit       int           `json:"limit,omitempty"`
}

// Matches reports whether a request satisfies the filter
func (f Filter) Matches(r *ExceptionRequest) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Phase != "" && r.Phase != f.Phase {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.RequestedBy != "" && !strings.EqualFold(r.RequestedBy, f.RequestedBy) {
		return false
	}
	if f.ServerName != "" {
		found := false
		for _, s := range r.Servers() {
			if strings.EqualFold(s, f.ServerName) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
