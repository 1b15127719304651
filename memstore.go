package exflow

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. It hands out deep copies so callers can
// never mutate stored state.
type MemoryStore struct {
	mutex sync.RWMutex
	items map[string]*ExceptionRequest
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*ExceptionRequest)}
}

// Get returns a copy of the stored request
func (s *MemoryStore) Get(ctx context.Context, requestID string) (*ExceptionRequest, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	r, ok := s.items[requestID]
	if !ok {
		return nil, NewRequestNotFoundError(requestID)
	}
	return r.Clone(), nil
}

// List returns matching requests ordered by creation time
func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*ExceptionRequest, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]*ExceptionRequest, 0, len(s.items))
	for _, r := range s.items {
		if filter.Matches(r) {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].RequestID < result[j].RequestID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Save stores the request if its version matches the stored one
func (s *MemoryStore) Save(ctx context.Context, request *ExceptionRequest) (*ExceptionRequest, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var current int64
	if existing, ok := s.items[request.RequestID]; ok {
		current = existing.Version
	}
	if current != request.Version {
		return nil, NewConcurrencyConflictError(request.RequestID, request.Version, current)
	}

	stored := request.Clone()
	stored.Version = current + 1
	s.items[stored.RequestID] = stored
	return stored.Clone(), nil
}

// Len returns the number of stored requests
func (s *MemoryStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.items)
}

// KeyedLocker is an in-process Locker with one mutex per key. Idle keys are
// dropped once nobody holds or waits for them.
type KeyedLocker struct {
	mutex sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedLocker creates an empty locker
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedLock)}
}

// Lock blocks until the key is free or ctx is done
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mutex.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyedLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mutex.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *KeyedLocker) release(key string, kl *keyedLock) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *KeyedLocker) size() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.locks)
}

// StaticDirectory is a fixed, case-insensitive username lookup table
type StaticDirectory map[string]Contact

// LookupUser implements Directory
func (d StaticDirectory) LookupUser(ctx context.Context, username string) (Contact, error) {
	key := strings.ToLower(strings.TrimSpace(username))
	for name, c := range d {
		if strings.ToLower(name) == key {
			if c.Username == "" {
				c.Username = name
			}
			return c, nil
		}
	}
	return Contact{}, NewUserNotFoundError(username)
}
