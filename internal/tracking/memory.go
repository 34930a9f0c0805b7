package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used in demonstration mode and tests.
// It is safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]*Record
	now  func() time.Time
}

// Compile-time interface assertion.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		recs: make(map[string]*Record),
		now:  time.Now,
	}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.PIN]; ok {
		return fmt.Errorf("tracking: pin %s already exists", rec.PIN)
	}
	r := rec
	r.History = append([]Event(nil), rec.History...)
	s.recs[rec.PIN] = &r
	return nil
}

// Get implements Store. The returned record is a copy.
func (s *MemoryStore) Get(_ context.Context, pin string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[pin]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	out.History = append([]Event(nil), rec.History...)
	if rec.Appointment != nil {
		appt := *rec.Appointment
		out.Appointment = &appt
	}
	return &out, nil
}

// UpdateStatus implements Store.
func (s *MemoryStore) UpdateStatus(_ context.Context, pin string, status Status, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[pin]
	if !ok {
		return ErrNotFound
	}
	now := s.now()
	rec.Status = status
	rec.UpdatedAt = now
	if note == "" {
		note = "Estado actualizado a: " + string(status)
	}
	rec.History = append(rec.History, Event{Status: status, Note: note, At: now})
	return nil
}

// AttachAppointment implements Store.
func (s *MemoryStore) AttachAppointment(_ context.Context, pin string, appt Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[pin]
	if !ok {
		return ErrNotFound
	}
	a := appt
	rec.Appointment = &a
	rec.UpdatedAt = s.now()
	return nil
}
