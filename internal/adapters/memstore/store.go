// Package memstore provides in-memory implementations of the host
// persistence ports, used by the reference API harness and in tests. A real
// host framework supplies its own storage and serializes calls per payment.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/commercekit/paymetric-payments/internal/core/domain"
)

// PaymentStore keeps payments in memory.
type PaymentStore struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment
}

// NewPaymentStore creates an empty payment store.
func NewPaymentStore() *PaymentStore {
	return &PaymentStore{payments: make(map[string]*domain.Payment)}
}

// Save stores a payment, assigning an id on first save.
func (s *PaymentStore) Save(_ context.Context, payment *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	s.payments[payment.ID] = payment
	return nil
}

// Get loads a payment by id.
func (s *PaymentStore) Get(_ context.Context, id string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payment, ok := s.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %q: %w", id, domain.ErrNotFound)
	}
	return payment, nil
}

// MethodStore keeps stored payment methods in memory.
type MethodStore struct {
	mu      sync.RWMutex
	methods map[string]*domain.PaymentMethod
}

// NewMethodStore creates an empty method store.
func NewMethodStore() *MethodStore {
	return &MethodStore{methods: make(map[string]*domain.PaymentMethod)}
}

// Save stores a payment method, assigning an id on first save.
func (s *MethodStore) Save(_ context.Context, method *domain.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if method.ID == "" {
		method.ID = uuid.New().String()
	}
	s.methods[method.ID] = method
	return nil
}

// Get loads a payment method by id.
func (s *MethodStore) Get(_ context.Context, id string) (*domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	method, ok := s.methods[id]
	if !ok {
		return nil, fmt.Errorf("payment method %q: %w", id, domain.ErrNotFound)
	}
	return method, nil
}

// Delete removes a payment method.
func (s *MethodStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.methods[id]; !ok {
		return fmt.Errorf("payment method %q: %w", id, domain.ErrNotFound)
	}
	delete(s.methods, id)
	return nil
}
