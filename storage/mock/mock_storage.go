// Package mock provides a scriptable TransactionStore for testing callers of
// the storage package.
package mock

import (
	"context"
	"sync"

	"github.com/quiestce/quiestce/storage"
)

// MockTransactionStore keeps entries in plain maps and lets tests replace any
// operation through the *Func fields. It does not expire entries.
type MockTransactionStore struct {
	mu      sync.Mutex
	pending map[string]storage.AuthorizationRequest
	grants  map[string]storage.AuthorizationGrant

	PutPendingFunc  func(ctx context.Context, req *storage.AuthorizationRequest) error
	TakePendingFunc func(ctx context.Context, state string) (*storage.AuthorizationRequest, error)
	PutGrantFunc    func(ctx context.Context, grant *storage.AuthorizationGrant) error
	TakeGrantFunc   func(ctx context.Context, code string) (*storage.AuthorizationGrant, error)

	CallCounts map[string]int
}

var _ storage.TransactionStore = (*MockTransactionStore)(nil)

// NewMockTransactionStore creates a mock whose default behavior matches a
// real store without expiry
func NewMockTransactionStore() *MockTransactionStore {
	m := &MockTransactionStore{
		pending:    make(map[string]storage.AuthorizationRequest),
		grants:     make(map[string]storage.AuthorizationGrant),
		CallCounts: make(map[string]int),
	}

	m.PutPendingFunc = func(_ context.Context, req *storage.AuthorizationRequest) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.pending[req.State] = *req
		return nil
	}

	m.TakePendingFunc = func(_ context.Context, state string) (*storage.AuthorizationRequest, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		req, ok := m.pending[state]
		if !ok {
			return nil, storage.ErrPendingNotFound
		}
		delete(m.pending, state)
		return &req, nil
	}

	m.PutGrantFunc = func(_ context.Context, grant *storage.AuthorizationGrant) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.grants[grant.Code] = *grant
		return nil
	}

	m.TakeGrantFunc = func(_ context.Context, code string) (*storage.AuthorizationGrant, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		grant, ok := m.grants[code]
		if !ok {
			return nil, storage.ErrGrantNotFound
		}
		delete(m.grants, code)
		return &grant, nil
	}

	return m
}

func (m *MockTransactionStore) count(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[op]++
}

// Calls returns how many times op was invoked
func (m *MockTransactionStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCounts[op]
}

// PutPending implements storage.TransactionStore
func (m *MockTransactionStore) PutPending(ctx context.Context, req *storage.AuthorizationRequest) error {
	m.count("PutPending")
	return m.PutPendingFunc(ctx, req)
}

// TakePending implements storage.TransactionStore
func (m *MockTransactionStore) TakePending(ctx context.Context, state string) (*storage.AuthorizationRequest, error) {
	m.count("TakePending")
	return m.TakePendingFunc(ctx, state)
}

// PutGrant implements storage.TransactionStore
func (m *MockTransactionStore) PutGrant(ctx context.Context, grant *storage.AuthorizationGrant) error {
	m.count("PutGrant")
	return m.PutGrantFunc(ctx, grant)
}

// TakeGrant implements storage.TransactionStore
func (m *MockTransactionStore) TakeGrant(ctx context.Context, code string) (*storage.AuthorizationGrant, error) {
	m.count("TakeGrant")
	return m.TakeGrantFunc(ctx, code)
}
