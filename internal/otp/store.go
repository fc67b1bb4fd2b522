package otp

import (
	"context"
	"sync"
	"time"
)

// Record is an issued verification code, keyed by email.
type Record struct {
	Email     string    `json:"email" dynamodbav:"email"`
	Code      string    `json:"code" dynamodbav:"code"`
	ExpiresAt time.Time `json:"expires_at" dynamodbav:"expires_at"`
	Attempts  int       `json:"attempts" dynamodbav:"attempts"`
}

// Store is the backing storage for OTP records and the one-time verified
// set. The in-memory implementation matches the source system's semantics
// (state lost on restart, single process); multi-instance deployments use
// the DynamoDB implementation.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, email string) (*Record, bool, error)
	Delete(ctx context.Context, email string) error
	MarkVerified(ctx context.Context, email string) error
	ConsumeVerified(ctx context.Context, email string) (bool, error)
	Sweep(ctx context.Context) error
}

// MemoryStore keeps OTP state in process-local maps.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]Record
	verified map[string]struct{}
	nowFunc  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]Record),
		verified: make(map[string]struct{}),
		nowFunc:  time.Now,
	}
}

func (m *MemoryStore) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Email] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, email string) (*Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[email]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (m *MemoryStore) Delete(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, email)
	return nil
}

func (m *MemoryStore) MarkVerified(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verified[email] = struct{}{}
	return nil
}

func (m *MemoryStore) ConsumeVerified(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.verified[email]; !ok {
		return false, nil
	}
	delete(m.verified, email)
	return true, nil
}

// Sweep removes records whose expiry has passed. Expiry is also checked
// lazily on Verify, so the sweep only bounds memory growth.
func (m *MemoryStore) Sweep(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFunc()
	for email, rec := range m.records {
		if now.After(rec.ExpiresAt) {
			delete(m.records, email)
		}
	}
	return nil
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func StartSweeper(ctx context.Context, store Store, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = store.Sweep(ctx)
			}
		}
	}()
}
