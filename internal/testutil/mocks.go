package testutil

import (
	"context"
	"sync"

	"github.com/cassiomorais/checkout/internal/billers"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/cassiomorais/checkout/internal/domain/purchase"
	"github.com/cassiomorais/checkout/internal/fraud"
	"github.com/cassiomorais/checkout/internal/postback"
	"github.com/cassiomorais/checkout/internal/session"
	"github.com/google/uuid"
)

// --- Session Store Mock ---

type storedSession struct {
	payload session.Payload
	version int64
}

// MockSessionStore is a map-backed session.Store with optimistic locking.
type MockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*storedSession

	LoadFunc   func(ctx context.Context, sessionID string) (session.Payload, int64, error)
	CreateFunc func(ctx context.Context, sessionID string, payload session.Payload) error
	SaveFunc   func(ctx context.Context, sessionID string, payload session.Payload, expectedVersion int64) (int64, error)
}

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{sessions: make(map[string]*storedSession)}
}

func (m *MockSessionStore) Load(ctx context.Context, sessionID string) (session.Payload, int64, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return session.Payload{}, 0, domainErrors.ErrSessionNotFound
	}
	return s.payload, s.version, nil
}

func (m *MockSessionStore) Create(ctx context.Context, sessionID string, payload session.Payload) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, sessionID, payload)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; ok {
		return domainErrors.ErrConcurrentModification
	}
	m.sessions[sessionID] = &storedSession{payload: payload, version: 1}
	return nil
}

func (m *MockSessionStore) Save(ctx context.Context, sessionID string, payload session.Payload, expectedVersion int64) (int64, error) {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, sessionID, payload, expectedVersion)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return 0, domainErrors.ErrSessionNotFound
	}
	if s.version != expectedVersion {
		return 0, domainErrors.ErrConcurrentModification
	}
	s.payload = payload
	s.version++
	return s.version, nil
}

// Seed stores a payload directly at version 1, bypassing Create semantics.
func (m *MockSessionStore) Seed(sessionID string, payload session.Payload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = &storedSession{payload: payload, version: 1}
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is a mock implementation of outbox.Repository.
type MockOutboxRepository struct {
	mu      sync.Mutex
	Entries []*outbox.Entry

	InsertFunc func(ctx context.Context, entry *outbox.Entry) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*outbox.Entry
	for _, e := range m.Entries {
		if e.Status == outbox.StatusPending {
			pending = append(pending, e)
			if len(pending) == limit {
				break
			}
		}
	}
	return pending, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			e.Status = outbox.StatusPublished
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			e.RetryCount++
			if e.RetryCount >= e.MaxRetries {
				e.Status = outbox.StatusFailed
			}
		}
	}
	return nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager runs the function without a real transaction.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Scripted Biller ---

// ScriptedBiller is a billers.Adapter whose every call is scripted by the
// test. Unscripted calls return a plain decline.
type ScriptedBiller struct {
	BillerName string

	AttemptChargeFunc   func(ctx context.Context, req billers.ChargeRequest) (*billers.ChargeResult, error)
	Lookup3DSFunc       func(ctx context.Context, req billers.LookupRequest) (*billers.LookupResult, error)
	Authenticate3DSFunc func(ctx context.Context, req billers.AuthenticateRequest) (*billers.AuthenticateResult, error)
	Complete3DSFunc     func(ctx context.Context, req billers.CompleteRequest) (*billers.ChargeResult, error)

	mu    sync.Mutex
	Calls []string
}

func (s *ScriptedBiller) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, op)
}

func (s *ScriptedBiller) Name() string {
	if s.BillerName == "" {
		return "scripted"
	}
	return s.BillerName
}

func (s *ScriptedBiller) AttemptCharge(ctx context.Context, req billers.ChargeRequest) (*billers.ChargeResult, error) {
	s.record("attempt")
	if s.AttemptChargeFunc != nil {
		return s.AttemptChargeFunc(ctx, req)
	}
	return &billers.ChargeResult{Outcome: billers.ChargeDeclined, DeclineReason: "unscripted"}, nil
}

func (s *ScriptedBiller) Lookup3DS(ctx context.Context, req billers.LookupRequest) (*billers.LookupResult, error) {
	s.record("lookup")
	if s.Lookup3DSFunc != nil {
		return s.Lookup3DSFunc(ctx, req)
	}
	return &billers.LookupResult{Enrolled: false, Decision: &billers.ChargeResult{Outcome: billers.ChargeDeclined, DeclineReason: "unscripted"}}, nil
}

func (s *ScriptedBiller) Authenticate3DS(ctx context.Context, req billers.AuthenticateRequest) (*billers.AuthenticateResult, error) {
	s.record("authenticate")
	if s.Authenticate3DSFunc != nil {
		return s.Authenticate3DSFunc(ctx, req)
	}
	return &billers.AuthenticateResult{Authenticated: false, Reason: "unscripted"}, nil
}

func (s *ScriptedBiller) Complete3DS(ctx context.Context, req billers.CompleteRequest) (*billers.ChargeResult, error) {
	s.record("complete")
	if s.Complete3DSFunc != nil {
		return s.Complete3DSFunc(ctx, req)
	}
	return &billers.ChargeResult{Outcome: billers.ChargeDeclined, DeclineReason: "unscripted"}, nil
}

// --- Fixed Scorer ---

// FixedScorer always returns the same risk score.
type FixedScorer struct {
	RiskScore float64
	Err       error
}

func (s *FixedScorer) Score(ctx context.Context, pctx purchase.Context, signals fraud.Signals) (float64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	return s.RiskScore, nil
}

// --- Postback Sender Mock ---

// MockSender records postback sends and fails the first FailFirst calls.
type MockSender struct {
	mu        sync.Mutex
	FailFirst int
	FailErr   error
	Sent      []string
	calls     int
}

func (m *MockSender) Send(ctx context.Context, url string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.FailFirst {
		if m.FailErr != nil {
			return m.FailErr
		}
		return domainErrors.ErrPostbackRejected
	}
	m.Sent = append(m.Sent, url)
	return nil
}

func (m *MockSender) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ postback.Sender = (*MockSender)(nil)
