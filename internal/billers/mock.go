package billers

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/google/uuid"
)

// MockBiller simulates a biller gateway for local development and load
// testing.
type MockBiller struct {
	name          string
	latency       time.Duration
	declineRate   float64 // 0.0 to 1.0
	challengeRate float64 // 0.0 to 1.0
	timeoutRate   float64 // 0.0 to 1.0
	challengeTTL  time.Duration
}

type MockBillerOption func(*MockBiller)

func WithLatency(d time.Duration) MockBillerOption {
	return func(b *MockBiller) { b.latency = d }
}

func WithDeclineRate(rate float64) MockBillerOption {
	return func(b *MockBiller) { b.declineRate = rate }
}

func WithChallengeRate(rate float64) MockBillerOption {
	return func(b *MockBiller) { b.challengeRate = rate }
}

func WithTimeoutRate(rate float64) MockBillerOption {
	return func(b *MockBiller) { b.timeoutRate = rate }
}

func WithChallengeTTL(ttl time.Duration) MockBillerOption {
	return func(b *MockBiller) { b.challengeTTL = ttl }
}

func NewMockBiller(name string, opts ...MockBillerOption) *MockBiller {
	b := &MockBiller{
		name:         name,
		latency:      100 * time.Millisecond,
		challengeTTL: 15 * time.Minute,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *MockBiller) Name() string { return b.name }

func (b *MockBiller) simulate(ctx context.Context) error {
	select {
	case <-time.After(b.latency):
	case <-ctx.Done():
		return ctx.Err()
	}
	if rand.Float64() < b.timeoutRate {
		return domainErrors.ErrBillerTimeout
	}
	return nil
}

func (b *MockBiller) params() *ThreeDSParams {
	token := uuid.New().String()
	return &ThreeDSParams{
		PAReq:          fmt.Sprintf("pareq_%s", token[:8]),
		ACSURL:         fmt.Sprintf("https://acs.%s.example/challenge", b.name),
		MD:             fmt.Sprintf("md_%s", token[:8]),
		ChallengeToken: token,
		TTL:            b.challengeTTL,
	}
}

func (b *MockBiller) AttemptCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if err := b.simulate(ctx); err != nil {
		return nil, err
	}
	if rand.Float64() < b.challengeRate {
		return &ChargeResult{
			Outcome: ChargeChallengeRequired,
			ThreeDS: b.params(),
		}, nil
	}
	if rand.Float64() < b.declineRate {
		return &ChargeResult{
			Outcome:       ChargeDeclined,
			DeclineReason: fmt.Sprintf("%s: simulated decline for session %s", b.name, req.SessionID),
		}, nil
	}
	return &ChargeResult{
		Outcome:       ChargeApproved,
		TransactionID: fmt.Sprintf("%s_txn_%s", b.name, uuid.New().String()[:8]),
	}, nil
}

func (b *MockBiller) Lookup3DS(ctx context.Context, req LookupRequest) (*LookupResult, error) {
	if err := b.simulate(ctx); err != nil {
		return nil, err
	}
	return &LookupResult{Enrolled: true, Params: b.params()}, nil
}

func (b *MockBiller) Authenticate3DS(ctx context.Context, req AuthenticateRequest) (*AuthenticateResult, error) {
	if err := b.simulate(ctx); err != nil {
		return nil, err
	}
	if req.PARes == "" {
		return &AuthenticateResult{Authenticated: false, Reason: "empty challenge response"}, nil
	}
	return &AuthenticateResult{Authenticated: true}, nil
}

func (b *MockBiller) Complete3DS(ctx context.Context, req CompleteRequest) (*ChargeResult, error) {
	if err := b.simulate(ctx); err != nil {
		return nil, err
	}
	if rand.Float64() < b.declineRate {
		return &ChargeResult{
			Outcome:       ChargeDeclined,
			DeclineReason: fmt.Sprintf("%s: simulated decline on 3ds completion", b.name),
		}, nil
	}
	return &ChargeResult{
		Outcome:       ChargeApproved,
		TransactionID: fmt.Sprintf("%s_txn_%s", b.name, uuid.New().String()[:8]),
	}, nil
}
