package fraud

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/purchase"
)

// MockScorer simulates the external risk-scoring service. Scores are
// derived from the session ID so a given session always scores the same,
// which keeps local runs reproducible.
type MockScorer struct {
	latency time.Duration
}

type MockScorerOption func(*MockScorer)

func WithScorerLatency(d time.Duration) MockScorerOption {
	return func(s *MockScorer) { s.latency = d }
}

func NewMockScorer(opts ...MockScorerOption) *MockScorer {
	s := &MockScorer{latency: 50 * time.Millisecond}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *MockScorer) Score(ctx context.Context, pctx purchase.Context, signals Signals) (float64, error) {
	select {
	case <-time.After(s.latency):
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	h := fnv.New32a()
	h.Write([]byte(pctx.SessionID))
	base := float64(h.Sum32()%100) / 100.0

	// Velocity pushes the score up regardless of the hash.
	score := base*0.5 + float64(min(signals.VelocityCount, 10))*0.05
	if score > 1.0 {
		score = 1.0
	}
	return score, nil
}
