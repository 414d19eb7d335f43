package purchase

import (
	"context"
	"testing"
	"time"

	"github.com/cassiomorais/checkout/internal/billers"
	"github.com/cassiomorais/checkout/internal/callgate"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/purchase"
	"github.com/cassiomorais/checkout/internal/fraud"
	"github.com/cassiomorais/checkout/internal/session"
	"github.com/cassiomorais/checkout/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStack struct {
	store     *testutil.MockSessionStore
	outbox    *testutil.MockOutboxRepository
	persister *Persister
	registry  *billers.Registry
	gate      *callgate.Gate
	timeouts  GateTimeouts
}

func newTestStack(t *testing.T, adapters ...billers.Adapter) *testStack {
	t.Helper()
	store := testutil.NewMockSessionStore()
	outboxRepo := testutil.NewMockOutboxRepository()
	persister := NewPersister(
		store,
		session.NewCodec(),
		&testutil.MockTransactionManager{},
		outboxRepo,
		PostbackPolicy{MaxAttempts: 5, RetryDelay: time.Second},
	)
	return &testStack{
		store:     store,
		outbox:    outboxRepo,
		persister: persister,
		registry:  billers.NewRegistry(adapters...),
		gate: callgate.New(callgate.Settings{
			FailureThreshold: 100,
			CoolDown:         time.Minute,
			DefaultTimeout:   time.Second,
		}),
		timeouts: GateTimeouts{
			Biller:     time.Second,
			Fraud:      time.Second,
			BinRouting: time.Second,
		},
	}
}

func (s *testStack) attemptUseCase(scorer fraud.Scorer) *AttemptUseCase {
	return NewAttemptUseCase(s.persister, s.registry, fraud.NewFactory(scorer), s.gate, s.timeouts)
}

// seed persists a fresh process for the given billers and returns its
// session ID.
func (s *testStack) seed(t *testing.T, billerNames ...string) string {
	t.Helper()
	p := testutil.NewTestProcess(t, billerNames...)
	require.NoError(t, s.persister.Create(context.Background(), p))
	return p.SessionID
}

func approvingBiller(name string) *testutil.ScriptedBiller {
	return &testutil.ScriptedBiller{
		BillerName: name,
		AttemptChargeFunc: func(ctx context.Context, req billers.ChargeRequest) (*billers.ChargeResult, error) {
			return &billers.ChargeResult{Outcome: billers.ChargeApproved, TransactionID: "txn-1"}, nil
		},
	}
}

func decliningBiller(name string) *testutil.ScriptedBiller {
	return &testutil.ScriptedBiller{BillerName: name}
}

func TestAttempt_Approved(t *testing.T) {
	biller := approvingBiller("netbilling")
	stack := newTestStack(t, biller)
	sessionID := stack.seed(t, "netbilling")
	uc := stack.attemptUseCase(&testutil.FixedScorer{RiskScore: 0.1})

	p, err := uc.Execute(context.Background(), sessionID, fraud.Signals{})
	require.NoError(t, err)

	assert.Equal(t, purchase.StateApproved, p.State)
	require.NotNil(t, p.FinalOutcome)
	assert.Equal(t, "approved", p.FinalOutcome.Status)
	assert.Equal(t, "netbilling", p.FinalOutcome.Biller)
	require.Len(t, p.Attempts, 1)
	assert.Equal(t, purchase.OutcomeApproved, p.Attempts[0].Outcome)
	assert.Equal(t, []string{"attempt"}, biller.Calls)
}

func TestAttempt_FraudDenyShortCircuits(t *testing.T) {
	biller := approvingBiller("netbilling")
	stack := newTestStack(t, biller)
	sessionID := stack.seed(t, "netbilling")
	uc := stack.attemptUseCase(&testutil.FixedScorer{RiskScore: 0.95})

	p, err := uc.Execute(context.Background(), sessionID, fraud.Signals{})
	require.NoError(t, err)

	// The deny never reaches a biller and leaves no attempt record.
	assert.Equal(t, purchase.StateDeclined, p.State)
	assert.Equal(t, "denied by fraud gate", p.FinalOutcome.Reason)
	assert.Empty(t, p.Attempts)
	assert.Empty(t, biller.Calls)
}

func TestAttempt_FraudFlagMarksAttempt(t *testing.T) {
	stack := newTestStack(t, approvingBiller("netbilling"))
	sessionID := stack.seed(t, "netbilling")
	uc := stack.attemptUseCase(&testutil.FixedScorer{RiskScore: 0.70})

	p, err := uc.Execute(context.Background(), sessionID, fraud.Signals{})
	require.NoError(t, err)

	assert.Equal(t, purchase.StateApproved, p.State)
	require.Len(t, p.Attempts, 1)
	assert.True(t, p.Attempts[0].FraudFlagged)
}

func TestAttempt_ScorerErrorFallsBackToStrategyFallback(t *testing.T) {
	// Card checks fail closed: an unreachable scorer denies the purchase.
	biller := approvingBiller("netbilling")
	stack := newTestStack(t, biller)
	sessionID := stack.seed(t, "netbilling")
	uc := stack.attemptUseCase(&testutil.FixedScorer{Err: domainErrors.ErrDependencyTimeout})

	p, err := uc.Execute(context.Background(), sessionID, fraud.Signals{})
	require.NoError(t, err)

	assert.Equal(t, purchase.StateDeclined, p.State)
	assert.Empty(t, biller.Calls)
}

func TestAttempt_FailureAdvancesCascade(t *testing.T) {
	first := decliningBiller("netbilling")
	second := approvingBiller("epoch")
	stack := newTestStack(t, first, second)
	sessionID := stack.seed(t, "netbilling", "epoch")
	uc := stack.attemptUseCase(&testutil.FixedScorer{RiskScore: 0.1})

	p, err := uc.Execute(context.Background(), sessionID, fraud.Signals{})
	require.NoError(t, err)
	assert.Equal(t, purchase.StateAwaitingBiller, p.State)
	require.Len(t, p.Attempts, 1)
	assert.Equal(t, purchase.FailureDeclined, p.Attempts[0].FailureKind)

	// The next attempt reloads the saved state and hits the next biller.
	p, err = uc.Execute(context.Background(), sessionID, fraud.Signals{})
	require.NoError(t, err)
	assert.Equal(t, purchase.StateApproved, p.State)
	assert.Equal(t, "epoch", p.FinalOutcome.Biller)
	require.Len(t, p.Attempts, 2)
}

func TestAttempt_ExhaustionDeclines(t *testing.T) {
	stack := newTestStack(t, decliningBiller("netbilling"))
	sessionID := stack.seed(t, "netbilling")
	uc := stack.attemptUseCase(&testutil.FixedScorer{RiskScore: 0.1})

	p, err := uc.Execute(context.Background(), sessionID, fraud.Signals{})
	require.NoError(t, err)

	assert.Equal(t, purchase.StateDeclined, p.State)
	assert.Equal(t, "cascade exhausted", p.FinalOutcome.Reason)
}

func TestAttempt_BillerErrorRecordsTimeout(t *testing.T) {
	biller := &testutil.ScriptedBiller{
		BillerName: "netbilling",
		AttemptChargeFunc: func(ctx context.Context, req billers.ChargeRequest) (*billers.ChargeResult, error) {
			return nil, domainErrors.ErrBillerTimeout
		},
	}
	stack := newTestStack(t, biller, approvingBiller("epoch"))
	sessionID := stack.seed(t, "netbilling", "epoch")
	uc := stack.attemptUseCase(&testutil.FixedScorer{RiskScore: 0.1})

	p, err := uc.Execute(context.Background(), sessionID, fraud.Signals{})
	require.NoError(t, err)

	require.Len(t, p.Attempts, 1)
	assert.Equal(t, purchase.FailureTimeout, p.Attempts[0].FailureKind)
	assert.Equal(t, purchase.StateAwaitingBiller, p.State)
}

func TestAttempt_ChallengeEntersThreeDS(t *testing.T) {
	biller := &testutil.ScriptedBiller{
		BillerName: "netbilling",
		AttemptChargeFunc: func(ctx context.Context, req billers.ChargeRequest) (*billers.ChargeResult, error) {
			return &billers.ChargeResult{
				Outcome: billers.ChargeChallengeRequired,
				ThreeDS: &billers.ThreeDSParams{
					PAReq:          "pareq-1",
					ACSURL:         "https://acs.example.com",
					MD:             "md-1",
					ChallengeToken: "tok-1",
				},
			}, nil
		},
	}
	stack := newTestStack(t, biller, approvingBiller("epoch"))
	sessionID := stack.seed(t, "netbilling", "epoch")
	uc := stack.attemptUseCase(&testutil.FixedScorer{RiskScore: 0.1})

	p, err := uc.Execute(context.Background(), sessionID, fraud.Signals{})
	require.NoError(t, err)

	assert.Equal(t, purchase.StateAwaiting3DSLookup, p.State)
	require.NotNil(t, p.ThreeDS)
	assert.Equal(t, "md-1", p.ThreeDS.MD)

	// The challenged candidate stays current for the 3DS steps.
	cand, ok := p.CurrentCandidate()
	require.True(t, ok)
	assert.Equal(t, "netbilling", cand.Biller)
}

func TestAttempt_TerminalStateRejected(t *testing.T) {
	stack := newTestStack(t, approvingBiller("netbilling"))
	sessionID := stack.seed(t, "netbilling")
	uc := stack.attemptUseCase(&testutil.FixedScorer{RiskScore: 0.1})

	_, err := uc.Execute(context.Background(), sessionID, fraud.Signals{})
	require.NoError(t, err)

	_, err = uc.Execute(context.Background(), sessionID, fraud.Signals{})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
}

func TestAttempt_UnknownSession(t *testing.T) {
	stack := newTestStack(t, approvingBiller("netbilling"))
	uc := stack.attemptUseCase(&testutil.FixedScorer{RiskScore: 0.1})

	_, err := uc.Execute(context.Background(), "no-such-session", fraud.Signals{})
	assert.ErrorIs(t, err, domainErrors.ErrSessionNotFound)
}
