package purchase

import (
	"context"
	"testing"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/cascade"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/purchase"
	"github.com/cassiomorais/checkout/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initiateStack(t *testing.T, sites StaticSiteConfigs) (*InitiateUseCase, *testStack) {
	t.Helper()
	stack := newTestStack(t, approvingBiller("netbilling"), approvingBiller("epoch"))
	uc := NewInitiateUseCase(cascade.NewSelector(nil), sites, stack.persister)
	return uc, stack
}

func TestInitiate_CreatesProcess(t *testing.T) {
	uc, stack := initiateStack(t, StaticSiteConfigs{
		"site-1": testutil.TestSiteConfig("netbilling", "epoch"),
	})

	p, err := uc.Execute(context.Background(), testutil.ValidContext("sess-init"))
	require.NoError(t, err)

	assert.Equal(t, purchase.StateInitialized, p.State)
	assert.Equal(t, int64(1), p.Version)
	assert.Equal(t, 2, p.Cascade.Remaining())

	reloaded, err := stack.persister.Load(context.Background(), "sess-init")
	require.NoError(t, err)
	assert.Equal(t, p.State, reloaded.State)
	assert.Equal(t, p.Cascade, reloaded.Cascade)
}

func TestInitiate_GeneratesSessionID(t *testing.T) {
	uc, _ := initiateStack(t, StaticSiteConfigs{
		"site-1": testutil.TestSiteConfig(),
	})

	pctx := testutil.ValidContext("ignored")
	pctx.SessionID = ""
	p, err := uc.Execute(context.Background(), pctx)
	require.NoError(t, err)
	assert.NotEmpty(t, p.SessionID)
}

func TestInitiate_NoEligibleBillerDeclines(t *testing.T) {
	cfg := testutil.TestSiteConfig()
	cfg.EnabledBillers = nil
	uc, stack := initiateStack(t, StaticSiteConfigs{"site-1": cfg})

	pctx := testutil.ValidContext("sess-empty")
	pctx.PostbackURL = "https://merchant.example.com/postback"
	p, err := uc.Execute(context.Background(), pctx)
	require.NoError(t, err)

	// An empty cascade is a purchase-level decline, not a system error.
	assert.Equal(t, purchase.StateDeclined, p.State)
	assert.Equal(t, "no eligible biller", p.FinalOutcome.Reason)

	// The decline is terminal at creation, so the postback is already
	// enqueued.
	require.Len(t, stack.outbox.Entries, 1)
	assert.Equal(t, "sess-empty", stack.outbox.Entries[0].AggregateID)
}

func TestInitiate_UnknownSiteFallsBackToDefault(t *testing.T) {
	uc, _ := initiateStack(t, StaticSiteConfigs{
		DefaultSiteKey: testutil.TestSiteConfig(),
	})

	pctx := testutil.ValidContext("sess-default")
	pctx.SiteID = "brand-new-site"
	p, err := uc.Execute(context.Background(), pctx)
	require.NoError(t, err)
	assert.Equal(t, "brand-new-site", p.SiteID)
	assert.Equal(t, 2, p.Cascade.Remaining())
}

func TestInitiate_UnknownSiteWithoutDefault(t *testing.T) {
	uc, _ := initiateStack(t, StaticSiteConfigs{
		"site-1": testutil.TestSiteConfig(),
	})

	pctx := testutil.ValidContext("sess-x")
	pctx.SiteID = "nobody-home"
	_, err := uc.Execute(context.Background(), pctx)
	var validationErr *domainErrors.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestInitiate_DuplicateSession(t *testing.T) {
	uc, _ := initiateStack(t, StaticSiteConfigs{
		"site-1": testutil.TestSiteConfig(),
	})

	pctx := testutil.ValidContext("sess-dup")
	_, err := uc.Execute(context.Background(), pctx)
	require.NoError(t, err)

	_, err = uc.Execute(context.Background(), pctx)
	assert.ErrorIs(t, err, domainErrors.ErrConcurrentModification)
}

func TestAbort_NonTerminalSession(t *testing.T) {
	stack := newTestStack(t, approvingBiller("netbilling"))
	sessionID := stack.seed(t, "netbilling")
	uc := NewAbortUseCase(stack.persister)

	p, err := uc.Execute(context.Background(), sessionID, "consumer closed the window")
	require.NoError(t, err)

	assert.Equal(t, purchase.StateAborted, p.State)
	assert.Equal(t, "consumer closed the window", p.FinalOutcome.Reason)
}

func TestAbort_TerminalSessionRejected(t *testing.T) {
	stack := newTestStack(t, approvingBiller("netbilling"))
	sessionID := stack.seed(t, "netbilling")
	uc := NewAbortUseCase(stack.persister)

	_, err := uc.Execute(context.Background(), sessionID, "first")
	require.NoError(t, err)

	_, err = uc.Execute(context.Background(), sessionID, "second")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
}

func TestGet_ReturnsStoredProcess(t *testing.T) {
	stack := newTestStack(t, approvingBiller("netbilling"))
	sessionID := stack.seed(t, "netbilling")
	uc := NewGetUseCase(stack.persister)

	p, err := uc.Execute(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, p.SessionID)
	assert.Equal(t, purchase.StateInitialized, p.State)
}

func TestPersister_TerminalSaveEnqueuesPostback(t *testing.T) {
	stack := newTestStack(t)
	p := testutil.NewTestProcess(t, "netbilling")
	p.Context.PostbackURL = "https://merchant.example.com/postback"
	require.NoError(t, stack.persister.Create(context.Background(), p))

	cand, _ := p.CurrentCandidate()
	require.NoError(t, p.RecordApproval(cand, false))
	require.NoError(t, stack.persister.Save(context.Background(), p))

	require.Len(t, stack.outbox.Entries, 1)
	entry := stack.outbox.Entries[0]
	assert.Equal(t, "purchase.finalized", entry.EventType)
	assert.Equal(t, p.SessionID, entry.AggregateID)
	assert.Equal(t, "https://merchant.example.com/postback", entry.Payload["url"])
	assert.Equal(t, 5, entry.Payload["max_attempts"])
	assert.Equal(t, time.Second.Milliseconds(), entry.Payload["retry_delay_ms"])
	outcome, ok := entry.Payload["outcome"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "approved", outcome["status"])
}

func TestPersister_TerminalSaveWithoutURLSkipsPostback(t *testing.T) {
	stack := newTestStack(t)
	p := testutil.NewTestProcess(t, "netbilling")
	require.NoError(t, stack.persister.Create(context.Background(), p))

	cand, _ := p.CurrentCandidate()
	require.NoError(t, p.RecordApproval(cand, false))
	require.NoError(t, stack.persister.Save(context.Background(), p))

	assert.Empty(t, stack.outbox.Entries)
}

func TestPersister_ConcurrentModificationSurfaces(t *testing.T) {
	stack := newTestStack(t)
	p := testutil.NewTestProcess(t, "netbilling")
	require.NoError(t, stack.persister.Create(context.Background(), p))

	// A concurrent writer bumps the stored version behind our back.
	other, err := stack.persister.Load(context.Background(), p.SessionID)
	require.NoError(t, err)
	require.NoError(t, other.Abort("raced"))
	require.NoError(t, stack.persister.Save(context.Background(), other))

	err = stack.persister.Save(context.Background(), p)
	assert.ErrorIs(t, err, domainErrors.ErrConcurrentModification)
}

func TestPersister_SaveBumpsVersion(t *testing.T) {
	stack := newTestStack(t)
	p := testutil.NewTestProcess(t, "netbilling", "epoch")
	require.NoError(t, stack.persister.Create(context.Background(), p))
	require.Equal(t, int64(1), p.Version)

	cand, _ := p.CurrentCandidate()
	_, err := p.RecordFailure(cand, purchase.FailureDeclined, "declined", false)
	require.NoError(t, err)
	require.NoError(t, stack.persister.Save(context.Background(), p))
	assert.Equal(t, int64(2), p.Version)
}
