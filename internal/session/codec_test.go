package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/cascade"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/purchase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProcess(t *testing.T) *purchase.Process {
	t.Helper()
	p, err := purchase.NewProcess(purchase.Context{
		SessionID:       "sess-1",
		SiteID:          "site-1",
		BusinessGroupID: "bg-1",
		Country:         "US",
		PaymentType:     cascade.PaymentTypeCard,
		AmountCents:     2999,
		Currency:        "USD",
	}, cascade.Cascade{Candidates: []cascade.Candidate{
		{Biller: "netbilling", PaymentMethod: "visa"},
		{Biller: "epoch", PaymentMethod: "visa"},
	}})
	require.NoError(t, err)
	return p
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec()
	p := testProcess(t)

	cand, _ := p.CurrentCandidate()
	_, err := p.RecordFailure(cand, purchase.FailureTimeout, "deadline exceeded", true)
	require.NoError(t, err)

	payload, err := codec.Encode(p)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersionCurrent, payload.SchemaVersion)

	decoded, err := codec.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, p.SessionID, decoded.SessionID)
	assert.Equal(t, p.State, decoded.State)
	assert.Equal(t, p.Cascade, decoded.Cascade)
	assert.Equal(t, p.Context, decoded.Context)
	require.Len(t, decoded.Attempts, 1)
	assert.Equal(t, purchase.FailureTimeout, decoded.Attempts[0].FailureKind)
	assert.Equal(t, "deadline exceeded", decoded.Attempts[0].FailureReason)
	assert.True(t, decoded.Attempts[0].FraudFlagged)
}

func TestCodec_RoundTripWithThreeDS(t *testing.T) {
	codec := NewCodec()
	p := testProcess(t)

	cand, _ := p.CurrentCandidate()
	require.NoError(t, p.RecordChallenge(cand, purchase.ThreeDSContext{
		PAReq:          "pareq-1",
		ACSURL:         "https://acs.example.com",
		MD:             "md-1",
		ChallengeToken: "tok-1",
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
		ExpiresAt:      time.Now().UTC().Add(15 * time.Minute).Truncate(time.Millisecond),
	}, false))

	payload, err := codec.Encode(p)
	require.NoError(t, err)

	decoded, err := codec.Decode(payload)
	require.NoError(t, err)
	require.NotNil(t, decoded.ThreeDS)
	assert.Equal(t, *p.ThreeDS, *decoded.ThreeDS)
}

func TestCodec_RejectsUnknownVersions(t *testing.T) {
	codec := NewCodec()

	_, err := codec.Decode(Payload{SchemaVersion: SchemaVersionCurrent + 1, Body: []byte(`{}`)})
	assert.ErrorIs(t, err, domainErrors.ErrUnsupportedSchemaVersion)

	_, err = codec.Decode(Payload{SchemaVersion: 0, Body: []byte(`{}`)})
	assert.ErrorIs(t, err, domainErrors.ErrUnsupportedSchemaVersion)
}

func TestCodec_UpgradeV2(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := map[string]any{
		"session_id":        "sess-v2",
		"site_id":           "site-1",
		"business_group_id": "bg-1",
		"state":             string(purchase.StateAwaiting3DSLookup),
		"context": map[string]any{
			"session_id":        "sess-v2",
			"site_id":           "site-1",
			"business_group_id": "bg-1",
			"country":           "US",
			"payment_type":      "cc",
			"amount_cents":      1500,
			"currency":          "USD",
		},
		"cascade": map[string]any{
			"candidates": []any{map[string]any{"biller": "netbilling", "payment_method": "visa"}},
			"cursor":     0,
		},
		// v2 attempts used "error" for the failure reason.
		"attempts": []any{map[string]any{
			"biller":         "epoch",
			"payment_method": "visa",
			"outcome":        "failed",
			"failure_kind":   "declined",
			"error":          "card declined",
			"timestamp":      created.Format(time.RFC3339Nano),
		}},
		// v2 3DS contexts carried no expiry.
		"three_ds": map[string]any{
			"biller":     "netbilling",
			"md":         "md-1",
			"created_at": created.Format(time.RFC3339Nano),
		},
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	decoded, err := NewCodec().Decode(Payload{SchemaVersion: 2, Body: raw})
	require.NoError(t, err)

	require.Len(t, decoded.Attempts, 1)
	assert.Equal(t, "card declined", decoded.Attempts[0].FailureReason)

	require.NotNil(t, decoded.ThreeDS)
	assert.Equal(t, created.Add(15*time.Minute), decoded.ThreeDS.ExpiresAt)
}

func TestCodec_UpgradeV1(t *testing.T) {
	body := map[string]any{
		"session_id": "sess-v1",
		"site_id":    "site-1",
		"state":      string(purchase.StateAwaitingBiller),
		"context": map[string]any{
			"session_id":   "sess-v1",
			"site_id":      "site-1",
			"country":      "US",
			"payment_type": "cc",
			"amount_cents": 1500,
			"currency":     "USD",
		},
		"cascade": map[string]any{
			"candidates": []any{map[string]any{"biller": "netbilling", "payment_method": "visa"}},
			"cursor":     0,
		},
		"attempts": []any{map[string]any{
			"biller":         "netbilling",
			"payment_method": "visa",
			"outcome":        "failed",
			"failure_kind":   "timeout",
			"error":          "deadline exceeded",
			"timestamp":      time.Now().UTC().Format(time.RFC3339Nano),
		}},
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	decoded, err := NewCodec().Decode(Payload{SchemaVersion: 1, Body: raw})
	require.NoError(t, err)

	// v1 predates business groups; the upgrade backfills an empty one.
	assert.Equal(t, "", decoded.BusinessGroupID)
	// The v2-to-v3 step still applies to the upgraded body.
	require.Len(t, decoded.Attempts, 1)
	assert.Equal(t, "deadline exceeded", decoded.Attempts[0].FailureReason)
}

func TestCodec_V1AndV2DecodeEquivalently(t *testing.T) {
	// The same logical session written at v1 and v2 must decode to the
	// same process.
	base := map[string]any{
		"session_id": "sess-x",
		"site_id":    "site-1",
		"state":      string(purchase.StateAwaitingBiller),
		"context": map[string]any{
			"session_id":   "sess-x",
			"site_id":      "site-1",
			"country":      "US",
			"payment_type": "cc",
			"amount_cents": 1500,
			"currency":     "USD",
		},
		"cascade": map[string]any{
			"candidates": []any{map[string]any{"biller": "netbilling", "payment_method": "visa"}},
			"cursor":     1,
		},
	}
	v1Raw, err := json.Marshal(base)
	require.NoError(t, err)

	base["business_group_id"] = ""
	ctx := base["context"].(map[string]any)
	ctx["business_group_id"] = ""
	v2Raw, err := json.Marshal(base)
	require.NoError(t, err)

	codec := NewCodec()
	fromV1, err := codec.Decode(Payload{SchemaVersion: 1, Body: v1Raw})
	require.NoError(t, err)
	fromV2, err := codec.Decode(Payload{SchemaVersion: 2, Body: v2Raw})
	require.NoError(t, err)

	assert.Equal(t, fromV2, fromV1)
}
