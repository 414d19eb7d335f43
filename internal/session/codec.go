// Package session owns the durable form of a purchase process: the
// versioned payload, the upgrade chain for payloads written by older
// schema versions, and the store port. No other package reads raw
// payloads.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/purchase"
)

const (
	// SchemaVersionCurrent is stamped on every payload written.
	SchemaVersionCurrent = 3
	// schemaVersionOldest is the oldest version the upgrade chain accepts.
	schemaVersionOldest = 1
)

// Payload is the versioned serialized form of a purchase process.
type Payload struct {
	SchemaVersion int             `json:"schema_version"`
	Body          json.RawMessage `json:"body"`
}

// Codec translates between payloads and in-memory processes.
type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

// Encode serializes a process at the current schema version.
func (c *Codec) Encode(p *purchase.Process) (Payload, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Payload{}, fmt.Errorf("encode session: %w", err)
	}
	return Payload{SchemaVersion: SchemaVersionCurrent, Body: body}, nil
}

// Decode deserializes a payload, first running bodies written by older
// schema versions through the upgrade chain one step at a time. Payloads
// newer than the current version (written by a not-yet-deployed writer) or
// older than the oldest supported step are rejected.
func (c *Codec) Decode(payload Payload) (*purchase.Process, error) {
	v := payload.SchemaVersion
	if v > SchemaVersionCurrent || v < schemaVersionOldest {
		return nil, fmt.Errorf("schema version %d (current %d, oldest %d): %w",
			v, SchemaVersionCurrent, schemaVersionOldest, domainErrors.ErrUnsupportedSchemaVersion)
	}

	body := payload.Body
	for ; v < SchemaVersionCurrent; v++ {
		upgraded, err := upgrades[v](body)
		if err != nil {
			return nil, fmt.Errorf("upgrade session schema v%d to v%d: %w", v, v+1, err)
		}
		body = upgraded
	}

	var p purchase.Process
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &p, nil
}

// upgrades[v] transforms a version-v body into version v+1 structure.
var upgrades = map[int]func(json.RawMessage) (json.RawMessage, error){
	1: upgradeV1toV2,
	2: upgradeV2toV3,
}

// upgradeV1toV2 backfills the business group introduced in v2. v1 sessions
// predate business groups; they decode with an empty one.
func upgradeV1toV2(body json.RawMessage) (json.RawMessage, error) {
	m, err := asMap(body)
	if err != nil {
		return nil, err
	}
	if _, ok := m["business_group_id"]; !ok {
		m["business_group_id"] = ""
	}
	if ctx, ok := m["context"].(map[string]any); ok {
		if _, ok := ctx["business_group_id"]; !ok {
			ctx["business_group_id"] = m["business_group_id"]
		}
	}
	return json.Marshal(m)
}

// upgradeV2toV3 renames the attempt failure field and gives pending 3DS
// contexts the expiry v3 tracks. Contexts without a creation timestamp keep
// no expiry, which Validate treats as non-expiring.
func upgradeV2toV3(body json.RawMessage) (json.RawMessage, error) {
	m, err := asMap(body)
	if err != nil {
		return nil, err
	}

	if attempts, ok := m["attempts"].([]any); ok {
		for _, a := range attempts {
			attempt, ok := a.(map[string]any)
			if !ok {
				continue
			}
			if reason, ok := attempt["error"]; ok {
				attempt["failure_reason"] = reason
				delete(attempt, "error")
			}
		}
	}

	if tds, ok := m["three_ds"].(map[string]any); ok {
		if _, ok := tds["expires_at"]; !ok {
			if createdAt, ok := tds["created_at"].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
					tds["expires_at"] = t.Add(15 * time.Minute).Format(time.RFC3339Nano)
				}
			}
		}
	}

	return json.Marshal(m)
}

func asMap(body json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("unmarshal session body: %w", err)
	}
	return m, nil
}
