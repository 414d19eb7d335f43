package postback

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the delivery lifecycle of a single postback.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	// StatusExhausted means every allowed attempt failed. This is an
	// expected terminal state, not an error: the purchase outcome is
	// already final and the merchant can poll it.
	StatusExhausted Status = "exhausted"
)

// Delivery tracks one postback from enqueue to its terminal status.
type Delivery struct {
	ID          uuid.UUID
	SessionID   string
	SiteID      string
	URL         string
	Payload     []byte
	Status      Status
	Attempts    int
	MaxAttempts int
	RetryDelay  time.Duration
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeliveredAt *time.Time
}

// Message is the shape published to the delivery stream when a purchase
// reaches a terminal state.
type Message struct {
	SessionID    string          `json:"session_id"`
	SiteID       string          `json:"site_id"`
	URL          string          `json:"url"`
	MaxAttempts  int             `json:"max_attempts"`
	RetryDelayMS int64           `json:"retry_delay_ms"`
	Outcome      json.RawMessage `json:"outcome"`
}

// NewDelivery builds a pending delivery from a stream message. The body
// sent to the merchant is the outcome object plus session identity.
func NewDelivery(msg Message) (*Delivery, error) {
	body, err := json.Marshal(map[string]any{
		"session_id": msg.SessionID,
		"site_id":    msg.SiteID,
		"outcome":    msg.Outcome,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Delivery{
		ID:          uuid.New(),
		SessionID:   msg.SessionID,
		SiteID:      msg.SiteID,
		URL:         msg.URL,
		Payload:     body,
		Status:      StatusPending,
		MaxAttempts: msg.MaxAttempts,
		RetryDelay:  time.Duration(msg.RetryDelayMS) * time.Millisecond,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (d *Delivery) markDelivered(now time.Time) {
	d.Status = StatusDelivered
	d.UpdatedAt = now
	d.DeliveredAt = &now
}

func (d *Delivery) markExhausted(now time.Time, lastErr string) {
	d.Status = StatusExhausted
	d.UpdatedAt = now
	d.LastError = lastErr
}
