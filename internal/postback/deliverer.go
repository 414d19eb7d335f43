package postback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cassiomorais/checkout/pkg/retry"
)

// Sender pushes one postback body to a merchant endpoint.
type Sender interface {
	Send(ctx context.Context, url string, body []byte) error
}

// HTTPSender delivers postbacks over plain HTTP POST. Any 2xx response
// counts as delivered; everything else is a failed attempt.
type HTTPSender struct {
	client *http.Client
}

// NewHTTPSender creates an HTTPSender with the given per-request timeout.
func NewHTTPSender(timeout time.Duration) *HTTPSender {
	return &HTTPSender{client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSender) Send(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build postback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send postback: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("postback rejected with status %d", resp.StatusCode)
	}
	return nil
}

// Deliverer runs the bounded retry loop for a single delivery.
type Deliverer struct {
	sender Sender
	logger zerolog.Logger
}

// NewDeliverer creates a Deliverer.
func NewDeliverer(sender Sender, logger zerolog.Logger) *Deliverer {
	return &Deliverer{sender: sender, logger: logger}
}

// Deliver attempts the postback up to MaxAttempts times with a fixed
// delay between attempts. The delivery always ends in a terminal status;
// exhaustion is recorded and logged, never returned as an error.
func (d *Deliverer) Deliver(ctx context.Context, del *Delivery) error {
	if del.Status != StatusPending {
		return nil
	}
	if del.MaxAttempts <= 0 {
		del.MaxAttempts = 1
	}

	cfg := retry.Fixed(uint(del.MaxAttempts), del.RetryDelay)
	err := retry.Do(ctx, cfg, func() error {
		del.Attempts++
		return d.sender.Send(ctx, del.URL, del.Payload)
	})

	now := time.Now().UTC()
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted mid-retry: leave the delivery pending so a
			// later claim can resume it.
			return ctx.Err()
		}
		del.markExhausted(now, err.Error())
		d.logger.Warn().
			Str("session_id", del.SessionID).
			Str("url", del.URL).
			Int("attempts", del.Attempts).
			Str("last_error", del.LastError).
			Msg("Postback delivery exhausted")
		return nil
	}

	del.markDelivered(now)
	d.logger.Info().
		Str("session_id", del.SessionID).
		Int("attempts", del.Attempts).
		Msg("Postback delivered")
	return nil
}
