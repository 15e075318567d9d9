package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const auditFile = "ledger.log"

// Consumer appends every ledger event to <Dir>/ledger.log, one line per
// event.
type Consumer struct {
	URL string
	Dir string
	Log Logger
}

// Run connects to the broker and consumes QueueName until ctx is done. It
// reconnects with exponential backoff capped at 30s; malformed messages
// are rejected without requeue so they cannot loop.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warnf("ledger-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warnf("ledger-consumer: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.Warnf("ledger-consumer: set QoS failed: %v", err)
	}
	if _, err := declare(ch); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.Log.Infof("ledger-consumer: consuming %s", QueueName)

	for d := range msgs {
		if err := c.Handle(d.Body); err != nil {
			c.Log.Errorf("ledger-consumer: handle message failed: %v", err)
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle decodes one message body and appends it to the audit file.
func (c *Consumer) Handle(body []byte) error {
	var ev LedgerEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.Dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.Dir, auditFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single audit line ending in a newline. Only
// the fields that are set are written.
func FormatLine(ev LedgerEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type)
	field := func(k string, v any) { fmt.Fprintf(&b, " | %s=%v", k, v) }
	if ev.UserID != 0 {
		field("user_id", ev.UserID)
	}
	if ev.PropertyID != 0 {
		field("property_id", ev.PropertyID)
	}
	if ev.InvestmentID != 0 {
		field("investment_id", ev.InvestmentID)
	}
	if ev.InitialValue != "" {
		field("initial", ev.InitialValue)
	}
	if ev.PreviousValue != "" {
		field("previous", ev.PreviousValue)
	}
	if ev.CurrentValue != "" {
		field("current", ev.CurrentValue)
	}
	if ev.PropertyStatus != "" {
		field("status", ev.PropertyStatus)
	}
	if ev.FromRole != "" || ev.ToRole != "" {
		field("role", ev.FromRole+"->"+ev.ToRole)
	}
	if ev.Active != nil {
		field("active", *ev.Active)
	}
	if ev.ApplicationID != 0 {
		field("application_id", ev.ApplicationID)
	}
	if ev.ApplicationStatus != "" {
		field("application", ev.ApplicationStatus)
	}
	if ev.ReviewerID != 0 {
		field("reviewer_id", ev.ReviewerID)
	}
	b.WriteByte('\n')
	return b.String()
}
