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

	"github.com/iliyamo/cinema-seat-locking/internal/logger"
)

// AuditConsumer listens to the seat lock and booking queues and appends one
// human readable line per event to files under Dir (seat-locks.log and
// booking.log).
type AuditConsumer struct {
	URL string
	Dir string
	Log *logger.Logger
}

// Run connects to the broker and consumes until ctx is cancelled.  Dial and
// channel failures are retried with exponential backoff capped at 30s; a
// message that cannot be processed is rejected without requeue so it cannot
// spin the loop.
func (c *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn("audit-consumer: dial failed", "error", err, "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn("audit-consumer: consume loop ended; reconnecting", "error", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.Warn("audit-consumer: set QoS failed", "error", err)
	}
	if err := declareQueues(ch); err != nil {
		return err
	}

	seatMsgs, err := ch.Consume(SeatEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", SeatEventsQueue, err)
	}
	bookingMsgs, err := ch.Consume(BookingConfirmedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", BookingConfirmedQueue, err)
	}

	for {
		var (
			d  amqp.Delivery
			ok bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok = <-seatMsgs:
		case d, ok = <-bookingMsgs:
		}
		if !ok {
			return errors.New("deliveries channel closed")
		}
		if err := HandleMessage(c.Dir, d.RoutingKey, d.Body); err != nil {
			c.Log.Error("audit-consumer: handle message failed", "error", err, "queue", d.RoutingKey)
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
}

// HandleMessage formats one event from queue and appends it to the matching
// audit file in dir.
func HandleMessage(dir, queue string, body []byte) error {
	var (
		file string
		line string
	)
	switch queue {
	case SeatEventsQueue:
		var ev SeatLockEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		file = "seat-locks.log"
		line = formatSeatEvent(ev)
	case BookingConfirmedQueue:
		var ev BookingConfirmedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		file = "booking.log"
		line = formatBookingEvent(ev)
	default:
		return fmt.Errorf("unknown queue %q", queue)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, file), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatSeatEvent(ev SeatLockEvent) string {
	switch ev.Type {
	case SessionReleased:
		return fmt.Sprintf("[%s] %s | session=%s | count=%d\n", ev.OccurredAt, ev.Type, ev.SessionID, ev.Count)
	case SeatLocked:
		return fmt.Sprintf("[%s] %s | show_id=%d | seat=%s | session=%s | new=%t | expires_at=%s\n",
			ev.OccurredAt, ev.Type, ev.ShowID, ev.SeatCode, ev.SessionID, ev.IsNewLock, ev.ExpiresAt)
	default:
		return fmt.Sprintf("[%s] %s | show_id=%d | seat=%s | session=%s\n",
			ev.OccurredAt, ev.Type, ev.ShowID, ev.SeatCode, ev.SessionID)
	}
}

func formatBookingEvent(ev BookingConfirmedEvent) string {
	seats := "[]"
	if len(ev.SeatLabels) > 0 {
		seats = fmt.Sprintf("[%s]", strings.Join(ev.SeatLabels, ","))
	}
	return fmt.Sprintf("[%s] Reservation confirmed | reservation_id=%d | user_id=%d | show_id=%d | session=%s | total=%d cents | seats=%s\n",
		ev.ConfirmedAt, ev.ReservationID, ev.UserID, ev.ShowID, ev.SessionID, ev.TotalAmountCents, seats)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
