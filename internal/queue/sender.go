package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogSender appends one human-readable line per notification to a file.
// It stands in for the real email/SMS channel.
type LogSender struct {
	Path string
	mu   sync.Mutex
}

// DefaultNotificationLog is where LogSender writes when Path is empty.
var DefaultNotificationLog = filepath.Join("logs", "notifications.log")

func (s *LogSender) Send(_ context.Context, ev PaymentConfirmedEvent) error {
	path := s.Path
	if path == "" {
		path = DefaultNotificationLog
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	units := "[]"
	if len(ev.Units) > 0 {
		units = fmt.Sprintf("[%s]", strings.Join(ev.Units, ","))
	}
	line := fmt.Sprintf("[%s] Payment confirmed | service=%s | record_id=%s | reference=%s | to=%q <%s> | amount=%d | tokens=%d | units=%s\n",
		ev.ConfirmedAt, ev.Service, ev.RecordID, ev.Reference, ev.OwnerName, ev.OwnerEmail, ev.Amount, ev.TokenCount, units)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// Direct hands events straight to a Sender, skipping the broker.  It is
// the publisher used when no RabbitMQ URL is configured.
type Direct struct {
	Sender Sender
}

func (d Direct) Publish(ctx context.Context, ev PaymentConfirmedEvent) error {
	return d.Sender.Send(ctx, ev)
}
