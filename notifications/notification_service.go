package notifications

import (
	"context"
	"fmt"
	"log"
	"time"
)

var notifyAttempts = 3
var retryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Sender delivers one message to one user. Implementations are external
// channels (Telegram, email); errors are transient from the service's point
// of view.
type Sender interface {
	Send(ctx context.Context, user int64, text string) error
}

// NotificationService delivers messages with bounded retry. Delivery is best
// effort: callers must never roll back a state transition because a
// notification failed.
type NotificationService struct {
	sender Sender
}

func NewNotificationService(sender Sender) *NotificationService {
	return &NotificationService{sender: sender}
}

func (s *NotificationService) Notify(ctx context.Context, user int64, text string) error {
	var lastErr error
	for attempt := 0; attempt < notifyAttempts; attempt++ {
		err := s.sender.Send(ctx, user, text)
		if err == nil {
			return nil
		}

		lastErr = err
		log.Printf("notify user %d attempt %d/%d failed: %v", user, attempt+1, notifyAttempts, err)

		if attempt == notifyAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelays[attempt]):
		}
	}

	log.Printf("NOTIFY-FAILED: giving up on user %d after %d attempts: %v", user, notifyAttempts, lastErr)
	return fmt.Errorf("notify user %d: %w", user, lastErr)
}
