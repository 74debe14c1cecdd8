package notify

import (
	"context"
	"errors"
)

// ErrInvalidChat marks a send rejected because the channel address is bad.
// It is permanent for that subscription and never retried.
var ErrInvalidChat = errors.New("invalid chat id")

// Notifier represents a notification channel. Send failures are non-fatal
// to a dispatch batch; the dispatcher logs them per subscription.
type Notifier interface {
	// Send delivers one message to a channel address
	Send(ctx context.Context, chatID, text string) error
}
