package interfaces

import (
	"context"

	"github.com/EloyM96/avisor/internal/models"
)

// NotificationQueue hands deliveries off to background workers.
// A nil queue on the dispatcher selects the inline delivery path.
type NotificationQueue interface {
	Name() string
	Enqueue(ctx context.Context, msg models.QueueMessage) error
}
