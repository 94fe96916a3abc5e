package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"maragu.dev/goqite"

	"github.com/EloyM96/avisor/internal/models"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// Manager is a thin wrapper around goqite. It provides only queue
// operations, no delivery logic.
type Manager struct {
	q    *goqite.Queue
	name string
}

// NewManager creates the goqite tables when missing and opens the
// named queue on the shared SQLite handle.
func NewManager(db *sql.DB, queueName string) (*Manager, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := goqite.Setup(ctx, db); err != nil {
		// Expected on subsequent startups
		if !strings.Contains(err.Error(), "already exists") {
			return nil, err
		}
	}

	q := goqite.New(goqite.NewOpts{
		DB:   db,
		Name: queueName,
	})

	return &Manager{q: q, name: queueName}, nil
}

// Name returns the queue name recorded on queued audit rows
func (m *Manager) Name() string {
	return m.name
}

// Enqueue adds a message to the queue
func (m *Manager) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return m.q.Send(ctx, goqite.Message{
		Body: data,
	})
}

// Receive pulls the next message from the queue. It returns the decoded
// message and a delete function to call after processing, or
// ErrNoMessage when the queue is empty.
func (m *Manager) Receive(ctx context.Context) (*models.QueueMessage, func() error, error) {
	gMsg, err := m.q.Receive(ctx)
	if err != nil {
		return nil, nil, err
	}
	if gMsg == nil {
		return nil, nil, ErrNoMessage
	}

	var msg models.QueueMessage
	if err := json.Unmarshal(gMsg.Body, &msg); err != nil {
		// Drop the undecodable message so it does not poison the queue
		deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.q.Delete(deleteCtx, gMsg.ID)
		return nil, nil, err
	}

	// Fresh context with timeout so deletion still works after the
	// Receive context has expired
	deleteFn := func() error {
		deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return m.q.Delete(deleteCtx, gMsg.ID)
	}

	return &msg, deleteFn, nil
}

// Extend extends the visibility timeout for a long-running delivery
func (m *Manager) Extend(ctx context.Context, messageID goqite.ID, duration time.Duration) error {
	return m.q.Extend(ctx, messageID, duration)
}

// Close is a no-op, kept for symmetry with other managers
func (m *Manager) Close() error {
	return nil
}
