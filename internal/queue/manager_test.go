package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/EloyM96/avisor/internal/common"
	"github.com/EloyM96/avisor/internal/models"
)

func newTestQueue(t *testing.T) (*Manager, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	require.NoError(t, err)

	manager, err := NewManager(db, "notifications")
	require.NoError(t, err)
	return manager, db
}

func dispatchMessage(jobID string) models.QueueMessage {
	payload, _ := json.Marshal(map[string]any{"playbook": "cursos", "job_id": jobID})
	return models.QueueMessage{
		Name:    "app.notify.worker.dispatch",
		Payload: payload,
		JobID:   jobID,
	}
}

func TestQueueRoundTrip(t *testing.T) {
	manager, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, manager.Enqueue(ctx, dispatchMessage("job-1")))

	msg, deleteFn, err := manager.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "app.notify.worker.dispatch", msg.Name)
	assert.Equal(t, "job-1", msg.JobID)

	require.NoError(t, deleteFn())

	_, _, err = manager.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestQueueReceiveEmpty(t *testing.T) {
	manager, _ := newTestQueue(t)

	msg, deleteFn, err := manager.Receive(context.Background())
	assert.ErrorIs(t, err, ErrNoMessage)
	assert.Nil(t, msg)
	assert.Nil(t, deleteFn)
}

func TestQueuePreservesOrder(t *testing.T) {
	manager, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, manager.Enqueue(ctx, dispatchMessage("job-1")))
	require.NoError(t, manager.Enqueue(ctx, dispatchMessage("job-2")))

	first, deleteFirst, err := manager.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, deleteFirst())

	second, deleteSecond, err := manager.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, deleteSecond())

	assert.Equal(t, "job-1", first.JobID)
	assert.Equal(t, "job-2", second.JobID)
}

func TestQueueSetupIsIdempotent(t *testing.T) {
	manager, db := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, manager.Enqueue(ctx, dispatchMessage("job-1")))

	// Wrap the same database again; the existing tables and message survive
	again, err := NewManager(db, "notifications")
	require.NoError(t, err)

	msg, deleteFn, err := again.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", msg.JobID)
	require.NoError(t, deleteFn())
}

func TestWorkerPoolProcessesMessages(t *testing.T) {
	manager, _ := newTestQueue(t)
	ctx := context.Background()

	var mu sync.Mutex
	var handled []string
	pool := NewWorkerPool(manager, 20*time.Millisecond, 1, common.GetLogger())
	pool.RegisterHandler("app.notify.worker.dispatch", func(_ context.Context, msg *models.QueueMessage) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, msg.JobID)
		return nil
	})

	require.NoError(t, manager.Enqueue(ctx, dispatchMessage("job-1")))
	require.NoError(t, manager.Enqueue(ctx, dispatchMessage("job-2")))

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 2
	}, 5*time.Second, 20*time.Millisecond)

	// Both messages are gone from the queue
	_, _, err := manager.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestWorkerPoolDropsUnhandledMessages(t *testing.T) {
	manager, _ := newTestQueue(t)
	ctx := context.Background()

	pool := NewWorkerPool(manager, 20*time.Millisecond, 1, common.GetLogger())
	pool.RegisterHandler("app.notify.worker.dispatch", func(context.Context, *models.QueueMessage) error {
		return nil
	})

	require.NoError(t, manager.Enqueue(ctx, models.QueueMessage{Name: "unknown.job", JobID: "job-x"}))

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		_, _, err := manager.Receive(ctx)
		return err == ErrNoMessage
	}, 5*time.Second, 20*time.Millisecond)
}
