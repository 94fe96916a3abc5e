package app

import (
	"time"

	"github.com/ternarybob/arbor"

	"github.com/EloyM96/avisor/internal/common"
	"github.com/EloyM96/avisor/internal/ingest"
	"github.com/EloyM96/avisor/internal/interfaces"
	"github.com/EloyM96/avisor/internal/notify"
	"github.com/EloyM96/avisor/internal/notify/adapters"
	"github.com/EloyM96/avisor/internal/queue"
	"github.com/EloyM96/avisor/internal/services/scheduler"
	"github.com/EloyM96/avisor/internal/storage/sqlite"
	"github.com/EloyM96/avisor/internal/workflows"
)

// App wires the services together: storage, queue, adapters, the
// workflow runner and the scheduler all hang off one instance.
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	Storage   *sqlite.Manager
	Queue     *queue.Manager
	Adapters  *adapters.Registry
	Playbooks *workflows.Loader
	Runner    *workflows.Runner
	Scheduler *scheduler.Service
}

// New builds the application from configuration. The queue manager is
// only created when background delivery is enabled; otherwise the
// dispatcher delivers inline.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storage, err := sqlite.NewManager(logger, &config.Storage.SQLite)
	if err != nil {
		return nil, err
	}

	var queueManager *queue.Manager
	if config.Queue.Enabled {
		queueManager, err = queue.NewManager(storage.DB(), config.Queue.QueueName)
		if err != nil {
			storage.Close()
			return nil, err
		}
	}

	registry := adapters.NewRegistry()
	registry.Register("email", adapters.NewEmailAdapter(config.SMTP, config.Workflows.TemplatesDir, logger))
	registry.Register("whatsapp", adapters.NewWhatsAppAdapter(config.WhatsApp.Command, config.WhatsApp.AdapterTimeout(), logger))

	a := &App{
		Config:   config,
		Logger:   logger,
		Storage:  storage,
		Queue:    queueManager,
		Adapters: registry,
	}

	a.Playbooks = workflows.NewLoader(config.Workflows.PlaybooksDir, logger)
	a.Runner = workflows.NewRunner(a.Playbooks, a.dispatcherFactory, logger)
	a.Scheduler = scheduler.NewService(a.Runner, config.Location(), logger)

	return a, nil
}

// dispatcherFactory builds the dispatcher for one playbook run with its
// quiet hours attached
func (a *App) dispatcherFactory(playbook *workflows.Playbook) *notify.Dispatcher {
	var notificationQueue interfaces.NotificationQueue
	if a.Queue != nil {
		notificationQueue = a.Queue
	}
	location := a.Config.Location()
	return notify.NewDispatcher(notify.DispatcherOptions{
		Queue:      notificationQueue,
		QuietHours: playbook.QuietHours,
		Adapters:   a.Adapters,
		Audit:      a.Storage.Audit(),
		JobName:    a.Config.Queue.JobName,
		Now:        func() time.Time { return time.Now().In(location) },
		Logger:     a.Logger,
	})
}

// WorkerDispatcher builds the dispatcher used by queue workers. It has
// no queue (deliveries run live) and no quiet hours: gating happened at
// dispatch time.
func (a *App) WorkerDispatcher() *notify.Dispatcher {
	return notify.NewDispatcher(notify.DispatcherOptions{
		Adapters: a.Adapters,
		Audit:    a.Storage.Audit(),
		JobName:  a.Config.Queue.JobName,
		Logger:   a.Logger,
	})
}

// StartWorkers launches the queue worker pool with the dispatch handler
// registered
func (a *App) StartWorkers() *queue.WorkerPool {
	pool := queue.NewWorkerPool(a.Queue, a.Config.Queue.Poll(), a.Config.Queue.Workers(), a.Logger)
	worker := notify.NewWorker(a.WorkerDispatcher(), a.Config.Queue.QueueName, a.Logger)
	worker.Register(pool)
	pool.Start()
	return pool
}

// Ingest loads a workbook into the domain tables
func (a *App) Ingest() *ingest.Loader {
	return ingest.NewLoader(a.Storage.Domain(), a.Logger)
}

// Close releases the shared resources
func (a *App) Close() error {
	if a.Queue != nil {
		a.Queue.Close()
	}
	return a.Storage.Close()
}
