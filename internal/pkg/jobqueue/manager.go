package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MediaDash/app/repository"
	"github.com/ManuelReschke/MediaDash/internal/pkg/env"
	"github.com/ManuelReschke/MediaDash/internal/pkg/mail"
	"github.com/ManuelReschke/MediaDash/internal/pkg/mediajob"
	"github.com/ManuelReschke/MediaDash/internal/pkg/toolkit"
)

const defaultReconcileInterval = 5 * time.Minute

// reconcileRunner is satisfied by *mediajob.Reconciler.
type reconcileRunner interface {
	Run(ctx context.Context) (mediajob.ReconcileStats, error)
}

// Manager manages the job queue and background tasks
type Manager struct {
	queue             *Queue
	notifier          *JobFinishedNotifier
	reconciler        reconcileRunner
	reconcileInterval time.Duration
	reconcileTicker   *time.Ticker
	stopCh            chan struct{}
	wg                sync.WaitGroup
	mu                sync.Mutex
	running           bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// NewManager wires a manager around queue. reconciler may be nil.
func NewManager(queue *Queue, reconciler reconcileRunner, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	return &Manager{
		queue:             queue,
		notifier:          NewJobFinishedNotifier(queue),
		reconciler:        reconciler,
		reconcileInterval: interval,
		stopCh:            make(chan struct{}),
	}
}

// Setup builds the global manager: queue workers with the email processor
// and the media job reconciler. Later calls return the same instance.
func Setup(db *gorm.DB) *Manager {
	managerOnce.Do(func() {
		queue := NewQueue(env.GetEnvInt("JOBQUEUE_WORKERS", 5))
		repos := repository.NewRepositories(db)
		NewEmailProcessor(mail.NewSMTPMailerFromEnv(), repos.Job, repos.Workspace).Register(queue)

		reconciler := mediajob.NewReconciler(
			repos.Job,
			toolkit.NewClientFromEnv(),
			NewJobFinishedNotifier(queue),
			env.GetEnvMinutes("RECONCILE_SUBMITTING_AFTER_MINUTES", 10),
			env.GetEnvMinutes("RECONCILE_PROCESSING_AFTER_MINUTES", 60),
		)
		globalManager = NewManager(queue, reconciler, env.GetEnvMinutes("RECONCILE_INTERVAL_MINUTES", 5))
	})
	return globalManager
}

// GetManager returns the global job queue manager. Setup must run first.
func GetManager() *Manager {
	if globalManager == nil {
		panic("job queue manager not initialized. Call Setup first.")
	}
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Notifier returns the media job notifier backed by this queue.
func (m *Manager) Notifier() *JobFinishedNotifier {
	return m.notifier
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.reconciler != nil {
		m.reconcileTicker = time.NewTicker(m.reconcileInterval)
		m.wg.Add(1)
		go m.reconcileWorker(m.stopCh, m.reconcileTicker.C)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// reconcileWorker periodically repairs media jobs whose webhook never arrived.
func (m *Manager) reconcileWorker(stopCh <-chan struct{}, tick <-chan time.Time) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started reconcile worker (interval: %s)", m.reconcileInterval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Reconcile worker stopping")
			return
		case <-tick:
			m.RunReconcileOnce(context.Background())
		}
	}
}

// RunReconcileOnce runs a single reconciliation pass.
func (m *Manager) RunReconcileOnce(ctx context.Context) {
	if m.reconciler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, m.reconcileInterval)
	defer cancel()
	stats, err := m.reconciler.Run(ctx)
	if err != nil {
		log.Errorf("[JobQueue Manager] Reconcile error: %v", err)
		return
	}
	if stats.ExpiredSubmissions+stats.Finished > 0 {
		log.Infof("[JobQueue Manager] Reconciled jobs: expired=%d polled=%d finished=%d",
			stats.ExpiredSubmissions, stats.Polled, stats.Finished)
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
