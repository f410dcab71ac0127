package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"docrag/internal/models"
)

// ErrQueueFull is returned by Submit when every queue slot is taken.
var ErrQueueFull = errors.New("ingest queue full")

// Dispatcher runs ingestion jobs on a fixed pool of workers, decoupled from the
// request that submitted them. A document is queued or running at most once.
type Dispatcher struct {
	ingester Ingester
	workers  int
	jobs     chan Job

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher; call Start to launch its workers.
func NewDispatcher(ingester Ingester, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 16
	}
	return &Dispatcher{
		ingester: ingester,
		workers:  workers,
		jobs:     make(chan Job, queueSize),
		inflight: make(map[string]struct{}),
	}
}

// Start launches the workers. They stop once Stop is called and the queue drains,
// or when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for w := 0; w < d.workers; w++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	logrus.WithField("workers", d.workers).Info("ingest: dispatcher started")
}

// Submit queues job. A document already queued or running is rejected with
// models.ErrIngestionInFlight.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("%w: dispatcher stopped", ErrQueueFull)
	}
	if _, ok := d.inflight[job.DocumentID]; ok {
		return models.ErrIngestionInFlight
	}
	select {
	case d.jobs <- job:
		d.inflight[job.DocumentID] = struct{}{}
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-d.jobs:
			if !ok {
				return
			}
			d.run(ctx, job)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, job Job) {
	defer func() {
		d.mu.Lock()
		delete(d.inflight, job.DocumentID)
		d.mu.Unlock()
	}()
	if err := d.ingester.Ingest(ctx, job); err != nil {
		logrus.WithFields(logrus.Fields{
			"document_id": job.DocumentID,
		}).WithError(err).Warn("ingest: job finished with error")
	}
}
