package webhook

import (
	"context"
	"sync"
)

// Logger is the minimal logging surface the dispatcher needs.
type Logger interface {
	Log(format string, args ...interface{})
}

// Dispatcher pushes events from a bounded worker pool. Emit never
// blocks the caller on delivery and never reports delivery errors back;
// failures are logged and dropped. Shutdown cancellation is best-effort,
// in-flight deliveries get no completion guarantee.
type Dispatcher struct {
	client *Client
	logger Logger

	ctx    context.Context
	cancel context.CancelFunc

	jobs chan job
	wg   sync.WaitGroup

	closeOnce sync.Once
}

type job struct {
	url    string
	secret string
	event  *Event
}

const (
	defaultWorkers   = 4
	defaultQueueSize = 64
)

func NewDispatcher(client *Client, logger Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		client: client,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan job, defaultQueueSize),
	}

	for i := 0; i < defaultWorkers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		if err := d.client.Deliver(d.ctx, j.url, j.secret, j.event); err != nil {
			d.logger.Log("failed to deliver %s webhook: %v", j.event.Event, err)
		}
	}
}

// Emit queues one delivery attempt. A full queue drops the event with a
// log line rather than blocking the triggering request.
func (d *Dispatcher) Emit(url, secret string, event *Event) {
	select {
	case d.jobs <- job{url: url, secret: secret, event: event}:
	default:
		d.logger.Log("webhook queue full, dropping %s event for proposal %s",
			event.Event, event.Data.ProposalID)
	}
}

// Close stops accepting work and waits for the workers to drain.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.jobs)
		d.wg.Wait()
		d.cancel()
	})
}
