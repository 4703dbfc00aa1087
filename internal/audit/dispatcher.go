package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DropCounter observes events lost to back-pressure.
type DropCounter interface {
	AuditDropped()
}

// Dispatcher fans events from a bounded queue into a sink on a single goroutine.
type Dispatcher struct {
	sink    Sink
	logger  *slog.Logger
	drops   DropCounter
	queue   chan Event
	timeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewDispatcher constructs a Dispatcher with the given queue capacity.
func NewDispatcher(sink Sink, size int, logger *slog.Logger, drops DropCounter) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sink:    sink,
		logger:  logger,
		drops:   drops,
		queue:   make(chan Event, size),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
}

// Emit enqueues the event. A full queue drops it.
func (d *Dispatcher) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Details == nil {
		event.Details = map[string]any{}
	}
	select {
	case <-d.done:
		return
	default:
	}
	select {
	case d.queue <- event:
	default:
		if d.drops != nil {
			d.drops.AuditDropped()
		}
		d.logger.Warn("audit queue full, dropping event", slog.String("action", string(event.Action)), slog.String("resource", event.Resource))
	}
}

// Run drains the queue until ctx is cancelled or Close is called, then
// flushes whatever is still buffered.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case event := <-d.queue:
			d.write(event)
		case <-ctx.Done():
			d.drain()
			return nil
		case <-d.done:
			d.drain()
			return nil
		}
	}
}

// Close stops accepting events and lets Run flush and exit.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.write(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) write(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.sink.Write(ctx, event); err != nil {
		d.logger.Error("audit sink write", slog.String("action", string(event.Action)), slog.Any("error", err))
	}
}
