package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Writer is an async, buffered lead-event appender. Events are sent to an
// internal channel and flushed by a background goroutine, keeping audit
// writes off the request path.
type Writer struct {
	sink    Sink
	logger  *slog.Logger
	entries chan Event
	wg      sync.WaitGroup
}

// NewWriter creates an event Writer. Call Start to begin processing.
func NewWriter(sink Sink, logger *slog.Logger) *Writer {
	return &Writer{
		sink:    sink,
		logger:  logger,
		entries: make(chan Event, bufferSize),
	}
}

// Start begins the background goroutine that flushes events to the sink.
// It returns once the goroutine is running.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending events to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Append enqueues an event for async writing. It never blocks the caller; if
// the buffer is full the event is dropped and a warning is logged.
func (w *Writer) Append(e Event) {
	select {
	case w.entries <- e:
	default:
		w.logger.Warn("lead event buffer full, dropping entry",
			"event_type", e.Type, "tenant_id", e.TenantID)
	}
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			// Drain whatever is already queued, then exit.
			for {
				select {
				case e, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(batch []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.sink.InsertBatch(ctx, batch); err != nil {
		w.logger.Error("flushing lead events", "error", err, "count", len(batch))
	}
}
