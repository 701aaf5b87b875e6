// Package audit carries governance audit events from the engine to durable storage.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/civic-assembly/backend/internal/models"
)

// DefaultBufferSize is used when NewEmitter is given a non-positive size.
const DefaultBufferSize = 256

const sinkTimeout = 5 * time.Second

// Sink persists or forwards one audit event.
type Sink interface {
	Write(ctx context.Context, ev models.AuditEvent) error
}

// Emitter hands events to a Sink on a background goroutine. Emit never blocks:
// when the buffer is full the event is dropped and logged.
type Emitter struct {
	sink   Sink
	logger *zap.Logger
	events chan models.AuditEvent
	onDrop func(reason string)

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// Drop reasons reported to the WithDropHook callback.
const (
	DropBufferFull = "buffer_full"
	DropClosed     = "closed"
	DropSinkError  = "sink_error"
)

// EmitterOption customizes an Emitter.
type EmitterOption func(*Emitter)

// WithDropHook calls fn whenever an event is lost.
func WithDropHook(fn func(reason string)) EmitterOption {
	return func(e *Emitter) { e.onDrop = fn }
}

// NewEmitter starts an emitter draining into sink.
func NewEmitter(sink Sink, bufferSize int, logger *zap.Logger, opts ...EmitterOption) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	e := &Emitter{
		sink:   sink,
		logger: logger,
		events: make(chan models.AuditEvent, bufferSize),
		done:   make(chan struct{}),
		onDrop: func(string) {},
	}
	for _, o := range opts {
		o(e)
	}
	go e.run()
	return e
}

// Emit implements governance.Emitter.
func (e *Emitter) Emit(ev models.AuditEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.logger.Warn("audit event after close dropped", zap.String("type", string(ev.Type)), zap.String("event_id", ev.ID.String()))
		e.onDrop(DropClosed)
		return
	}
	select {
	case e.events <- ev:
	default:
		e.logger.Warn("audit buffer full, event dropped", zap.String("type", string(ev.Type)), zap.String("event_id", ev.ID.String()))
		e.onDrop(DropBufferFull)
	}
}

func (e *Emitter) run() {
	defer close(e.done)
	for ev := range e.events {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := e.sink.Write(ctx, ev); err != nil {
			e.logger.Error("audit sink write failed",
				zap.String("type", string(ev.Type)),
				zap.String("event_id", ev.ID.String()),
				zap.Error(err))
			e.onDrop(DropSinkError)
		}
		cancel()
	}
}

// Close stops accepting events and waits for buffered ones to drain or ctx to end.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
