// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/fraudguard/internal/logging"
)

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool

	// BufferSize is the size of the async write buffer.
	BufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:    true,
		BufferSize: 1000,
	}
}

// Logger is the audit logging service. Writes are buffered and flushed by a
// background goroutine so enforcement never blocks on audit I/O; Stop drains
// the buffer before returning.
type Logger struct {
	config    *Config
	store     Store
	eventChan chan *Event
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewLogger creates a new audit logger and starts its async writer.
func NewLogger(store Store, config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}

	l := &Logger{
		config:    config,
		store:     store,
		eventChan: make(chan *Event, config.BufferSize),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

// Record enqueues an audit event. Missing ID and timestamp are filled in;
// the correlation ID is taken from the context when not set explicitly.
// If the buffer is full the event is written synchronously rather than lost.
func (l *Logger) Record(ctx context.Context, event *Event) {
	if !l.config.Enabled || event == nil {
		return
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.CorrelationID == "" {
		event.CorrelationID = logging.CorrelationIDFromContext(ctx)
	}

	select {
	case l.eventChan <- event:
	default:
		// Buffer full: audit records must not be dropped
		l.writeEvent(event)
	}
}

// Stop drains the buffer and stops the async writer.
func (l *Logger) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
	l.wg.Wait()
}

// asyncWriter processes events from the buffer.
func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			// Drain remaining events
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

// writeEvent persists an event to the store.
func (l *Logger) writeEvent(event *Event) {
	if l.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.Save(ctx, event); err != nil {
		logging.Error().
			Err(err).
			Str("event_type", string(event.Type)).
			Str("user_id", event.UserID).
			Msg("failed to persist audit event")
	}
}
