// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/fraudguard/internal/logging"
)

func TestLoggerRecordAndDrain(t *testing.T) {
	store := NewMemoryStore(100)
	logger := NewLogger(store, &Config{Enabled: true, BufferSize: 8})

	for i := 0; i < 20; i++ {
		logger.Record(context.Background(), &Event{
			Type:        EventTypeAutoBan,
			Severity:    SeverityCritical,
			Outcome:     OutcomeSuccess,
			UserID:      fmt.Sprintf("user-%d", i),
			Description: "test",
		})
	}
	logger.Stop()

	events, err := store.Query(context.Background(), QueryFilter{Type: EventTypeAutoBan})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	// Stop must drain every buffered event, including overflow writes.
	if len(events) != 20 {
		t.Errorf("persisted events = %d, want 20", len(events))
	}
	for _, e := range events {
		if e.ID == "" {
			t.Error("event persisted without generated ID")
		}
		if e.Timestamp.IsZero() {
			t.Error("event persisted without timestamp")
		}
	}
}

func TestLoggerDisabled(t *testing.T) {
	store := NewMemoryStore(100)
	logger := NewLogger(store, &Config{Enabled: false, BufferSize: 8})

	logger.Record(context.Background(), &Event{Type: EventTypeAutoBan, UserID: "u1"})
	logger.Stop()

	events, _ := store.Query(context.Background(), QueryFilter{})
	if len(events) != 0 {
		t.Errorf("disabled logger persisted %d events, want 0", len(events))
	}
}

func TestLoggerCorrelationIDFromContext(t *testing.T) {
	store := NewMemoryStore(10)
	logger := NewLogger(store, &Config{Enabled: true, BufferSize: 8})

	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-123")
	logger.Record(ctx, &Event{Type: EventTypeRiskSignal, UserID: "u1", Description: "x"})
	logger.Stop()

	events, _ := store.Query(context.Background(), QueryFilter{UserID: "u1"})
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].CorrelationID != "corr-123" {
		t.Errorf("CorrelationID = %q, want corr-123", events[0].CorrelationID)
	}
}

func TestLoggerStopIdempotent(t *testing.T) {
	logger := NewLogger(NewMemoryStore(10), nil)
	logger.Stop()
	logger.Stop() // must not panic
}

func TestMemoryStoreEviction(t *testing.T) {
	store := NewMemoryStore(10)
	for i := 0; i < 12; i++ {
		err := store.Save(context.Background(), &Event{
			ID:        fmt.Sprintf("e%d", i),
			Timestamp: time.Now().UTC(),
			Type:      EventTypeRiskSignal,
			UserID:    "u1",
		})
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	events, _ := store.Query(context.Background(), QueryFilter{})
	if len(events) > 11 {
		t.Errorf("store holds %d events beyond its bound", len(events))
	}
	// Oldest events are evicted first.
	if _, err := store.Get(context.Background(), "e0"); err == nil {
		t.Error("oldest event survived eviction")
	}
	if _, err := store.Get(context.Background(), "e11"); err != nil {
		t.Errorf("newest event missing: %v", err)
	}
}

func TestMemoryStoreQueryFilters(t *testing.T) {
	store := NewMemoryStore(100)
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)

	seed := []Event{
		{ID: "1", Timestamp: base, Type: EventTypeAutoBan, UserID: "alice"},
		{ID: "2", Timestamp: base.Add(time.Hour), Type: EventTypeRiskSignal, UserID: "alice"},
		{ID: "3", Timestamp: base.Add(2 * time.Hour), Type: EventTypeAutoBan, UserID: "bob"},
	}
	for i := range seed {
		if err := store.Save(context.Background(), &seed[i]); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	tests := []struct {
		name    string
		filter  QueryFilter
		wantIDs []string
	}{
		{"by user", QueryFilter{UserID: "alice"}, []string{"2", "1"}},
		{"by type", QueryFilter{Type: EventTypeAutoBan}, []string{"3", "1"}},
		{"by user and type", QueryFilter{UserID: "alice", Type: EventTypeAutoBan}, []string{"1"}},
		{"since excludes older", QueryFilter{Since: base.Add(30 * time.Minute)}, []string{"3", "2"}},
		{"limit caps newest first", QueryFilter{Limit: 1}, []string{"3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := store.Query(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(events) != len(tt.wantIDs) {
				t.Fatalf("got %d events, want %d", len(events), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if events[i].ID != id {
					t.Errorf("events[%d].ID = %s, want %s", i, events[i].ID, id)
				}
			}
		})
	}

	count, err := store.CountForUser(context.Background(), "alice", EventTypeAutoBan)
	if err != nil || count != 1 {
		t.Errorf("CountForUser = (%d, %v), want (1, nil)", count, err)
	}
}
