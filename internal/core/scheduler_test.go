package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunPurgeJob(t *testing.T) {
	store := &memAuditStore{}
	runPurgeJob(context.Background(), store, 90, discardLogger())

	if len(store.purged) != 1 || store.purged[0] != 90 {
		t.Errorf("purged = %v, want [90]", store.purged)
	}
}

func TestRunPurgeJob_CancelledContext(t *testing.T) {
	store := &memAuditStore{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runPurgeJob(ctx, store, 90, discardLogger())
	if len(store.purged) != 0 {
		t.Errorf("purge ran on a cancelled context: %v", store.purged)
	}
}

func TestRunPurgeJob_StoreError(t *testing.T) {
	store := &memAuditStore{err: errors.New("db down")}
	// Must not panic; the error is only logged.
	runPurgeJob(context.Background(), store, 90, discardLogger())
}

func TestStartPurgeScheduler_InvalidSchedule(t *testing.T) {
	err := StartPurgeScheduler(context.Background(), &memAuditStore{}, PurgeConfig{Schedule: "every day"}, discardLogger())
	if err == nil {
		t.Fatal("expected an error for an invalid schedule")
	}
}

func TestStartPurgeScheduler_RunOnStart(t *testing.T) {
	store := &memAuditStore{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- StartPurgeScheduler(ctx, store, PurgeConfig{
			Schedule:      "0 3 * * *",
			RetentionDays: 30,
			RunOnStart:    true,
		}, discardLogger())
	}()

	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		n := len(store.purged)
		store.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("purge did not run on start")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("StartPurgeScheduler: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
