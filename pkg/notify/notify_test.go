package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/captely/core/internal/db"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewWithoutTokenIsDisabled(t *testing.T) {
	n := New("", "#alerts", testLogger())
	if n.IsEnabled() {
		t.Error("expected notifier without bot token to be disabled")
	}
}

func TestNewWithoutChannelIsDisabled(t *testing.T) {
	n := New("xoxb-fake", "", testLogger())
	if n.IsEnabled() {
		t.Error("expected notifier without channel to be disabled")
	}
}

func TestLowCreditNoopWhenDisabledDoesNotPanic(t *testing.T) {
	n := New("", "", testLogger())
	n.LowCredit(context.Background(), uuid.New(), 3.5)
}

func TestJobCompletedNoopWhenDisabledDoesNotPanic(t *testing.T) {
	n := New("", "", testLogger())
	n.JobCompleted(context.Background(), uuid.New(), db.JobCompleted)
}

func TestJobProgressNeverPostsRegardlessOfState(t *testing.T) {
	n := New("", "", testLogger())
	n.JobProgress(context.Background(), uuid.New(), 3, 10)
}

func TestStateEmoji(t *testing.T) {
	tests := []struct {
		state db.JobState
		want  string
	}{
		{db.JobCompleted, "✅"},
		{db.JobPartial, "🟡"},
		{db.JobFailed, "🔴"},
		{db.JobRunning, "⚪"},
	}
	for _, tt := range tests {
		if got := stateEmoji(tt.state); got != tt.want {
			t.Errorf("stateEmoji(%v) = %q, want %q", tt.state, got, tt.want)
		}
	}
}
