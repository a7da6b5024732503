package audit

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
)

func TestLog_DropsWhenFull(t *testing.T) {
	logger := slog.Default()
	w := NewWriter(nil, logger)
	// Don't start the background goroutine — nothing drains the channel.

	owner := uuid.New()
	for i := 0; i < bufferSize; i++ {
		w.Log(Entry{Owner: owner, Action: "submit_job"})
	}

	// The next log should be dropped (non-blocking).
	w.Log(Entry{Owner: owner, Action: "dropped"})

	if len(w.entries) != bufferSize {
		t.Errorf("buffer size = %d, want %d", len(w.entries), bufferSize)
	}
}

func TestLog_EnqueuesEntryVerbatim(t *testing.T) {
	logger := slog.Default()
	w := NewWriter(nil, logger)
	// Don't start — read directly from the channel.

	owner := uuid.New()
	jobID := uuid.New()
	detail, _ := json.Marshal(map[string]int{"total": 42})

	w.Log(Entry{Owner: owner, JobID: &jobID, Action: "submit_job", Detail: detail})

	entry := <-w.entries
	if entry.Owner != owner {
		t.Errorf("Owner = %v, want %v", entry.Owner, owner)
	}
	if entry.JobID == nil || *entry.JobID != jobID {
		t.Errorf("JobID = %v, want %v", entry.JobID, jobID)
	}
	if entry.Action != "submit_job" {
		t.Errorf("Action = %q, want %q", entry.Action, "submit_job")
	}
}
