package session

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestJournal_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, "Build a todo app", []string{"core"})
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	if j.ID == "" {
		t.Error("journal ID should not be empty")
	}
	if filepath.Dir(j.Path()) != filepath.Join(dir, "runs") {
		t.Errorf("unexpected path %s", j.Path())
	}

	j.Add(Event{Type: EventRunStart, Content: "Build a todo app"})
	j.Add(Event{Type: EventToolCall, Tool: "write_file", Success: Bool(true), DurationMs: 3})
	seq, err := j.Add(Event{Type: EventEscalation, Project: "Todo", Error: "budget exhausted"})
	if err != nil {
		t.Fatalf("add error: %v", err)
	}
	if seq != 3 {
		t.Errorf("expected seq 3, got %d", seq)
	}
	if err := j.Close(StatusEscalated, "budget exhausted"); err != nil {
		t.Fatalf("close error: %v", err)
	}

	run, err := Load(j.Path())
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if run.ID != j.ID || run.Goal != "Build a todo app" || len(run.Teams) != 1 {
		t.Errorf("unexpected header: %+v", run)
	}
	if run.Status != StatusEscalated || run.Result != "budget exhausted" {
		t.Errorf("unexpected footer: %s %q", run.Status, run.Result)
	}
	if len(run.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(run.Events))
	}
	tc := run.Events[1]
	if tc.Tool != "write_file" || tc.Success == nil || !*tc.Success || tc.SeqID != 2 {
		t.Errorf("unexpected tool event: %+v", tc)
	}
}

func TestJournal_UnfinishedIsRunning(t *testing.T) {
	j, err := Open(t.TempDir(), "goal", nil)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	j.Add(Event{Type: EventRunStart})

	run, err := Load(j.Path())
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if run.Status != StatusRunning {
		t.Errorf("expected running, got %s", run.Status)
	}
	j.Close(StatusComplete, "")
}

func TestJournal_AddAfterClose(t *testing.T) {
	j, _ := Open(t.TempDir(), "goal", nil)
	j.Close(StatusComplete, "")
	if _, err := j.Add(Event{Type: EventRunEnd}); err == nil {
		t.Error("expected error adding to a closed journal")
	}
	if err := j.Close(StatusFailed, ""); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestJournal_Nil(t *testing.T) {
	var j *Journal
	if _, err := j.Add(Event{Type: EventRunStart}); err != nil {
		t.Errorf("nil journal should accept events, got %v", err)
	}
	if err := j.Close(StatusComplete, ""); err != nil {
		t.Errorf("nil journal close: %v", err)
	}
	if j.Path() != "" {
		t.Error("nil journal has no path")
	}
}

func TestJournal_ConcurrentAdds(t *testing.T) {
	j, _ := Open(t.TempDir(), "goal", []string{"a", "b"})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.Add(Event{Type: EventTaskAttempt, Attempt: 1})
		}()
	}
	wg.Wait()
	j.Close(StatusComplete, "")

	run, err := Load(j.Path())
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	seen := map[uint64]bool{}
	for _, e := range run.Events {
		if seen[e.SeqID] {
			t.Errorf("duplicate seq %d", e.SeqID)
		}
		seen[e.SeqID] = true
	}
	if len(seen) != 20 {
		t.Errorf("expected 20 events, got %d", len(seen))
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	os.WriteFile(path, []byte("{\"_type\":\"header\",\"id\":\"x\"}\nnot json\n"), 0644)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "JSONL") {
		t.Errorf("expected parse error, got %v", err)
	}
}
