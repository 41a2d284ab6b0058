// Package session records the run journal: an append-only JSONL log of one
// coordinator run.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status constants for runs.
const (
	StatusRunning   = "running"
	StatusComplete  = "complete"
	StatusFailed    = "failed"
	StatusEscalated = "escalated"
)

// Event types written to the journal.
const (
	EventRunStart     = "run_start"
	EventProjectStart = "project_start"
	EventProjectEnd   = "project_end"
	EventTaskAttempt  = "task_attempt"
	EventToolCall     = "tool_call"
	EventEscalation   = "escalation"
	EventRunEnd       = "run_end"
)

// JSONL record types.
const (
	RecordTypeHeader = "header" // run metadata (first line)
	RecordTypeEvent  = "event"
	RecordTypeFooter = "footer" // final state (last line, absent while running)
)

// Event is one journal entry. Tool arguments are never recorded.
type Event struct {
	SeqID     uint64    `json:"seq"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Team    string `json:"team,omitempty"`
	Project string `json:"project,omitempty"`
	Task    string `json:"task,omitempty"`
	Worker  string `json:"worker,omitempty"`
	Tool    string `json:"tool,omitempty"`
	Attempt int    `json:"attempt,omitempty"`

	Content    string `json:"content,omitempty"`
	Success    *bool  `json:"success,omitempty"` // nil = in progress
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Record is one JSONL line.
type Record struct {
	RecordType string `json:"_type"`

	// header
	ID        string    `json:"id,omitempty"`
	Goal      string    `json:"goal,omitempty"`
	Teams     []string  `json:"teams,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`

	// event
	*Event `json:",omitempty"`

	// footer
	Status    string    `json:"status,omitempty"`
	Result    string    `json:"result,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Run is a journal read back from disk.
type Run struct {
	ID        string
	Goal      string
	Teams     []string
	Status    string
	Result    string
	Events    []Event
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Journal appends the events of one run to <dir>/runs/<id>.jsonl. A nil
// *Journal accepts every call and records nothing.
type Journal struct {
	ID   string
	path string

	mu     sync.Mutex
	f      *os.File
	seq    uint64
	closed bool
}

// Open creates the journal of a new run and writes its header.
func Open(dir, goal string, teams []string) (*Journal, error) {
	runs := filepath.Join(dir, "runs")
	if err := os.MkdirAll(runs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	id := uuid.New().String()
	path := filepath.Join(runs, id+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal file: %w", err)
	}

	j := &Journal{ID: id, path: path, f: f}
	header := Record{
		RecordType: RecordTypeHeader,
		ID:         id,
		Goal:       goal,
		Teams:      teams,
		CreatedAt:  time.Now(),
	}
	if err := j.writeLine(header); err != nil {
		f.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	if j == nil {
		return ""
	}
	return j.path
}

// Add appends an event and returns its sequence number.
func (j *Journal) Add(e Event) (uint64, error) {
	if j == nil {
		return 0, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, fmt.Errorf("journal %s is closed", j.ID)
	}
	j.seq++
	e.SeqID = j.seq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return e.SeqID, j.writeLine(Record{RecordType: RecordTypeEvent, Event: &e})
}

// Close writes the footer and closes the file.
func (j *Journal) Close(status, result string) error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	footer := Record{
		RecordType: RecordTypeFooter,
		Status:     status,
		Result:     result,
		UpdatedAt:  time.Now(),
	}
	werr := j.writeLine(footer)
	if err := j.f.Close(); err != nil && werr == nil {
		werr = err
	}
	return werr
}

// writeLine writes a single JSONL record. Callers serialize access.
func (j *Journal) writeLine(record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	data = append(data, '\n')
	if _, err := j.f.Write(data); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	return nil
}

// Load reads a journal file. A journal without a footer is still running
// or was interrupted.
func Load(path string) (*Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	run := &Run{Status: StatusRunning}
	// bufio.Reader has no line length limit, unlike Scanner.
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("error reading JSONL: %w", err)
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if perr := parseLine(trimmed, run); perr != nil {
				return nil, perr
			}
		}
		if err == io.EOF {
			break
		}
	}
	return run, nil
}

func parseLine(line []byte, run *Run) error {
	var record Record
	if err := json.Unmarshal(line, &record); err != nil {
		return fmt.Errorf("failed to parse JSONL line: %w", err)
	}
	switch record.RecordType {
	case RecordTypeHeader:
		run.ID = record.ID
		run.Goal = record.Goal
		run.Teams = record.Teams
		run.CreatedAt = record.CreatedAt
	case RecordTypeEvent:
		if record.Event != nil {
			run.Events = append(run.Events, *record.Event)
		}
	case RecordTypeFooter:
		run.Status = record.Status
		run.Result = record.Result
		run.UpdatedAt = record.UpdatedAt
	}
	return nil
}

// Bool returns a pointer for Event.Success.
func Bool(b bool) *bool { return &b }
