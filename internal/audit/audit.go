// Package audit records what a reconciliation run did as an append-only
// stream of JSON lines. Each line carries a zero-based sequence number that
// keeps increasing across runs writing to the same file.
package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang-bank-reconciliation/internal/canonical"
	"golang-bank-reconciliation/pkg/logger"
)

// Event types emitted by the engine and the pipeline
const (
	EventRunStarted          = "run_started"
	EventInputsHashed        = "inputs_hashed"
	EventIngestionCompleted  = "ingestion_completed"
	EventIngestionLimit      = "ingestion_limit"
	EventNormalized          = "normalization_completed"
	EventMatchingStarted     = "matching_started"
	EventStageCompleted      = "stage_completed"
	EventMatchCreated        = "match_created"
	EventFindingEmitted      = "finding_emitted"
	EventMatchingCompleted   = "matching_completed"
	EventArtifactWritten     = "artifact_written"
	EventReportWritten       = "report_written"
	EventRunCompleted        = "run_completed"
	EventCLIError            = "cli_error"
	EventExtensionConsulted  = "extension_consulted"
	EventContractValidated   = "contract_validated"
	EventValidationCompleted = "validation_completed"
)

// Event is one line of the audit stream
type Event struct {
	Seq     int64                  `json:"seq"`
	RunID   string                 `json:"run_id,omitempty"`
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
}

// Recorder receives audit events
//
//go:generate mockgen -destination=mocks/mock_recorder.go -package=mocks -source=audit.go Recorder
type Recorder interface {
	Record(eventType, message string, details map[string]interface{}) error
}

// Null discards every event
type Null struct{}

// Record implements Recorder
func (Null) Record(string, string, map[string]interface{}) error { return nil }

var _ Recorder = Null{}

// JSONLWriter appends events to a file, one canonical JSON object per line
type JSONLWriter struct {
	mu    sync.Mutex
	path  string
	runID string
	next  int64
}

var _ Recorder = (*JSONLWriter)(nil)

// OpenJSONL prepares a writer for path. When the file already holds events,
// numbering continues after the last recorded seq; a missing file starts at 0.
func OpenJSONL(path string) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	next, err := nextSeq(path)
	if err != nil {
		return nil, err
	}
	return &JSONLWriter{path: path, next: next}, nil
}

func nextSeq(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading audit log: %w", err)
	}

	var lines int64
	var last []byte
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		lines++
		last = append(last[:0], line...)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scanning audit log: %w", err)
	}
	if last == nil {
		return 0, nil
	}

	var tail struct {
		Seq *int64 `json:"seq"`
	}
	if json.Unmarshal(last, &tail) == nil && tail.Seq != nil && *tail.Seq+1 >= lines {
		return *tail.Seq + 1, nil
	}
	// An unreadable tail still must not reuse a number.
	return lines, nil
}

// Path returns the destination file
func (w *JSONLWriter) Path() string {
	return w.path
}

// SetRunID stamps subsequent events with runID
func (w *JSONLWriter) SetRunID(runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runID = runID
}

// NextSeq returns the seq the next event will get
func (w *JSONLWriter) NextSeq() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.next
}

// Record appends one event. The sequence number only advances when the
// line was written.
func (w *JSONLWriter) Record(eventType, message string, details map[string]interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if details == nil {
		details = map[string]interface{}{}
	}
	line, err := canonical.MarshalLine(Event{
		Seq:     w.next,
		RunID:   w.runID,
		Type:    eventType,
		Message: message,
		Details: details,
	})
	if err != nil {
		return fmt.Errorf("encoding audit event %s: %w", eventType, err)
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("writing audit log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing audit log: %w", err)
	}

	w.next++
	return nil
}

// BestEffort forwards events to another Recorder and never fails: write
// errors are logged and counted instead of returned.
type BestEffort struct {
	inner    Recorder
	log      logger.Logger
	mu       sync.Mutex
	failures int
}

var _ Recorder = (*BestEffort)(nil)

// NewBestEffort wraps inner. A nil inner behaves like Null.
func NewBestEffort(inner Recorder, log logger.Logger) *BestEffort {
	if inner == nil {
		inner = Null{}
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &BestEffort{inner: inner, log: log.WithComponent("audit")}
}

// Record implements Recorder; it always returns nil
func (b *BestEffort) Record(eventType, message string, details map[string]interface{}) error {
	if err := b.inner.Record(eventType, message, details); err != nil {
		b.mu.Lock()
		b.failures++
		b.mu.Unlock()
		b.log.WithError(err).WithField("event_type", eventType).Warn("audit event could not be recorded")
	}
	return nil
}

// Failures returns how many events were lost
func (b *BestEffort) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// ReadEvents loads every event of a JSONL audit file
func ReadEvents(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events []Event
	for i, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("audit line %d: %w", i+1, err)
		}
		events = append(events, ev)
	}
	return events, nil
}
