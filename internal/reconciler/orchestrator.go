package reconciler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang-bank-reconciliation/internal/audit"
	"golang-bank-reconciliation/internal/contract"
	"golang-bank-reconciliation/internal/matcher"
	"golang-bank-reconciliation/internal/parsers"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// Step names a phase of a run
type Step string

const (
	StepHashing     Step = "hashing"
	StepIngesting   Step = "ingesting"
	StepNormalizing Step = "normalizing"
	StepMatching    Step = "matching"
	StepWriting     Step = "writing"
	StepDone        Step = "done"
)

var runSteps = []Step{StepHashing, StepIngesting, StepNormalizing, StepMatching, StepWriting, StepDone}

// ReconciliationProgress tracks the progress of a run
type ReconciliationProgress struct {
	TotalSteps      int           `json:"total_steps"`
	CompletedSteps  int           `json:"completed_steps"`
	CurrentStep     Step          `json:"current_step"`
	PercentComplete float64       `json:"percent_complete"`
	StartTime       time.Time     `json:"start_time"`
	ElapsedTime     time.Duration `json:"elapsed_time"`
}

// ProgressCallback is called at the start of every step. Progress is
// presentation only and never reaches the artifact or the audit stream.
type ProgressCallback func(*ReconciliationProgress)

// AddProgressCallback registers a callback for subsequent runs
func (rs *ReconciliationService) AddProgressCallback(callback ProgressCallback) {
	rs.progressMutex.Lock()
	defer rs.progressMutex.Unlock()
	rs.progressCallbacks = append(rs.progressCallbacks, callback)
}

func (rs *ReconciliationService) progress(step Step) {
	rs.progressMutex.Lock()
	defer rs.progressMutex.Unlock()

	if step == StepHashing || rs.current == nil {
		rs.current = &ReconciliationProgress{TotalSteps: len(runSteps) - 1, StartTime: time.Now()}
	}
	for i, s := range runSteps {
		if s == step {
			rs.current.CompletedSteps = i
		}
	}
	rs.current.CurrentStep = step
	rs.current.ElapsedTime = time.Since(rs.current.StartTime)
	rs.current.PercentComplete = float64(rs.current.CompletedSteps) / float64(rs.current.TotalSteps) * 100

	snapshot := *rs.current
	for _, callback := range rs.progressCallbacks {
		callback(&snapshot)
	}
}

// ValidationReport summarizes a dry ingestion of a bank/expected pair
type ValidationReport struct {
	BankStats     *parsers.ParseStats
	ExpectedStats *parsers.ParseStats
	Dataset       *DatasetStats
}

// Validate ingests and normalizes both inputs without matching or writing
// anything. Events go to recorder; nil discards them.
func (rs *ReconciliationService) Validate(ctx context.Context, req *Request, recorder audit.Recorder) (*ValidationReport, error) {
	if err := req.Validate(false); err != nil {
		return nil, err
	}
	if recorder == nil {
		recorder = audit.Null{}
	}
	matching := req.Matching
	if matching == nil {
		matching = matcher.DefaultMatchingConfig()
	}

	outcome := &Outcome{}
	rules := rs.consultExtension(recorder)
	bank, expected, err := rs.ingest(ctx, req, recorder, rules, outcome)
	if err != nil {
		return nil, err
	}
	_, _, dataset, err := rs.preprocessor.Preprocess(bank, expected, matching.MinFieldConfidence)
	if err != nil {
		return nil, err
	}

	recorder.Record(audit.EventValidationCompleted, "inputs validated", dataset.AsMap())
	rs.logger.WithFields(logger.Fields{
		"bank_records":     dataset.BankRecords,
		"expected_records": dataset.ExpectedRecords,
	}).Info("Inputs validated")

	return &ValidationReport{
		BankStats:     outcome.BankStats,
		ExpectedStats: outcome.ExpectedStats,
		Dataset:       dataset,
	}, nil
}

// Explain loads run.json from runDir with the consumer validator and
// returns the match or finding with the given ID.
func Explain(runDir, id string) (interface{}, error) {
	path := filepath.Join(runDir, contract.FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, hashError(path, err)
	}

	payload, err := contract.Decode(data, contract.NewConsumerValidator())
	if err != nil {
		return nil, err
	}

	item, ok := payload.Lookup(id)
	if !ok {
		return nil, errors.UserInputError(errors.CodeUnknownID,
			fmt.Sprintf("no match or finding with id %q in %s", id, path), nil).
			WithContext("run_id", payload.RunID).
			WithSuggestion("ids start with M- for matches and H- for findings")
	}
	return item, nil
}
