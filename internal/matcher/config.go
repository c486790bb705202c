// Package matcher provides the reconciliation rule cascade and its configuration.
//
// The engine is conservative: it creates a match only when the evidence is
// unambiguous and otherwise emits a finding for human review. Stages run in
// a fixed order and a record consumed by one stage is invisible to the next:
//  0. duplicate detection on the bank side
//  1. exact reference and exact amount (1:1)
//  2. exact amount within a date window (1:1)
//  3. one bank record against a unique subset of expected records (1:N)
//  4. confidence and provenance gate deciding each match's state
//  5. residue findings for everything not reconciled
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.DateWindowDays = 5
//
//	engine, err := matcher.NewMatchingEngine(config, recorder)
//	result, err := engine.Reconcile(runID, bankRecords, expectedRecords)
package matcher

import (
	"fmt"
)

// MatchingConfig holds the client-tunable knobs of the cascade.
//
// The subset search bounds exist only to keep the one-to-many stage cheap;
// their values carry no meaning beyond bounding the search.
type MatchingConfig struct {
	// DateWindowDays is the maximum |date difference| for amount based stages
	DateWindowDays int `json:"date_window_days" mapstructure:"date_window_days"`

	// AutoReconcileThreshold is the minimum score for a match to be reconciled without review
	AutoReconcileThreshold float64 `json:"auto_reconcile_threshold" mapstructure:"auto_reconcile_threshold"`

	// MinFieldConfidence blocks any match involving a field scored below it
	MinFieldConfidence float64 `json:"min_field_confidence" mapstructure:"min_field_confidence"`

	// SubsetCandidateCap limits how many expected records the subset search considers
	SubsetCandidateCap int `json:"subset_candidate_cap" mapstructure:"subset_candidate_cap"`

	// SubsetSolutionLimit stops the search once more solutions than this are found
	SubsetSolutionLimit int `json:"subset_solution_limit" mapstructure:"subset_solution_limit"`
}

// DefaultMatchingConfig returns the standard configuration
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DateWindowDays:         3,
		AutoReconcileThreshold: 0.85,
		MinFieldConfidence:     0.80,
		SubsetCandidateCap:     10,
		SubsetSolutionLimit:    3,
	}
}

// StrictMatchingConfig returns a configuration for same-day, high-trust matching
func StrictMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DateWindowDays:         0,
		AutoReconcileThreshold: 0.95,
		MinFieldConfidence:     0.90,
		SubsetCandidateCap:     6,
		SubsetSolutionLimit:    1,
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.DateWindowDays < 0 {
		return fmt.Errorf("date window days cannot be negative: %d", mc.DateWindowDays)
	}

	if mc.AutoReconcileThreshold < 0.0 || mc.AutoReconcileThreshold > 1.0 {
		return fmt.Errorf("auto reconcile threshold must be between 0.0 and 1.0: %f", mc.AutoReconcileThreshold)
	}

	if mc.MinFieldConfidence < 0.0 || mc.MinFieldConfidence > 1.0 {
		return fmt.Errorf("minimum field confidence must be between 0.0 and 1.0: %f", mc.MinFieldConfidence)
	}

	if mc.SubsetCandidateCap < 2 || mc.SubsetCandidateCap > 20 {
		return fmt.Errorf("subset candidate cap must be between 2 and 20: %d", mc.SubsetCandidateCap)
	}

	if mc.SubsetSolutionLimit < 1 {
		return fmt.Errorf("subset solution limit must be positive: %d", mc.SubsetSolutionLimit)
	}

	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	return &clone
}

// IsWithinWindow reports whether a day difference falls inside the date window
func (mc *MatchingConfig) IsWithinWindow(days int) bool {
	if days < 0 {
		days = -days
	}
	return days <= mc.DateWindowDays
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{Window: %d days, AutoThreshold: %.2f, MinFieldConfidence: %.2f, SubsetCap: %d, SubsetLimit: %d}",
		mc.DateWindowDays, mc.AutoReconcileThreshold, mc.MinFieldConfidence, mc.SubsetCandidateCap, mc.SubsetSolutionLimit)
}

// AsMap returns the configuration as plain values for audit details
func (mc *MatchingConfig) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"date_window_days":         mc.DateWindowDays,
		"auto_reconcile_threshold": mc.AutoReconcileThreshold,
		"min_field_confidence":     mc.MinFieldConfidence,
		"subset_candidate_cap":     mc.SubsetCandidateCap,
		"subset_solution_limit":    mc.SubsetSolutionLimit,
	}
}
