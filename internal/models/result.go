package models

import (
	"fmt"
	"sort"
)

// MatchState is the decision attached to a match
type MatchState string

const (
	StateReconciled MatchState = "reconciled"
	StateSuggested  MatchState = "suggested"
	StatePending    MatchState = "pending"
	StateRejected   MatchState = "rejected"
)

// IsValid checks if the match state is valid
func (s MatchState) IsValid() bool {
	switch s {
	case StateReconciled, StateSuggested, StatePending, StateRejected:
		return true
	}
	return false
}

// Severity grades a finding
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Entity is the kind of object a finding is about
type Entity string

const (
	EntityBank     Entity = "bank"
	EntityExpected Entity = "expected"
	EntityMatch    Entity = "match"
	EntitySystem   Entity = "system"
)

// IsValid checks if the entity is valid
func (e Entity) IsValid() bool {
	switch e {
	case EntityBank, EntityExpected, EntityMatch, EntitySystem:
		return true
	}
	return false
}

// Match is a correspondence between bank records and expected records
type Match struct {
	ID                string     `json:"id"`
	State             MatchState `json:"state"`
	Score             float64    `json:"score"`
	Rule              string     `json:"rule"`
	Explanation       string     `json:"explanation"`
	BankIDs           []string   `json:"bank_ids"`
	ExpectedIDs       []string   `json:"expected_ids"`
	ConfidenceBlocked bool       `json:"confidence_blocked"`
}

// Clone returns a deep copy of the match
func (m Match) Clone() Match {
	m.BankIDs = append([]string(nil), m.BankIDs...)
	m.ExpectedIDs = append([]string(nil), m.ExpectedIDs...)
	return m
}

// Finding is an observation that needs human attention
type Finding struct {
	ID       string                 `json:"id"`
	Severity Severity               `json:"severity"`
	Type     string                 `json:"type"`
	Message  string                 `json:"message"`
	Entity   Entity                 `json:"entity"`
	EntityID string                 `json:"entity_id,omitempty"`
	Details  map[string]interface{} `json:"details"`
}

// Clone returns a copy of the finding with its own details map
func (f Finding) Clone() Finding {
	details := make(map[string]interface{}, len(f.Details))
	for k, v := range f.Details {
		details[k] = v
	}
	f.Details = details
	return f
}

// Result is the immutable outcome of one reconciliation run
type Result struct {
	runID    string
	bank     []BankRecord
	expected []ExpectedRecord
	matches  []Match
	findings []Finding
}

// NewResult bundles a run's records and decisions. Matches and findings are
// copied and ordered by ID.
func NewResult(runID string, bank []BankRecord, expected []ExpectedRecord, matches []Match, findings []Finding) *Result {
	r := &Result{
		runID:    runID,
		bank:     append([]BankRecord(nil), bank...),
		expected: append([]ExpectedRecord(nil), expected...),
		matches:  make([]Match, len(matches)),
		findings: make([]Finding, len(findings)),
	}
	for i, m := range matches {
		r.matches[i] = m.Clone()
	}
	for i, f := range findings {
		r.findings[i] = f.Clone()
	}
	sort.SliceStable(r.matches, func(i, j int) bool { return r.matches[i].ID < r.matches[j].ID })
	sort.SliceStable(r.findings, func(i, j int) bool { return r.findings[i].ID < r.findings[j].ID })
	return r
}

// RunID returns the run identifier
func (r *Result) RunID() string { return r.runID }

// BankRecords returns a copy of the bank records
func (r *Result) BankRecords() []BankRecord { return append([]BankRecord(nil), r.bank...) }

// ExpectedRecords returns a copy of the expected records
func (r *Result) ExpectedRecords() []ExpectedRecord {
	return append([]ExpectedRecord(nil), r.expected...)
}

// Matches returns a copy of the matches in ID order
func (r *Result) Matches() []Match {
	out := make([]Match, len(r.matches))
	for i, m := range r.matches {
		out[i] = m.Clone()
	}
	return out
}

// Findings returns a copy of the findings in ID order
func (r *Result) Findings() []Finding {
	out := make([]Finding, len(r.findings))
	for i, f := range r.findings {
		out[i] = f.Clone()
	}
	return out
}

// Summary counts matches by state and findings by severity
type Summary struct {
	BankRecords      int                `json:"bank_records"`
	ExpectedRecords  int                `json:"expected_records"`
	MatchesByState   map[MatchState]int `json:"matches_by_state"`
	FindingsBySev    map[Severity]int   `json:"findings_by_severity"`
	BlockedMatches   int                `json:"blocked_matches"`
	CriticalFindings int                `json:"critical_findings"`
}

// Summary computes counts over the result
func (r *Result) Summary() Summary {
	s := Summary{
		BankRecords:     len(r.bank),
		ExpectedRecords: len(r.expected),
		MatchesByState:  make(map[MatchState]int),
		FindingsBySev:   make(map[Severity]int),
	}
	for _, m := range r.matches {
		s.MatchesByState[m.State]++
		if m.ConfidenceBlocked {
			s.BlockedMatches++
		}
	}
	for _, f := range r.findings {
		s.FindingsBySev[f.Severity]++
	}
	s.CriticalFindings = s.FindingsBySev[SeverityCritical]
	return s
}

// CheckExclusiveMembership verifies that no bank or expected ID appears in
// more than one match. It returns a descriptive error on the first violation.
func CheckExclusiveMembership(matches []Match) error {
	bankOwner := make(map[string]string)
	expectedOwner := make(map[string]string)
	for _, m := range matches {
		for _, id := range m.BankIDs {
			if prev, ok := bankOwner[id]; ok {
				return fmt.Errorf("bank record %s appears in matches %s and %s", id, prev, m.ID)
			}
			bankOwner[id] = m.ID
		}
		for _, id := range m.ExpectedIDs {
			if prev, ok := expectedOwner[id]; ok {
				return fmt.Errorf("expected record %s appears in matches %s and %s", id, prev, m.ID)
			}
			expectedOwner[id] = m.ID
		}
	}
	return nil
}
