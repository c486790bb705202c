package matcher

import (
	"fmt"
	"sort"

	"golang-bank-reconciliation/internal/audit"
	"golang-bank-reconciliation/internal/identity"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"

	"github.com/shopspring/decimal"
)

// Rule names attached to matches
const (
	RuleExactReference = "exact_reference"
	RuleAmountDate     = "amount_date"
	RuleOneToMany      = "one_to_many"
)

// Rule scores
const (
	ScoreExactReference = 1.0
	ScoreAmountSameDay  = 0.90
	ScoreAmountInWindow = 0.80
	ScoreOneToMany      = 0.75
)

// Finding types emitted by the cascade
const (
	FindingDuplicateBank          = "duplicate_bank"
	FindingAmbiguityByReference   = "ambiguity_by_reference"
	FindingReferenceAmountDiffers = "reference_matches_amount_differs"
	FindingAmbiguityAmountDate    = "ambiguity_amount_date"
	FindingTxHasMatch             = "tx_has_match"
	FindingPendingBank            = "pending_bank"
	FindingPendingExpected        = "pending_expected"
)

// MatchingEngine runs the reconciliation cascade
type MatchingEngine struct {
	config *MatchingConfig
	audit  audit.Recorder
	log    logger.Logger
}

// NewMatchingEngine creates a new matching engine. A nil config uses the
// defaults and a nil recorder discards events. Recorder failures never fail
// a reconciliation.
func NewMatchingEngine(config *MatchingConfig, recorder audit.Recorder) (*MatchingEngine, error) {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", config.String(), err)
	}

	log := logger.WithComponent("matcher")
	return &MatchingEngine{
		config: config.Clone(),
		audit:  audit.NewBestEffort(recorder, log),
		log:    log,
	}, nil
}

// GetConfiguration returns a copy of the engine configuration
func (me *MatchingEngine) GetConfiguration() *MatchingConfig {
	return me.config.Clone()
}

// Reconcile matches bank records against expected records. It is a pure
// function of its inputs: the same records, run ID and configuration always
// give the same result. Only a broken internal invariant returns an error.
func (me *MatchingEngine) Reconcile(runID string, bank []models.BankRecord, expected []models.ExpectedRecord) (*models.Result, error) {
	r, err := me.newRun(runID, bank, expected)
	if err != nil {
		return nil, err
	}

	me.audit.Record(audit.EventMatchingStarted, "matching started", map[string]interface{}{
		"bank_records":     len(r.bank),
		"expected_records": len(r.expected.All),
		"config":           me.config.AsMap(),
	})

	stages := []struct {
		name string
		run  func()
	}{
		{"duplicates", r.detectDuplicates},
		{RuleExactReference, r.matchByReference},
		{RuleAmountDate, r.matchByAmountAndDate},
		{RuleOneToMany, r.matchOneToMany},
		{"gate", r.gate},
		{"residue", r.residue},
	}
	for i, stage := range stages {
		matchesBefore, findingsBefore := len(r.candidates), len(r.findings)
		stage.run()
		me.audit.Record(audit.EventStageCompleted, fmt.Sprintf("stage %d completed", i), map[string]interface{}{
			"stage":        i,
			"name":         stage.name,
			"new_matches":  len(r.candidates) - matchesBefore,
			"new_findings": len(r.findings) - findingsBefore,
		})
	}

	if err := r.checkInvariants(); err != nil {
		return nil, errors.InternalError(errors.CodeInvariantViolation, "matching", err).
			WithContext("run_id", runID)
	}

	for _, m := range r.matches {
		me.audit.Record(audit.EventMatchCreated, "match created", map[string]interface{}{
			"match_id":           m.ID,
			"rule":               m.Rule,
			"state":              string(m.State),
			"score":              m.Score,
			"bank_ids":           m.BankIDs,
			"expected_ids":       m.ExpectedIDs,
			"confidence_blocked": m.ConfidenceBlocked,
		})
	}
	for _, f := range r.findings {
		me.audit.Record(audit.EventFindingEmitted, "finding emitted", map[string]interface{}{
			"finding_id": f.ID,
			"type":       f.Type,
			"severity":   string(f.Severity),
			"entity":     string(f.Entity),
			"entity_id":  f.EntityID,
		})
	}

	result := models.NewResult(runID, bank, expected, r.matches, r.findings)
	summary := result.Summary()
	me.audit.Record(audit.EventMatchingCompleted, "matching completed", map[string]interface{}{
		"matches":           len(r.matches),
		"findings":          len(r.findings),
		"blocked_matches":   summary.BlockedMatches,
		"critical_findings": summary.CriticalFindings,
	})
	me.log.WithFields(logger.Fields{
		"run_id":   runID,
		"matches":  len(r.matches),
		"findings": len(r.findings),
	}).Debug("Reconciliation cascade finished")

	return result, nil
}

// run holds the mutable state of one Reconcile call
type run struct {
	engine   *MatchingEngine
	runID    string
	bank     []*models.BankRecord
	expected *ExpectedIndex

	// consumed records belong to a candidate match
	consumedBank     map[string]bool
	consumedExpected map[string]bool
	// excluded bank records received a fail-closed finding in stage 1 or 2
	excludedBank map[string]bool

	candidates []*candidate
	matches    []models.Match
	findings   []models.Finding
}

func (me *MatchingEngine) newRun(runID string, bank []models.BankRecord, expected []models.ExpectedRecord) (*run, error) {
	r := &run{
		engine:           me,
		runID:            runID,
		bank:             make([]*models.BankRecord, len(bank)),
		expected:         NewExpectedIndex(expected),
		consumedBank:     make(map[string]bool),
		consumedExpected: make(map[string]bool),
		excludedBank:     make(map[string]bool),
	}
	for i := range bank {
		r.bank[i] = &bank[i]
	}
	sort.Slice(r.bank, func(i, j int) bool { return r.bank[i].ID < r.bank[j].ID })

	for i := 1; i < len(r.bank); i++ {
		if r.bank[i].ID == r.bank[i-1].ID {
			return nil, errors.InternalError(errors.CodeInvariantViolation, "matching",
				fmt.Errorf("duplicate bank record id %s", r.bank[i].ID))
		}
	}
	for i := 1; i < len(r.expected.All); i++ {
		if r.expected.All[i].ID == r.expected.All[i-1].ID {
			return nil, errors.InternalError(errors.CodeInvariantViolation, "matching",
				fmt.Errorf("duplicate expected record id %s", r.expected.All[i].ID))
		}
	}
	return r, nil
}

func (r *run) available(b *models.BankRecord) bool {
	return !r.consumedBank[b.ID] && !r.excludedBank[b.ID]
}

func (r *run) unconsumed(records []*models.ExpectedRecord) []*models.ExpectedRecord {
	var out []*models.ExpectedRecord
	for _, e := range records {
		if !r.consumedExpected[e.ID] {
			out = append(out, e)
		}
	}
	return out
}

func (r *run) propose(c *candidate) {
	for _, b := range c.bank {
		r.consumedBank[b.ID] = true
	}
	for _, e := range c.expected {
		r.consumedExpected[e.ID] = true
	}
	r.candidates = append(r.candidates, c)
}

func (r *run) emit(severity models.Severity, findingType, message string, entity models.Entity, entityID string, ids []string, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	r.findings = append(r.findings, models.Finding{
		ID:       identity.FindingID(r.runID, ids, findingType, ""),
		Severity: severity,
		Type:     findingType,
		Message:  message,
		Entity:   entity,
		EntityID: entityID,
		Details:  details,
	})
}

// detectDuplicates flags bank records sharing operation date, currency and
// amount. Duplicates are only reported; they stay eligible for matching.
func (r *run) detectDuplicates() {
	groups := make(map[string][]*models.BankRecord)
	var keys []string
	for _, b := range r.bank {
		key := b.OperationDate.Value.String() + "|" + amountKey(b.Currency, b.Amount.Value)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], b)
	}
	sort.Strings(keys)

	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		ids := make([]string, len(group))
		for i, b := range group {
			ids[i] = b.ID
		}
		first := group[0]
		r.emit(models.SeverityWarning, FindingDuplicateBank,
			fmt.Sprintf("%d bank records share date %s and amount %s %s", len(group),
				first.OperationDate.Value, first.Amount.Value.String(), first.Currency),
			models.EntityBank, first.ID, ids,
			map[string]interface{}{
				"bank_ids":       ids,
				"operation_date": first.OperationDate.Value.String(),
				"amount":         first.Amount.Value.String(),
				"currency":       first.Currency,
			})
	}
}

// matchByReference pairs records carrying the same reference when exactly
// one unconsumed expected record has it and the amounts agree.
func (r *run) matchByReference() {
	for _, b := range r.bank {
		ref := b.ReferenceValue()
		if ref == "" || !r.available(b) {
			continue
		}
		candidates := r.unconsumed(r.expected.GetByReference(ref))
		switch {
		case len(candidates) == 0:
			continue
		case len(candidates) > 1:
			ids := expectedIDs(candidates)
			r.emit(models.SeverityWarning, FindingAmbiguityByReference,
				fmt.Sprintf("reference %s matches %d expected records", ref, len(candidates)),
				models.EntityBank, b.ID, append([]string{b.ID}, ids...),
				map[string]interface{}{
					"reference":     ref,
					"candidate_ids": ids,
				})
			r.excludedBank[b.ID] = true
			continue
		}

		e := candidates[0]
		if e.Currency != b.Currency || !e.Amount.Value.Equal(b.Amount.Value) {
			r.emit(models.SeverityCritical, FindingReferenceAmountDiffers,
				fmt.Sprintf("reference %s matches expected record %s but amounts differ: %s %s vs %s %s",
					ref, e.ID, b.Amount.Value.String(), b.Currency, e.Amount.Value.String(), e.Currency),
				models.EntityBank, b.ID, []string{b.ID, e.ID},
				map[string]interface{}{
					"reference":         ref,
					"expected_id":       e.ID,
					"bank_amount":       b.Amount.Value.String(),
					"bank_currency":     b.Currency,
					"expected_amount":   e.Amount.Value.String(),
					"expected_currency": e.Currency,
				})
			r.excludedBank[b.ID] = true
			continue
		}

		r.propose(&candidate{
			rule:  RuleExactReference,
			score: ScoreExactReference,
			explanation: fmt.Sprintf("Reference %s and amount %s %s match exactly",
				ref, b.Amount.Value.String(), b.Currency),
			bank:     []*models.BankRecord{b},
			expected: []*models.ExpectedRecord{e},
		})
	}
}

// matchByAmountAndDate pairs records with the exact amount inside the date
// window when the candidate is unique.
func (r *run) matchByAmountAndDate() {
	window := r.engine.config.DateWindowDays
	for _, b := range r.bank {
		if !r.available(b) {
			continue
		}
		var candidates []*models.ExpectedRecord
		for _, e := range r.unconsumed(r.expected.GetByExactAmount(b.Currency, b.Amount.Value)) {
			if r.engine.config.IsWithinWindow(b.OperationDate.Value.DaysUntil(e.Date.Value)) {
				candidates = append(candidates, e)
			}
		}

		switch {
		case len(candidates) == 0:
			continue
		case len(candidates) > 1:
			ids := expectedIDs(candidates)
			r.emit(models.SeverityWarning, FindingAmbiguityAmountDate,
				fmt.Sprintf("amount %s %s matches %d expected records within %d days",
					b.Amount.Value.String(), b.Currency, len(candidates), window),
				models.EntityBank, b.ID, append([]string{b.ID}, ids...),
				map[string]interface{}{
					"amount":        b.Amount.Value.String(),
					"currency":      b.Currency,
					"window_days":   window,
					"candidate_ids": ids,
				})
			r.excludedBank[b.ID] = true
			continue
		}

		e := candidates[0]
		days := b.OperationDate.Value.AbsDaysBetween(e.Date.Value)
		score := ScoreAmountInWindow
		if days == 0 {
			score = ScoreAmountSameDay
		}
		r.propose(&candidate{
			rule:  RuleAmountDate,
			score: score,
			explanation: fmt.Sprintf("Amount %s %s matches with %d day(s) difference (window %d)",
				b.Amount.Value.String(), b.Currency, days, window),
			bank:     []*models.BankRecord{b},
			expected: []*models.ExpectedRecord{e},
		})
	}
}

// matchOneToMany looks for a unique subset of expected records inside the
// date window whose amounts add up to one bank record.
func (r *run) matchOneToMany() {
	cfg := r.engine.config
	for _, b := range r.bank {
		if !r.available(b) {
			continue
		}
		candidates := r.unconsumed(r.expected.GetInWindow(b.Currency, b.OperationDate.Value, cfg.DateWindowDays))
		if len(candidates) > cfg.SubsetCandidateCap {
			candidates = candidates[:cfg.SubsetCandidateCap]
		}
		if len(candidates) < 2 {
			continue
		}

		amounts := make([]decimal.Decimal, len(candidates))
		for i, e := range candidates {
			amounts[i] = e.Amount.Value
		}
		found := FindSubsets(amounts, b.Amount.Value, cfg.SubsetSolutionLimit)
		if !found.Unique() {
			if len(found.Solutions) > 1 {
				r.engine.log.WithFields(logger.Fields{
					"bank_id":   b.ID,
					"solutions": len(found.Solutions),
					"truncated": found.Truncated,
				}).Debug("Subset search is ambiguous, leaving record for review")
			}
			continue
		}

		chosen := make([]*models.ExpectedRecord, len(found.Solutions[0]))
		for i, idx := range found.Solutions[0] {
			chosen[i] = candidates[idx]
		}
		r.propose(&candidate{
			rule:  RuleOneToMany,
			score: ScoreOneToMany,
			explanation: fmt.Sprintf("%d expected records add up to bank amount %s %s within %d day(s)",
				len(chosen), b.Amount.Value.String(), b.Currency, cfg.DateWindowDays),
			bank:     []*models.BankRecord{b},
			expected: chosen,
		})
	}
}

// gate turns candidates into matches with their final state
func (r *run) gate() {
	for _, c := range r.candidates {
		decision := r.engine.applyGate(c)
		bankIDs := identity.SortedCopy(c.bankIDs())
		expIDs := identity.SortedCopy(c.expectedIDs())
		r.matches = append(r.matches, models.Match{
			ID:                identity.MatchID(r.runID, bankIDs, expIDs, c.rule, ""),
			State:             decision.state,
			Score:             c.score,
			Rule:              c.rule,
			Explanation:       decision.explain(c.explanation),
			BankIDs:           bankIDs,
			ExpectedIDs:       expIDs,
			ConfidenceBlocked: decision.blocked,
		})
	}
}

// residue reports every record that did not end up reconciled
func (r *run) residue() {
	bankMatch := make(map[string]*models.Match)
	expectedMatch := make(map[string]*models.Match)
	for i := range r.matches {
		m := &r.matches[i]
		for _, id := range m.BankIDs {
			bankMatch[id] = m
		}
		for _, id := range m.ExpectedIDs {
			expectedMatch[id] = m
		}
	}

	for _, b := range r.bank {
		m, ok := bankMatch[b.ID]
		switch {
		case ok && m.State == models.StateReconciled:
			continue
		case ok:
			r.emit(models.SeverityInfo, FindingTxHasMatch,
				fmt.Sprintf("bank record %s is in %s match %s awaiting review", b.ID, m.State, m.ID),
				models.EntityBank, b.ID, []string{b.ID},
				map[string]interface{}{"match_id": m.ID, "state": string(m.State)})
		default:
			r.emit(models.SeverityWarning, FindingPendingBank,
				fmt.Sprintf("bank record %s (%s %s on %s) has no match", b.ID,
					b.Amount.Value.String(), b.Currency, b.OperationDate.Value),
				models.EntityBank, b.ID, []string{b.ID},
				map[string]interface{}{
					"amount":         b.Amount.Value.String(),
					"currency":       b.Currency,
					"operation_date": b.OperationDate.Value.String(),
				})
		}
	}

	for _, e := range r.expected.All {
		m, ok := expectedMatch[e.ID]
		if ok && m.State == models.StateReconciled {
			continue
		}
		details := map[string]interface{}{
			"amount":   e.Amount.Value.String(),
			"currency": e.Currency,
			"date":     e.Date.Value.String(),
		}
		message := fmt.Sprintf("expected record %s (%s %s on %s) is not reconciled", e.ID,
			e.Amount.Value.String(), e.Currency, e.Date.Value)
		if ok {
			details["match_id"] = m.ID
			details["state"] = string(m.State)
		}
		r.emit(models.SeverityWarning, FindingPendingExpected, message,
			models.EntityExpected, e.ID, []string{e.ID}, details)
	}
}

// checkInvariants verifies exclusive membership and identifier uniqueness
func (r *run) checkInvariants() error {
	if err := models.CheckExclusiveMembership(r.matches); err != nil {
		return err
	}
	seen := make(map[string]bool, len(r.matches)+len(r.findings))
	for _, m := range r.matches {
		if seen[m.ID] {
			return fmt.Errorf("duplicate match id %s", m.ID)
		}
		seen[m.ID] = true
	}
	for _, f := range r.findings {
		if seen[f.ID] {
			return fmt.Errorf("duplicate finding id %s", f.ID)
		}
		seen[f.ID] = true
	}
	return nil
}

func expectedIDs(records []*models.ExpectedRecord) []string {
	ids := make([]string, len(records))
	for i, e := range records {
		ids[i] = e.ID
	}
	return ids
}
