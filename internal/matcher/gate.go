package matcher

import (
	"fmt"
	"strings"

	"golang-bank-reconciliation/internal/models"
)

// candidate is a match proposed by stages 1-3, before the gate decides its state
type candidate struct {
	rule        string
	score       float64
	explanation string
	bank        []*models.BankRecord
	expected    []*models.ExpectedRecord
}

func (c *candidate) bankIDs() []string {
	ids := make([]string, len(c.bank))
	for i, b := range c.bank {
		ids[i] = b.ID
	}
	return ids
}

func (c *candidate) expectedIDs() []string {
	ids := make([]string, len(c.expected))
	for i, e := range c.expected {
		ids[i] = e.ID
	}
	return ids
}

// gateDecision is the state assigned by the confidence gate
type gateDecision struct {
	state   models.MatchState
	blocked bool
	reasons []string
}

// applyGate decides the state of a candidate. Any blocking bank record or any
// participating field scored below the minimum forces pending.
func (me *MatchingEngine) applyGate(c *candidate) gateDecision {
	var reasons []string

	for _, b := range c.bank {
		if b.BlocksAutoReconcile {
			reasons = append(reasons, fmt.Sprintf("bank record %s blocks auto-reconcile: %s", b.ID, b.BlockReason))
		}
		for _, fs := range b.FieldScores() {
			if fs.Score < me.config.MinFieldConfidence {
				reasons = append(reasons, lowConfidenceReason("bank", b.ID, fs, me.config.MinFieldConfidence))
			}
		}
	}
	for _, e := range c.expected {
		for _, fs := range e.FieldScores() {
			if fs.Score < me.config.MinFieldConfidence {
				reasons = append(reasons, lowConfidenceReason("expected", e.ID, fs, me.config.MinFieldConfidence))
			}
		}
	}

	if len(reasons) > 0 {
		return gateDecision{state: models.StatePending, blocked: true, reasons: reasons}
	}
	if c.score >= me.config.AutoReconcileThreshold {
		return gateDecision{state: models.StateReconciled}
	}
	return gateDecision{state: models.StateSuggested}
}

func lowConfidenceReason(side, id string, fs models.FieldScore, min float64) string {
	return fmt.Sprintf("%s record %s field %s has confidence %.2f (%s) below %.2f",
		side, id, fs.Field, fs.Score, fs.Provenance, min)
}

// explain appends the gate's reasons to the candidate's explanation
func (d gateDecision) explain(base string) string {
	if !d.blocked {
		return base
	}
	return base + ". Blocked from auto-reconcile: " + strings.Join(d.reasons, "; ")
}
