// Package contract defines run.json, the versioned artifact a reconciliation
// run leaves behind for downstream consumers, and how it is encoded and
// validated.
package contract

import (
	"golang-bank-reconciliation/internal/canonical"
	"golang-bank-reconciliation/internal/identity"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
)

// FileName is the artifact's name inside a run directory
const FileName = "run.json"

// Payload is the content of run.json
type Payload struct {
	SchemaVersion string               `json:"schema_version"`
	RunID         string               `json:"run_id"`
	Fingerprint   identity.Fingerprint `json:"fingerprint"`
	Matches       []models.Match       `json:"matches"`
	Findings      []models.Finding     `json:"hallazgos"`
}

// BuildPayload assembles the artifact for a finished run
func BuildPayload(result *models.Result, fp identity.Fingerprint) *Payload {
	return &Payload{
		SchemaVersion: identity.SchemaVersion,
		RunID:         result.RunID(),
		Fingerprint:   fp,
		Matches:       result.Matches(),
		Findings:      result.Findings(),
	}
}

// Encode renders the payload as canonical JSON with a trailing newline
func Encode(p *Payload) ([]byte, error) {
	if p.Matches == nil {
		p.Matches = []models.Match{}
	}
	if p.Findings == nil {
		p.Findings = []models.Finding{}
	}
	data, err := canonical.MarshalLine(p)
	if err != nil {
		return nil, errors.ContractError(errors.CodeSchemaViolation, "", "run artifact could not be encoded", err)
	}
	return data, nil
}

// Decode parses data and validates it with v
func Decode(data []byte, v Validator) (*Payload, error) {
	return v.Validate(data)
}

// Lookup finds a match or finding by ID. The returned value is either a
// models.Match or a models.Finding.
func (p *Payload) Lookup(id string) (interface{}, bool) {
	for _, m := range p.Matches {
		if m.ID == id {
			return m.Clone(), true
		}
	}
	for _, f := range p.Findings {
		if f.ID == id {
			return f.Clone(), true
		}
	}
	return nil, false
}
