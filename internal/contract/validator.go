package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"golang-bank-reconciliation/internal/identity"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
)

// Validator decodes and checks a run artifact. Every failure is a
// *errors.ReconcilerError in the contract category.
type Validator interface {
	Validate(data []byte) (*Payload, error)
	Name() string
}

// ProducerValidator is the strict check applied before an artifact is written.
// Unknown fields, a different schema version, unknown enum values and records
// shared between matches are all rejected.
type ProducerValidator struct{}

// ConsumerValidator is the forward-compatible check for readers of an
// artifact. Unknown fields are ignored; the schema's major version must equal
// AcceptMajor.
type ConsumerValidator struct {
	AcceptMajor int
}

var (
	_ Validator = ProducerValidator{}
	_ Validator = ConsumerValidator{}
)

// NewConsumerValidator accepts artifacts sharing this build's major version
func NewConsumerValidator() ConsumerValidator {
	major, _, _, err := ParseSemver(identity.SchemaVersion)
	if err != nil {
		panic(fmt.Sprintf("contract: invalid built-in schema version %q", identity.SchemaVersion))
	}
	return ConsumerValidator{AcceptMajor: major}
}

// Name implements Validator
func (ProducerValidator) Name() string { return "producer" }

// Name implements Validator
func (ConsumerValidator) Name() string { return "consumer" }

// Validate implements Validator
func (ProducerValidator) Validate(data []byte) (*Payload, error) {
	w, err := decodeWire(data, true)
	if err != nil {
		return nil, err
	}

	if w.SchemaVersion == nil || *w.SchemaVersion == "" {
		return nil, missing("schema_version")
	}
	if *w.SchemaVersion != identity.SchemaVersion {
		return nil, errors.ContractError(errors.CodeVersionMismatch, "schema_version",
			fmt.Sprintf("unexpected schema_version %q, want %q", *w.SchemaVersion, identity.SchemaVersion), nil)
	}
	if _, _, _, err := ParseSemver(*w.SchemaVersion); err != nil {
		return nil, errors.ContractError(errors.CodeVersionMismatch, "schema_version", err.Error(), err)
	}

	p, err := w.toPayload(true)
	if err != nil {
		return nil, err
	}
	if err := models.CheckExclusiveMembership(p.Matches); err != nil {
		return nil, errors.ContractError(errors.CodeSchemaViolation, "matches", "record shared between matches", err)
	}
	return p, nil
}

// Validate implements Validator
func (c ConsumerValidator) Validate(data []byte) (*Payload, error) {
	w, err := decodeWire(data, false)
	if err != nil {
		return nil, err
	}

	if w.SchemaVersion == nil || *w.SchemaVersion == "" {
		return nil, missing("schema_version")
	}
	major, _, _, err := ParseSemver(*w.SchemaVersion)
	if err != nil {
		return nil, errors.ContractError(errors.CodeVersionMismatch, "schema_version", err.Error(), err)
	}
	if major != c.AcceptMajor {
		return nil, errors.ContractError(errors.CodeVersionMismatch, "schema_version",
			fmt.Sprintf("incompatible schema_version %q: major %d, accepted %d", *w.SchemaVersion, major, c.AcceptMajor), nil).
			WithContext("accepted_major", c.AcceptMajor)
	}

	return w.toPayload(false)
}

var semverPattern = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)$`)

// ParseSemver splits a strict X.Y.Z version
func ParseSemver(v string) (major, minor, patch int, err error) {
	m := semverPattern.FindStringSubmatch(v)
	if m == nil {
		return 0, 0, 0, fmt.Errorf("schema_version %q is not X.Y.Z", v)
	}
	parts := make([]int, 3)
	for i := range parts {
		if parts[i], err = strconv.Atoi(m[i+1]); err != nil {
			return 0, 0, 0, fmt.Errorf("schema_version %q: %w", v, err)
		}
	}
	return parts[0], parts[1], parts[2], nil
}

// wire types mirror Payload with pointers so absence can be told from zero

type wirePayload struct {
	SchemaVersion *string          `json:"schema_version"`
	RunID         *string          `json:"run_id"`
	Fingerprint   *wireFingerprint `json:"fingerprint"`
	Matches       *[]wireMatch     `json:"matches"`
	Findings      *[]wireFinding   `json:"hallazgos"`
}

type wireFingerprint struct {
	ConfigHash      *string `json:"config_hash"`
	BankHash        *string `json:"bank_hash"`
	ExpectedHash    *string `json:"expected_hash"`
	Mask            *bool   `json:"mask"`
	OCRAllowed      *bool   `json:"ocr_allowed"`
	ModelVersion    *string `json:"model_version"`
	SoftwareVersion *string `json:"software_version"`
}

type wireMatch struct {
	ID                *string  `json:"id"`
	State             *string  `json:"state"`
	Score             *float64 `json:"score"`
	Rule              *string  `json:"rule"`
	Explanation       *string  `json:"explanation"`
	BankIDs           []string `json:"bank_ids"`
	ExpectedIDs       []string `json:"expected_ids"`
	ConfidenceBlocked *bool    `json:"confidence_blocked"`
}

type wireFinding struct {
	ID       *string                `json:"id"`
	Severity *string                `json:"severity"`
	Type     *string                `json:"type"`
	Message  *string                `json:"message"`
	Entity   *string                `json:"entity"`
	EntityID *string                `json:"entity_id"`
	Details  map[string]interface{} `json:"details"`
}

func decodeWire(data []byte, strict bool) (*wirePayload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if strict {
		dec.DisallowUnknownFields()
	}

	var w wirePayload
	if err := dec.Decode(&w); err != nil {
		if _, ok := err.(*json.SyntaxError); ok || err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.ContractError(errors.CodeMalformedJSON, "", "run artifact is not valid JSON", err)
		}
		return nil, errors.ContractError(errors.CodeSchemaViolation, "", err.Error(), err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.ContractError(errors.CodeMalformedJSON, "", "trailing data after run artifact", nil)
	}
	return &w, nil
}

func missing(path string) error {
	return errors.ContractError(errors.CodeSchemaViolation, path, fmt.Sprintf("%s is required", path), nil)
}

func violation(path, format string, args ...interface{}) error {
	return errors.ContractError(errors.CodeSchemaViolation, path, path+": "+fmt.Sprintf(format, args...), nil)
}

func requireString(path string, s *string) (string, error) {
	if s == nil || *s == "" {
		return "", missing(path)
	}
	return *s, nil
}

func (w *wirePayload) toPayload(strict bool) (*Payload, error) {
	p := &Payload{SchemaVersion: *w.SchemaVersion}

	var err error
	if p.RunID, err = requireString("run_id", w.RunID); err != nil {
		return nil, err
	}
	if w.Fingerprint == nil {
		return nil, missing("fingerprint")
	}
	if p.Fingerprint, err = w.Fingerprint.toFingerprint(); err != nil {
		return nil, err
	}
	if w.Matches == nil {
		return nil, missing("matches")
	}
	if w.Findings == nil {
		return nil, missing("hallazgos")
	}

	p.Matches = make([]models.Match, len(*w.Matches))
	for i, wm := range *w.Matches {
		if p.Matches[i], err = wm.toMatch(fmt.Sprintf("matches[%d]", i), strict); err != nil {
			return nil, err
		}
	}
	p.Findings = make([]models.Finding, len(*w.Findings))
	for i, wf := range *w.Findings {
		if p.Findings[i], err = wf.toFinding(fmt.Sprintf("hallazgos[%d]", i), strict); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (w *wireFingerprint) toFingerprint() (identity.Fingerprint, error) {
	var fp identity.Fingerprint
	var err error
	fields := []struct {
		path string
		src  *string
		dst  *string
	}{
		{"fingerprint.config_hash", w.ConfigHash, &fp.ConfigHash},
		{"fingerprint.bank_hash", w.BankHash, &fp.BankHash},
		{"fingerprint.expected_hash", w.ExpectedHash, &fp.ExpectedHash},
		{"fingerprint.model_version", w.ModelVersion, &fp.ModelVersion},
		{"fingerprint.software_version", w.SoftwareVersion, &fp.SoftwareVersion},
	}
	for _, f := range fields {
		if *f.dst, err = requireString(f.path, f.src); err != nil {
			return fp, err
		}
	}
	if w.Mask == nil {
		return fp, missing("fingerprint.mask")
	}
	if w.OCRAllowed == nil {
		return fp, missing("fingerprint.ocr_allowed")
	}
	fp.Mask = *w.Mask
	fp.OCRAllowed = *w.OCRAllowed
	return fp, nil
}

func (w wireMatch) toMatch(path string, strict bool) (models.Match, error) {
	var m models.Match
	var err error
	if m.ID, err = requireString(path+".id", w.ID); err != nil {
		return m, err
	}
	state, err := requireString(path+".state", w.State)
	if err != nil {
		return m, err
	}
	m.State = models.MatchState(state)
	if m.Rule, err = requireString(path+".rule", w.Rule); err != nil {
		return m, err
	}
	if m.Explanation, err = requireString(path+".explanation", w.Explanation); err != nil {
		return m, err
	}
	if w.Score == nil {
		return m, missing(path + ".score")
	}
	m.Score = *w.Score
	if len(w.BankIDs) == 0 {
		return m, violation(path+".bank_ids", "at least one id is required")
	}
	if len(w.ExpectedIDs) == 0 {
		return m, violation(path+".expected_ids", "at least one id is required")
	}
	m.BankIDs = w.BankIDs
	m.ExpectedIDs = w.ExpectedIDs

	switch {
	case w.ConfidenceBlocked != nil:
		m.ConfidenceBlocked = *w.ConfidenceBlocked
	case !strict:
		return m, missing(path + ".confidence_blocked")
	}

	if strict {
		if !m.State.IsValid() {
			return m, violation(path+".state", "unknown state %q", state)
		}
		if m.Score < 0 || m.Score > 1 {
			return m, violation(path+".score", "%v is outside [0,1]", m.Score)
		}
	}
	return m, nil
}

func (w wireFinding) toFinding(path string, strict bool) (models.Finding, error) {
	var f models.Finding
	var err error
	if f.ID, err = requireString(path+".id", w.ID); err != nil {
		return f, err
	}
	severity, err := requireString(path+".severity", w.Severity)
	if err != nil {
		return f, err
	}
	f.Severity = models.Severity(severity)
	if f.Type, err = requireString(path+".type", w.Type); err != nil {
		return f, err
	}
	if f.Message, err = requireString(path+".message", w.Message); err != nil {
		return f, err
	}
	entity, err := requireString(path+".entity", w.Entity)
	if err != nil {
		return f, err
	}
	f.Entity = models.Entity(entity)
	if !f.Entity.IsValid() {
		return f, violation(path+".entity", "unknown entity %q", entity)
	}
	if w.EntityID != nil {
		f.EntityID = *w.EntityID
	}

	switch {
	case w.Details != nil:
		f.Details = w.Details
	case strict:
		f.Details = map[string]interface{}{}
	default:
		return f, missing(path + ".details")
	}

	if strict && !f.Severity.IsValid() {
		return f, violation(path+".severity", "unknown severity %q", severity)
	}
	return f, nil
}
