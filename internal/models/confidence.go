// Package models defines the record types exchanged between ingestion, the
// matching engine and the run artifact.
//
// Every semantically important field of a record is a ConfidenceField: the
// value together with a trust score in [0,1] and the provenance it was
// extracted from. The confidence level is always derived from the score.
package models

import (
	"encoding/json"
	"fmt"
)

// Provenance identifies the kind of source a value was extracted from
type Provenance string

const (
	ProvenanceXML     Provenance = "xml"
	ProvenanceCSV     Provenance = "csv"
	ProvenanceXLSX    Provenance = "xlsx"
	ProvenancePDFText Provenance = "pdf_text"
	ProvenancePDFOCR  Provenance = "pdf_ocr"
	ProvenanceManual  Provenance = "manual"
)

// String returns the string representation of Provenance
func (p Provenance) String() string {
	return string(p)
}

// IsValid checks if the provenance is one of the known sources
func (p Provenance) IsValid() bool {
	switch p {
	case ProvenanceXML, ProvenanceCSV, ProvenanceXLSX, ProvenancePDFText, ProvenancePDFOCR, ProvenanceManual:
		return true
	}
	return false
}

// ConfidenceLevel is the coarse bucket of a confidence score
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Level thresholds
const (
	HighConfidenceScore   = 0.85
	MediumConfidenceScore = 0.55
)

// LevelForScore maps a score to its confidence level
func LevelForScore(score float64) ConfidenceLevel {
	switch {
	case score >= HighConfidenceScore:
		return ConfidenceHigh
	case score >= MediumConfidenceScore:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ConfidenceField is a value together with how much it can be trusted
type ConfidenceField[T any] struct {
	Value      T
	Score      float64
	Provenance Provenance
	Note       string
}

// NewConfidenceField creates a ConfidenceField after checking score and provenance
func NewConfidenceField[T any](value T, score float64, provenance Provenance, note string) (ConfidenceField[T], error) {
	f := ConfidenceField[T]{Value: value, Score: score, Provenance: provenance, Note: note}
	if err := f.Validate(); err != nil {
		return ConfidenceField[T]{}, err
	}
	return f, nil
}

// MustConfidenceField is NewConfidenceField for values known to be valid.
// It panics on invalid input.
func MustConfidenceField[T any](value T, score float64, provenance Provenance) ConfidenceField[T] {
	f, err := NewConfidenceField(value, score, provenance, "")
	if err != nil {
		panic(err)
	}
	return f
}

// Level returns the confidence level derived from the score
func (f ConfidenceField[T]) Level() ConfidenceLevel {
	return LevelForScore(f.Score)
}

// Validate checks the score range and provenance
func (f ConfidenceField[T]) Validate() error {
	if f.Score < 0 || f.Score > 1 || f.Score != f.Score {
		return fmt.Errorf("confidence score %v out of range [0,1]", f.Score)
	}
	if !f.Provenance.IsValid() {
		return fmt.Errorf("invalid provenance: %s", f.Provenance)
	}
	return nil
}

// MarshalJSON writes the field with its derived level
func (f ConfidenceField[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Value      T               `json:"value"`
		Score      float64         `json:"score"`
		Level      ConfidenceLevel `json:"level"`
		Provenance Provenance      `json:"provenance"`
		Note       string          `json:"note,omitempty"`
	}{
		Value:      f.Value,
		Score:      f.Score,
		Level:      f.Level(),
		Provenance: f.Provenance,
		Note:       f.Note,
	})
}

// UnmarshalJSON reads a field; a serialized level is ignored and re-derived
func (f *ConfidenceField[T]) UnmarshalJSON(data []byte) error {
	aux := struct {
		Value      T          `json:"value"`
		Score      float64    `json:"score"`
		Provenance Provenance `json:"provenance"`
		Note       string     `json:"note"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	parsed, err := NewConfidenceField(aux.Value, aux.Score, aux.Provenance, aux.Note)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// FieldScore names one confidence-bearing field of a record
type FieldScore struct {
	Field      string
	Score      float64
	Provenance Provenance
}
