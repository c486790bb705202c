// Package identity derives the reproducible identifiers of a reconciliation
// run: the run ID from a fingerprint of its inputs, and match and finding IDs
// from their content. Nothing here depends on time or randomness.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"

	"golang-bank-reconciliation/internal/canonical"
)

const (
	// ModelVersion is the version of the internal record model
	ModelVersion = "2"

	// SchemaVersion is the semantic version of the run artifact contract
	SchemaVersion = "1.0.0"

	runIDLength   = 16
	childIDLength = 14

	MatchPrefix   = "M-"
	FindingPrefix = "H-"
)

// Fingerprint captures everything that determines the outcome of a run
type Fingerprint struct {
	ConfigHash      string `json:"config_hash"`
	BankHash        string `json:"bank_hash"`
	ExpectedHash    string `json:"expected_hash"`
	Mask            bool   `json:"mask"`
	OCRAllowed      bool   `json:"ocr_allowed"`
	ModelVersion    string `json:"model_version"`
	SoftwareVersion string `json:"software_version"`
}

// NewFingerprint fills in the model version
func NewFingerprint(configHash, bankHash, expectedHash string, mask, ocrAllowed bool, softwareVersion string) Fingerprint {
	return Fingerprint{
		ConfigHash:      configHash,
		BankHash:        bankHash,
		ExpectedHash:    expectedHash,
		Mask:            mask,
		OCRAllowed:      ocrAllowed,
		ModelVersion:    ModelVersion,
		SoftwareVersion: softwareVersion,
	}
}

// RunID returns the first 16 hex characters of the SHA-256 of the canonical fingerprint
func RunID(fp Fingerprint) (string, error) {
	sum, err := canonical.SHA256Hex(fp)
	if err != nil {
		return "", fmt.Errorf("hashing fingerprint: %w", err)
	}
	return sum[:runIDLength], nil
}

type matchKey struct {
	RunID       string   `json:"run_id"`
	BankIDs     []string `json:"bank_ids"`
	ExpectedIDs []string `json:"expected_ids"`
	Rule        string   `json:"rule"`
	Extra       string   `json:"extra"`
}

type findingKey struct {
	RunID string   `json:"run_id"`
	IDs   []string `json:"ids"`
	Type  string   `json:"type"`
	Extra string   `json:"extra"`
}

// MatchID derives a match identifier from its participants and rule.
// The participant lists are sorted before hashing.
func MatchID(runID string, bankIDs, expectedIDs []string, rule, extra string) string {
	return MatchPrefix + childHash(matchKey{
		RunID:       runID,
		BankIDs:     SortedCopy(bankIDs),
		ExpectedIDs: SortedCopy(expectedIDs),
		Rule:        rule,
		Extra:       extra,
	})
}

// FindingID derives a finding identifier from the IDs it refers to and its type
func FindingID(runID string, ids []string, findingType, extra string) string {
	return FindingPrefix + childHash(findingKey{
		RunID: runID,
		IDs:   SortedCopy(ids),
		Type:  findingType,
		Extra: extra,
	})
}

func childHash(key interface{}) string {
	sum, err := canonical.SHA256Hex(key)
	if err != nil {
		// keys are plain strings and string slices
		panic(fmt.Sprintf("identity: unencodable key: %v", err))
	}
	return sum[:childIDLength]
}

// SortedCopy returns a sorted copy of ids; a nil input gives an empty slice
func SortedCopy(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}

// HashFile returns the hex SHA-256 of a file's contents
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return HashReader(f)
}

// HashReader returns the hex SHA-256 of everything read from r
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the hex SHA-256 of data
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
