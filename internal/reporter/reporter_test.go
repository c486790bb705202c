package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
)

func bankRecord(id string, day int, amount string) models.BankRecord {
	return models.BankRecord{
		ID:            id,
		OperationDate: models.MustConfidenceField(models.NewDate(2024, 3, day), 0.95, models.ProvenanceCSV),
		Amount:        models.MustConfidenceField(decimal.RequireFromString(amount), 0.95, models.ProvenanceCSV),
		Currency:      "CLP",
		Description:   models.MustConfidenceField("Transferencia 12345678-9", 0.95, models.ProvenanceCSV),
		SourceFile:    "bank.csv",
		Provenance:    models.ProvenanceCSV,
	}
}

func createSampleResult() *models.Result {
	bank := []models.BankRecord{bankRecord("B1", 5, "1000"), bankRecord("B2", 6, "250.50"), bankRecord("B3", 7, "99")}
	matches := []models.Match{
		{
			ID: "M-1", State: models.StateReconciled, Score: 1.0, Rule: "exact_reference",
			Explanation: "Reference FAC-1 and amount match", BankIDs: []string{"B1"}, ExpectedIDs: []string{"E1"},
		},
		{
			ID: "M-2", State: models.StatePending, Score: 0.8, Rule: "amount_date", ConfidenceBlocked: true,
			Explanation: "Paid from account 00123456789012", BankIDs: []string{"B2"}, ExpectedIDs: []string{"E2"},
		},
	}
	findings := []models.Finding{
		{ID: "H-1", Severity: models.SeverityWarning, Type: "pending_bank", Message: "bank record B3 has no match",
			Entity: models.EntityBank, EntityID: "B3", Details: map[string]interface{}{}},
		{ID: "H-2", Severity: models.SeverityCritical, Type: "reference_matches_amount_differs",
			Message: "RUT 12345678-9 reference matches but amount differs",
			Entity:  models.EntityExpected, EntityID: "E9", Details: map[string]interface{}{}},
	}
	return models.NewResult("run-1", bank, nil, matches, findings)
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name    string
		config  *ReportConfig
		wantErr bool
	}{
		{"nil config uses defaults", nil, false},
		{"valid csv", &ReportConfig{Format: FormatCSV, CSVDelimiter: ';'}, false},
		{"invalid format", &ReportConfig{Format: "xml"}, true},
		{"csv without delimiter", &ReportConfig{Format: FormatCSV}, true},
		{"negative item cap", &ReportConfig{Format: FormatConsole, MaxConsoleItems: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReportGenerator(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewReportGenerator() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateReportNilResult(t *testing.T) {
	generator, err := NewReportGenerator(nil)
	require.NoError(t, err)
	assert.Error(t, generator.GenerateReport(nil, &bytes.Buffer{}))
}

func TestConsoleOutputSections(t *testing.T) {
	generator, err := NewReportGenerator(DefaultReportConfig())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, generator.GenerateReport(createSampleResult(), &buf))
	out := buf.String()

	for _, section := range []string{
		"RECONCILIATION REPORT", "Run: run-1", "=== SUMMARY ===", "=== MATCHES BY STATE ===",
		"=== FINDINGS BY SEVERITY ===", "=== MATCHES NEEDING REVIEW ===", "=== FINDINGS ===",
	} {
		assert.Contains(t, out, section)
	}
	assert.Contains(t, out, "Bank records:     3")
	assert.NotContains(t, out, "M-1 [reconciled]", "reconciled matches need no review")
	assert.Contains(t, out, "M-2 [pending]")
	assert.True(t, strings.Index(out, "H-2 [critical]") < strings.Index(out, "H-1 [warning]"),
		"critical findings are listed first")
	assert.NotContains(t, out, "12345678-9")
	assert.Contains(t, out, "**********9012")
}

func TestConsoleItemCap(t *testing.T) {
	config := DefaultReportConfig()
	config.MaxConsoleItems = 1
	generator, err := NewReportGenerator(config)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, generator.GenerateReport(createSampleResult(), &buf))
	assert.Contains(t, buf.String(), "... and 1 more")
}

func TestCSVFormatting(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	generator, err := NewReportGenerator(config)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, generator.GenerateReport(createSampleResult(), &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, CSVHeaders, rows[0])

	assert.Equal(t, []string{
		"match", "M-1", "reconciled", "exact_reference", "1.00", "false", "B1", "E1", "1000", "CLP", "2024-03-05",
		"Reference FAC-1 and amount match",
	}, rows[1])
	assert.Equal(t, "true", rows[2][5])
	assert.Equal(t, "250.5", rows[2][8])
	assert.Equal(t, "Paid from account **********9012", rows[2][11])

	assert.Equal(t, "finding", rows[3][0])
	assert.Equal(t, "B3", rows[3][6])
	assert.Equal(t, "E9", rows[4][7])
	assert.Equal(t, "RUT ***8-9 reference matches but amount differs", rows[4][11])
}

func TestCSVNeutralizesFormulas(t *testing.T) {
	bank := []models.BankRecord{bankRecord(`=HYPERLINK("http://x")`, 5, "-250")}
	matches := []models.Match{{
		ID: "M-1", State: models.StateSuggested, Score: 0.9, Rule: "amount_date",
		Explanation: "+cmd|' /C calc'!A0", BankIDs: []string{`=HYPERLINK("http://x")`}, ExpectedIDs: []string{"@SUM(1)"},
	}}
	findings := []models.Finding{{
		ID: "H-1", Severity: models.SeverityWarning, Type: "pending_expected", Message: "-2+3",
		Entity: models.EntityExpected, EntityID: "@SUM(1)", Details: map[string]interface{}{},
	}}
	result := models.NewResult("run-1", bank, nil, matches, findings)

	config := DefaultReportConfig()
	config.Format = FormatCSV
	generator, err := NewReportGenerator(config)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, generator.GenerateReport(result, &buf))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, `'=HYPERLINK("http://x")`, rows[1][6])
	assert.Equal(t, "'@SUM(1)", rows[1][7])
	assert.Equal(t, "-250", rows[1][8], "plain numbers stay numeric")
	assert.Equal(t, "'+cmd|' /C calc'!A0", rows[1][11])
	assert.Equal(t, "'@SUM(1)", rows[2][7])
	assert.Equal(t, "'-2+3", rows[2][11])

	for _, row := range rows[1:] {
		for _, cell := range row {
			if cell != "" && strings.ContainsRune("=+@", rune(cell[0])) {
				t.Errorf("cell %q would be evaluated as a formula", cell)
			}
		}
	}
}

func TestCSVWithoutMasking(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	config.Mask = false
	generator, err := NewReportGenerator(config)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, generator.GenerateReport(createSampleResult(), &buf))
	assert.Contains(t, buf.String(), "00123456789012")
}

func TestJSONReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	generator, err := NewReportGenerator(config)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, generator.GenerateReport(createSampleResult(), &buf))

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, "run-1", report["run_id"])
	assert.Equal(t, map[string]interface{}{"CLP": "1000"}, report["matched_totals"])
	assert.Len(t, report["matches"], 2)
	assert.Len(t, report["hallazgos"], 2)
	assert.NotContains(t, buf.String(), "12345678-9")
}

func TestEmptyResultHandling(t *testing.T) {
	empty := models.NewResult("run-0", nil, nil, nil, nil)
	for _, format := range []OutputFormat{FormatConsole, FormatJSON, FormatCSV} {
		t.Run(string(format), func(t *testing.T) {
			config := DefaultReportConfig()
			config.Format = format
			generator, err := NewReportGenerator(config)
			require.NoError(t, err)

			var buf bytes.Buffer
			assert.NoError(t, generator.GenerateReport(empty, &buf))
			assert.NotEmpty(t, buf.String())
		})
	}
}

func TestSafeReportGeneratorWriteFile(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	generator, err := NewSafeReportGenerator(config, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "out", "report.csv")
	require.NoError(t, generator.WriteFile(createSampleResult(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Kind,ID,"))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestNewSafeReportGeneratorInvalidConfig(t *testing.T) {
	_, err := NewSafeReportGenerator(&ReportConfig{Format: "pdf"}, nil)
	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryConfiguration, rerr.Category)
}

func TestAtomicWriteKeepsPreviousFileOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	err := AtomicWrite(path, func(io.Writer) error { return assert.AnError })
	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeWriteFailed, rerr.Code)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "old", string(data))
}
