// Package reporter renders the decisions of a reconciliation run for people.
//
// Reports are a presentation of a finished models.Result; run.json stays the
// authoritative artifact. Free text that may carry account numbers or RUTs
// is masked when the report configuration asks for it.
//
// Supported output formats:
//   - Console: summary tables for terminal display
//   - JSON: summary, matches and findings for programmatic consumption
//   - CSV: one row per match and per finding, for spreadsheet review
//
// Example usage:
//
//	config := reporter.DefaultReportConfig()
//	config.Format = reporter.FormatCSV
//	generator, err := reporter.NewReportGenerator(config)
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"golang-bank-reconciliation/internal/masking"
	"golang-bank-reconciliation/internal/models"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Mask hides RUTs and account numbers in free text
	Mask bool `json:"mask"`

	IncludeMatches  bool `json:"include_matches"`
	IncludeFindings bool `json:"include_findings"`

	// MaxConsoleItems caps each console list; 0 means no cap
	MaxConsoleItems int `json:"max_console_items"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:          FormatConsole,
		Mask:            true,
		IncludeMatches:  true,
		IncludeFindings: true,
		MaxConsoleItems: 20,
		CSVDelimiter:    ',',
		CSVHeaders:      true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxConsoleItems < 0 {
		return fmt.Errorf("max console items cannot be negative, got %d", c.MaxConsoleItems)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
	masker masking.Masker
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
		masker: masking.Masker{Enabled: config.Mask},
	}, nil
}

// GetConfiguration returns a copy of the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	c := *rg.config
	return &c
}

// GenerateReport writes a report of result to writer
func (rg *ReportGenerator) GenerateReport(result *models.Result, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *models.Result, writer io.Writer) error {
	summary := result.Summary()

	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Run: %s\n\n", result.RunID())

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummaryTable(summary, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== MATCHES BY STATE ===\n")
	rg.printStateTable(summary, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== FINDINGS BY SEVERITY ===\n")
	rg.printSeverityTable(summary, writer)

	if rg.config.IncludeMatches {
		review := make([]models.Match, 0)
		for _, m := range result.Matches() {
			if m.State != models.StateReconciled {
				review = append(review, m)
			}
		}
		if len(review) > 0 {
			fmt.Fprintf(writer, "\n=== MATCHES NEEDING REVIEW ===\n")
			rg.printMatchList(review, writer)
		}
	}

	if rg.config.IncludeFindings {
		findings := result.Findings()
		sort.SliceStable(findings, func(i, j int) bool {
			return severityRank(findings[i].Severity) > severityRank(findings[j].Severity)
		})
		if len(findings) > 0 {
			fmt.Fprintf(writer, "\n=== FINDINGS ===\n")
			rg.printFindingList(findings, writer)
		}
	}
	return nil
}

// jsonReport is the shape of the JSON report
type jsonReport struct {
	RunID    string            `json:"run_id"`
	Summary  models.Summary    `json:"summary"`
	Totals   map[string]string `json:"matched_totals"`
	Matches  []models.Match    `json:"matches,omitempty"`
	Findings []models.Finding  `json:"hallazgos,omitempty"`
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(result *models.Result, writer io.Writer) error {
	report := jsonReport{
		RunID:   result.RunID(),
		Summary: result.Summary(),
		Totals:  make(map[string]string),
	}
	for currency, total := range matchedTotals(result) {
		report.Totals[currency] = total.String()
	}
	if rg.config.IncludeMatches {
		report.Matches = result.Matches()
		for i := range report.Matches {
			report.Matches[i].Explanation = rg.masker.Text(report.Matches[i].Explanation)
		}
	}
	if rg.config.IncludeFindings {
		report.Findings = result.Findings()
		for i := range report.Findings {
			report.Findings[i].Message = rg.masker.Text(report.Findings[i].Message)
		}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// CSVHeaders are the columns of the CSV report
var CSVHeaders = []string{
	"Kind",
	"ID",
	"State_Or_Severity",
	"Rule_Or_Type",
	"Score",
	"Confidence_Blocked",
	"Bank_IDs",
	"Expected_IDs",
	"Amount",
	"Currency",
	"Date",
	"Text",
}

// generateCSVReport writes one row per match and one per finding
func (rg *ReportGenerator) generateCSVReport(result *models.Result, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(CSVHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	bank := make(map[string]models.BankRecord)
	for _, b := range result.BankRecords() {
		bank[b.ID] = b
	}

	if rg.config.IncludeMatches {
		for _, m := range result.Matches() {
			amount, currency, date := matchedBankSide(m, bank)
			record := []string{
				"match",
				m.ID,
				string(m.State),
				m.Rule,
				fmt.Sprintf("%.2f", m.Score),
				fmt.Sprintf("%t", m.ConfidenceBlocked),
				strings.Join(m.BankIDs, " "),
				strings.Join(m.ExpectedIDs, " "),
				amount,
				currency,
				date,
				rg.masker.Text(m.Explanation),
			}
			if err := csvWriter.Write(spreadsheetSafe(record)); err != nil {
				return fmt.Errorf("failed to write match record: %w", err)
			}
		}
	}

	if rg.config.IncludeFindings {
		for _, f := range result.Findings() {
			record := []string{
				"finding",
				f.ID,
				string(f.Severity),
				f.Type,
				"",
				"",
				idsFor(f, models.EntityBank),
				idsFor(f, models.EntityExpected),
				"",
				"",
				"",
				rg.masker.Text(f.Message),
			}
			if err := csvWriter.Write(spreadsheetSafe(record)); err != nil {
				return fmt.Errorf("failed to write finding record: %w", err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// spreadsheetSafe neutralizes cells a spreadsheet would evaluate as a
// formula by prefixing them with an apostrophe. Plain numbers such as
// negative amounts are left alone.
func spreadsheetSafe(record []string) []string {
	out := make([]string, len(record))
	for i, cell := range record {
		out[i] = cell
		if cell == "" || !strings.ContainsRune("=+-@\t\r", rune(cell[0])) {
			continue
		}
		if _, err := decimal.NewFromString(cell); err == nil {
			continue
		}
		out[i] = "'" + cell
	}
	return out
}

// matchedBankSide sums the bank amounts of a match and returns the earliest date
func matchedBankSide(m models.Match, bank map[string]models.BankRecord) (string, string, string) {
	total := decimal.Zero
	var currency string
	var earliest models.Date
	for _, id := range m.BankIDs {
		b, ok := bank[id]
		if !ok {
			return "", "", ""
		}
		total = total.Add(b.Amount.Value)
		currency = b.Currency
		if earliest.IsZero() || b.OperationDate.Value.Compare(earliest) < 0 {
			earliest = b.OperationDate.Value
		}
	}
	return total.String(), currency, earliest.String()
}

func idsFor(f models.Finding, entity models.Entity) string {
	if f.Entity != entity {
		return ""
	}
	return f.EntityID
}

// matchedTotals sums the bank amounts taking part in reconciled matches, per currency
func matchedTotals(result *models.Result) map[string]decimal.Decimal {
	bank := make(map[string]models.BankRecord)
	for _, b := range result.BankRecords() {
		bank[b.ID] = b
	}
	totals := make(map[string]decimal.Decimal)
	for _, m := range result.Matches() {
		if m.State != models.StateReconciled {
			continue
		}
		for _, id := range m.BankIDs {
			if b, ok := bank[id]; ok {
				totals[b.Currency] = totals[b.Currency].Add(b.Amount.Value)
			}
		}
	}
	return totals
}

func severityRank(s models.Severity) int {
	switch s {
	case models.SeverityCritical:
		return 2
	case models.SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummaryTable(summary models.Summary, writer io.Writer) {
	matched := 0
	for _, n := range summary.MatchesByState {
		matched += n
	}
	fmt.Fprintf(writer, "Bank records:     %d\n", summary.BankRecords)
	fmt.Fprintf(writer, "Expected records: %d\n", summary.ExpectedRecords)
	fmt.Fprintf(writer, "Matches:          %d\n", matched)
	fmt.Fprintf(writer, "  Reconciled:     %d (%.1f%%)\n",
		summary.MatchesByState[models.StateReconciled],
		calculatePercentage(summary.MatchesByState[models.StateReconciled], matched))
	fmt.Fprintf(writer, "  Blocked:        %d\n", summary.BlockedMatches)
}

func (rg *ReportGenerator) printStateTable(summary models.Summary, writer io.Writer) {
	for _, state := range []models.MatchState{
		models.StateReconciled, models.StateSuggested, models.StatePending, models.StateRejected,
	} {
		fmt.Fprintf(writer, "%-12s %d\n", state+":", summary.MatchesByState[state])
	}
}

func (rg *ReportGenerator) printSeverityTable(summary models.Summary, writer io.Writer) {
	for _, sev := range []models.Severity{models.SeverityCritical, models.SeverityWarning, models.SeverityInfo} {
		fmt.Fprintf(writer, "%-12s %d\n", sev+":", summary.FindingsBySev[sev])
	}
}

func (rg *ReportGenerator) printMatchList(matches []models.Match, writer io.Writer) {
	for i, m := range matches {
		if rg.config.MaxConsoleItems > 0 && i >= rg.config.MaxConsoleItems {
			fmt.Fprintf(writer, "  ... and %d more\n", len(matches)-i)
			return
		}
		fmt.Fprintf(writer, "  %s [%s] %s score=%.2f bank=%s expected=%s\n",
			m.ID, m.State, m.Rule, m.Score, strings.Join(m.BankIDs, ","), strings.Join(m.ExpectedIDs, ","))
		fmt.Fprintf(writer, "    %s\n", rg.masker.Text(m.Explanation))
	}
}

func (rg *ReportGenerator) printFindingList(findings []models.Finding, writer io.Writer) {
	for i, f := range findings {
		if rg.config.MaxConsoleItems > 0 && i >= rg.config.MaxConsoleItems {
			fmt.Fprintf(writer, "  ... and %d more\n", len(findings)-i)
			return
		}
		fmt.Fprintf(writer, "  %s [%s] %s: %s\n", f.ID, f.Severity, f.Type, rg.masker.Text(f.Message))
	}
}

func calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
