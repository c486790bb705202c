package parsers

import (
	"fmt"

	"golang-bank-reconciliation/internal/audit"
	"golang-bank-reconciliation/pkg/errors"
)

// Limits bounds how much input a single file may carry
type Limits struct {
	MaxInputBytes int64 `json:"max_input_bytes" yaml:"max_input_bytes" mapstructure:"max_input_bytes"`
	MaxRows       int   `json:"max_rows" yaml:"max_rows" mapstructure:"max_rows"`
	MaxCells      int   `json:"max_cells" yaml:"max_cells" mapstructure:"max_cells"`
}

// Default ingestion limits
const (
	DefaultMaxInputBytes = 25_000_000
	DefaultMaxRows       = 200_000
	DefaultMaxCells      = 5_000_000
)

// DefaultLimits returns the limits applied when the client sets none
func DefaultLimits() Limits {
	return Limits{
		MaxInputBytes: DefaultMaxInputBytes,
		MaxRows:       DefaultMaxRows,
		MaxCells:      DefaultMaxCells,
	}
}

// Validate checks that every limit is positive
func (l Limits) Validate() error {
	if l.MaxInputBytes <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "ingestion_limits.max_input_bytes", l.MaxInputBytes,
			fmt.Errorf("must be positive"))
	}
	if l.MaxRows <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "ingestion_limits.max_rows", l.MaxRows,
			fmt.Errorf("must be positive"))
	}
	if l.MaxCells <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "ingestion_limits.max_cells", l.MaxCells,
			fmt.Errorf("must be positive"))
	}
	return nil
}

// limit identifies one bound for reporting
type limit struct {
	name    string
	cfgPath string
	cliFlag string
}

var (
	limitBytes = limit{name: "max_input_bytes", cfgPath: "ingestion_limits.max_input_bytes", cliFlag: "--max-input-bytes"}
	limitRows  = limit{name: "max_rows", cfgPath: "ingestion_limits.max_rows", cliFlag: "--max-rows"}
	limitCells = limit{name: "max_cells", cfgPath: "ingestion_limits.max_cells", cliFlag: "--max-cells"}
)

// exceeded records an ingestion_limit audit event and returns the ingestion
// error for the breach. The audit write is best effort.
func exceeded(recorder audit.Recorder, source string, l limit, value, max int64) error {
	if recorder != nil {
		_ = recorder.Record(audit.EventIngestionLimit, fmt.Sprintf("%s exceeded while reading %s", l.name, source),
			map[string]interface{}{
				"file":      source,
				"limit":     l.name,
				"value":     value,
				"max_value": max,
				"cfg_path":  l.cfgPath,
				"cli_flag":  l.cliFlag,
			})
	}
	return errors.IngestionError(errors.CodeLimitExceeded, source, 0,
		fmt.Sprintf("%s exceeded: %d > %d", l.name, value, max), nil).
		WithContext("limit", l.name).
		WithContext("value", value).
		WithContext("max_value", max).
		WithSuggestion(fmt.Sprintf("split the input or raise %s (%s)", l.cfgPath, l.cliFlag))
}
