package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"golang-bank-reconciliation/internal/parsers"
	"golang-bank-reconciliation/internal/reporter"
	"golang-bank-reconciliation/pkg/errors"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func expectCode(t *testing.T, err error, category errors.ErrorCategory, code errors.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s/%s error, got nil", category, code)
	}
	rerr, ok := errors.AsReconcilerError(err)
	if !ok {
		t.Fatalf("expected ReconcilerError, got %T: %v", err, err)
	}
	if rerr.Category != category || rerr.Code != code {
		t.Errorf("expected %s/%s, got %s/%s: %v", category, code, rerr.Category, rerr.Code, err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "client_config.yaml", "client: acme\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(cfg, Default("acme")) {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if cfg.DateWindowDays != 3 || cfg.AutoReconcileThreshold != 0.85 || cfg.MinFieldConfidence != 0.80 {
		t.Errorf("unexpected matching defaults: %+v", cfg)
	}
	if cfg.AllowOCR || !cfg.MaskByDefault || cfg.DefaultCurrency != "CLP" {
		t.Errorf("unexpected flag defaults: %+v", cfg)
	}
	if cfg.IngestionLimits != parsers.DefaultLimits() {
		t.Errorf("unexpected limit defaults: %+v", cfg.IngestionLimits)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "client_config.json", `{
		"client": "acme",
		"date_window_days": 5,
		"auto_reconcile_threshold": 0.9,
		"allow_ocr": true,
		"mask_by_default": false,
		"default_currency": "usd",
		"ingestion_limits": {"max_rows": 10}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DateWindowDays != 5 || cfg.AutoReconcileThreshold != 0.9 {
		t.Errorf("matching values not loaded: %+v", cfg)
	}
	if !cfg.AllowOCR || cfg.MaskByDefault {
		t.Errorf("flags not loaded: %+v", cfg)
	}
	if cfg.DefaultCurrency != "USD" {
		t.Errorf("expected canonical currency USD, got %q", cfg.DefaultCurrency)
	}
	if cfg.IngestionLimits.MaxRows != 10 || cfg.IngestionLimits.MaxCells != parsers.DefaultMaxCells {
		t.Errorf("limits not merged with defaults: %+v", cfg.IngestionLimits)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("RECONCILER_DATE_WINDOW_DAYS", "7")
	t.Setenv("RECONCILER_INGESTION_LIMITS_MAX_ROWS", "42")

	cfg, err := Load(writeConfig(t, "client_config.yaml", "client: acme\ndate_window_days: 2\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DateWindowDays != 7 {
		t.Errorf("expected env override 7, got %d", cfg.DateWindowDays)
	}
	if cfg.IngestionLimits.MaxRows != 42 {
		t.Errorf("expected env override 42, got %d", cfg.IngestionLimits.MaxRows)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		category errors.ErrorCategory
		code     errors.ErrorCode
	}{
		{"missing client", "c.yaml", "date_window_days: 3\n", errors.CategoryConfiguration, errors.CodeMissingConfig},
		{"blank client", "c.yaml", "client: '  '\n", errors.CategoryConfiguration, errors.CodeMissingConfig},
		{"invalid currency", "c.yaml", "client: acme\ndefault_currency: PESO\n", errors.CategoryConfiguration, errors.CodeInvalidCurrency},
		{"negative window", "c.yaml", "client: acme\ndate_window_days: -1\n", errors.CategoryConfiguration, errors.CodeInvalidConfig},
		{"threshold above one", "c.yaml", "client: acme\nauto_reconcile_threshold: 1.5\n", errors.CategoryConfiguration, errors.CodeInvalidConfig},
		{"zero row limit", "c.yaml", "client: acme\ningestion_limits:\n  max_rows: 0\n", errors.CategoryConfiguration, errors.CodeInvalidConfig},
		{"unknown key", "c.yaml", "client: acme\nwindow: 3\n", errors.CategoryConfiguration, errors.CodeInvalidConfig},
		{"malformed yaml", "c.yaml", "client: [acme\n", errors.CategoryConfiguration, errors.CodeInvalidConfig},
		{"malformed json", "c.json", "{\"client\": ", errors.CategoryConfiguration, errors.CodeInvalidConfig},
		{"unsupported extension", "c.toml", "client = 'acme'\n", errors.CategoryConfiguration, errors.CodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			expectCode(t, err, tt.category, tt.code)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		expectCode(t, err, errors.CategoryIO, errors.CodeFileNotFound)
	})
}

func TestTemplateLoadsAsDefaults(t *testing.T) {
	data, err := Template("acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := Load(writeConfig(t, "client_config.yaml", string(data)))
	if err != nil {
		t.Fatalf("template does not load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default("acme")) {
		t.Errorf("template differs from defaults: %+v", cfg)
	}
}

func TestCreateRequest(t *testing.T) {
	cfg := Default("acme")
	cfg.AllowOCR = false

	req := cfg.CreateRequest("c.yaml", "b.csv", "e.csv", "out", Overrides{})
	if !req.Mask || req.AllowOCR || req.DryRun {
		t.Errorf("unexpected defaults: %+v", req)
	}
	if req.Limits != parsers.DefaultLimits() {
		t.Errorf("unexpected limits: %+v", req.Limits)
	}
	if req.Matching.DateWindowDays != 3 {
		t.Errorf("unexpected matching config: %s", req.Matching)
	}

	noMask := false
	req = cfg.CreateRequest("c.yaml", "b.csv", "e.csv", "out", Overrides{
		EnableOCR: true,
		Mask:      &noMask,
		MaxRows:   5,
		DryRun:    true,
	})
	if req.Mask || !req.AllowOCR || !req.DryRun {
		t.Errorf("overrides not applied: %+v", req)
	}
	if req.Limits.MaxRows != 5 || req.Limits.MaxCells != parsers.DefaultMaxCells {
		t.Errorf("unexpected limits: %+v", req.Limits)
	}
	if err := req.Validate(true); err != nil {
		t.Errorf("request should be valid: %v", err)
	}
}

func TestCreateReportConfig(t *testing.T) {
	tests := []struct {
		format  string
		want    reporter.OutputFormat
		wantErr bool
	}{
		{"console", reporter.FormatConsole, false},
		{"json", reporter.FormatJSON, false},
		{"csv", reporter.FormatCSV, false},
		{"xlsx", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			config, err := CreateReportConfig(tt.format, false)
			if tt.wantErr {
				expectCode(t, err, errors.CategoryUserInput, errors.CodeInvalidArgument)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if config.Format != tt.want || config.Mask {
				t.Errorf("unexpected config: %+v", config)
			}
			if err := config.Validate(); err != nil {
				t.Errorf("config should be valid: %v", err)
			}
		})
	}
}

func TestCreateReconcilerConfig(t *testing.T) {
	config := CreateReconcilerConfig("1.2.3")
	if config.SoftwareVersion != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %s", config.SoftwareVersion)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("config should be valid: %v", err)
	}
}
