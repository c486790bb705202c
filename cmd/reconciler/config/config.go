// Package config loads the per-client configuration file and turns it into
// the settings consumed by the reconciliation pipeline.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"golang-bank-reconciliation/internal/matcher"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/normalizer"
	"golang-bank-reconciliation/internal/parsers"
	"golang-bank-reconciliation/internal/reconciler"
	"golang-bank-reconciliation/internal/reporter"
	"golang-bank-reconciliation/pkg/errors"
)

// EnvPrefix namespaces environment overrides, e.g. RECONCILER_DATE_WINDOW_DAYS
const EnvPrefix = "RECONCILER"

// ClientConfig is the content of client_config.yaml (or .json)
type ClientConfig struct {
	Client                 string         `mapstructure:"client" yaml:"client"`
	DateWindowDays         int            `mapstructure:"date_window_days" yaml:"date_window_days"`
	AutoReconcileThreshold float64        `mapstructure:"auto_reconcile_threshold" yaml:"auto_reconcile_threshold"`
	MinFieldConfidence     float64        `mapstructure:"min_field_confidence" yaml:"min_field_confidence"`
	AllowOCR               bool           `mapstructure:"allow_ocr" yaml:"allow_ocr"`
	MaskByDefault          bool           `mapstructure:"mask_by_default" yaml:"mask_by_default"`
	DefaultCurrency        string         `mapstructure:"default_currency" yaml:"default_currency"`
	IngestionLimits        parsers.Limits `mapstructure:"ingestion_limits" yaml:"ingestion_limits"`
}

// Default returns the configuration used for keys a file leaves out
func Default(client string) *ClientConfig {
	matching := matcher.DefaultMatchingConfig()
	return &ClientConfig{
		Client:                 client,
		DateWindowDays:         matching.DateWindowDays,
		AutoReconcileThreshold: matching.AutoReconcileThreshold,
		MinFieldConfidence:     matching.MinFieldConfidence,
		AllowOCR:               false,
		MaskByDefault:          true,
		DefaultCurrency:        models.DefaultCurrency,
		IngestionLimits:        parsers.DefaultLimits(),
	}
}

func setDefaults(v *viper.Viper) {
	d := Default("")
	v.SetDefault("date_window_days", d.DateWindowDays)
	v.SetDefault("auto_reconcile_threshold", d.AutoReconcileThreshold)
	v.SetDefault("min_field_confidence", d.MinFieldConfidence)
	v.SetDefault("allow_ocr", d.AllowOCR)
	v.SetDefault("mask_by_default", d.MaskByDefault)
	v.SetDefault("default_currency", d.DefaultCurrency)
	v.SetDefault("ingestion_limits.max_input_bytes", d.IngestionLimits.MaxInputBytes)
	v.SetDefault("ingestion_limits.max_rows", d.IngestionLimits.MaxRows)
	v.SetDefault("ingestion_limits.max_cells", d.IngestionLimits.MaxCells)
}

// Load reads a YAML or JSON client configuration. Environment variables
// prefixed with RECONCILER_ override file values.
func Load(path string) (*ClientConfig, error) {
	var configType string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		configType = "yaml"
	case ".json":
		configType = "json"
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", path, nil).
			WithSuggestion("use a .yaml, .yml or .json client configuration file")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(configType)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var parseErr viper.ConfigParseError
		if stderrors.As(err, &parseErr) {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", path, err).
				WithSuggestion("the file is not valid " + strings.ToUpper(configType))
		}
		return nil, readError(path, err)
	}

	var cfg ClientConfig
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", path, err).
			WithSuggestion("remove unknown keys and check value types")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every setting and canonicalizes the default currency
func (c *ClientConfig) Validate() error {
	if strings.TrimSpace(c.Client) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "client", "", nil)
	}
	if err := c.MatchingConfig().Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "matching", c.MatchingConfig().String(), err)
	}
	currency, err := normalizer.NormalizeCurrency(c.DefaultCurrency)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidCurrency, "default_currency", c.DefaultCurrency, err)
	}
	c.DefaultCurrency = currency
	return c.IngestionLimits.Validate()
}

// MatchingConfig returns the engine settings of this client
func (c *ClientConfig) MatchingConfig() *matcher.MatchingConfig {
	config := matcher.DefaultMatchingConfig()
	config.DateWindowDays = c.DateWindowDays
	config.AutoReconcileThreshold = c.AutoReconcileThreshold
	config.MinFieldConfidence = c.MinFieldConfidence
	return config
}

// Overrides are command-line settings that take precedence over the file
type Overrides struct {
	EnableOCR     bool
	Mask          *bool
	MaxInputBytes int64
	MaxRows       int
	MaxCells      int
	DryRun        bool
}

// CreateRequest builds a pipeline request from the client configuration
// and the command-line overrides
func (c *ClientConfig) CreateRequest(configPath, bankPath, expectedPath, outDir string, o Overrides) *reconciler.Request {
	limits := c.IngestionLimits
	if o.MaxInputBytes > 0 {
		limits.MaxInputBytes = o.MaxInputBytes
	}
	if o.MaxRows > 0 {
		limits.MaxRows = o.MaxRows
	}
	if o.MaxCells > 0 {
		limits.MaxCells = o.MaxCells
	}

	mask := c.MaskByDefault
	if o.Mask != nil {
		mask = *o.Mask
	}

	return &reconciler.Request{
		ConfigPath:      configPath,
		BankPath:        bankPath,
		ExpectedPath:    expectedPath,
		OutDir:          outDir,
		Client:          c.Client,
		Matching:        c.MatchingConfig(),
		DefaultCurrency: c.DefaultCurrency,
		AllowOCR:        c.AllowOCR || o.EnableOCR,
		Limits:          limits,
		Mask:            mask,
		DryRun:          o.DryRun,
	}
}

// CreateReconcilerConfig creates the service configuration for this build
func CreateReconcilerConfig(softwareVersion string) *reconciler.Config {
	config := reconciler.DefaultConfig()
	config.SoftwareVersion = softwareVersion
	return config
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string, mask bool) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.Mask = mask

	switch reporter.OutputFormat(format) {
	case reporter.FormatConsole:
		config.Format = reporter.FormatConsole
	case reporter.FormatJSON:
		config.Format = reporter.FormatJSON
		config.IncludeMatches = true
		config.IncludeFindings = true
	case reporter.FormatCSV:
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
	default:
		return nil, errors.UserInputError(errors.CodeInvalidArgument,
			fmt.Sprintf("invalid output format %q: valid formats are console, json, csv", format), nil)
	}
	return config, nil
}

// Template renders a starter configuration for client
func Template(client string) ([]byte, error) {
	return yaml.Marshal(Default(client))
}

func readError(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return errors.IOError(errors.CodeFileNotFound, path, err)
	case os.IsPermission(err):
		return errors.IOError(errors.CodeFilePermission, path, err)
	default:
		return errors.IOError(errors.CodeReadFailed, path, err)
	}
}
