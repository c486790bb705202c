package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-bank-reconciliation/internal/identity"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// app holds the state shared by every command of one invocation
type app struct {
	v      *viper.Viper
	stderr io.Writer
}

// NewRootCommand creates the root CLI command with all subcommands registered
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Bank reconciliation decision engine",
		Long: `Reconciler matches the transactions a bank reports against the movements a
client expects, and writes deterministic, auditable decisions: which records
correspond, which need review and which could not be decided.

Examples:
  reconciler init --out-dir ./acme --client acme
  reconciler validate --config client_config.yaml --bank bank.csv --expected expected.csv
  reconciler run --config client_config.yaml --bank bank.csv --expected expected.csv --out ./runs/2024-03
  reconciler explain --run-dir ./runs/2024-03 M-0123456789abcd`,
		Version:       getVersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.UserInputError(errors.CodeInvalidArgument, err.Error(), err)
	})

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.String("config-file", "", "CLI settings file (optional)")
	flags.Bool("debug", false, "debug logging and stack traces on errors")
	flags.String("log-level", string(logger.WarnLevel), "log level: debug, info, warn, error")
	flags.String("log-format", string(logger.TextFormat), "log format: text, json")

	for _, name := range []string{"config-file", "debug", "log-level", "log-format"} {
		a.v.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(
		newInitCommand(),
		newValidateCommand(a),
		newRunCommand(a),
		newExplainCommand(),
		newVersionCommand(),
	)
	return rootCmd
}

// initConfig reads in the settings file and ENV variables, then sets up logging
func (a *app) initConfig() error {
	a.v.SetEnvPrefix("RECONCILER")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if cfgFile := a.v.GetString("config-file"); cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "config-file", cfgFile, err)
		}
	}

	config := logger.DefaultConfig()
	config.Level = logger.Level(a.v.GetString("log-level"))
	config.Format = logger.Format(a.v.GetString("log-format"))
	if a.debug() {
		config.Level = logger.DebugLevel
		config.CallerInfo = true
	}
	if err := config.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "logging", fmt.Sprintf("%s/%s", config.Level, config.Format), err)
	}

	log, err := logger.NewWithWriter(config, a.stderr)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "logging", config.Level, err)
	}
	logger.SetGlobalLogger(log)
	return nil
}

func (a *app) debug() bool {
	return a.v.GetBool("debug")
}

// Run executes the CLI with args and returns the process exit code
func Run(args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCommand(stdout, stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	debug := false
	if flag := rootCmd.PersistentFlags().Lookup("debug"); flag != nil {
		debug = flag.Value.String() == "true"
	}
	return NewCLIErrorHandler(stderr, debug).HandleError(err)
}

// Execute runs the CLI against the process arguments. This is called by main.main().
func Execute() int {
	return Run(os.Args[1:], os.Stdout, os.Stderr)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "reconciler %s\n", getVersionString())
			fmt.Fprintf(out, "schema version: %s\n", identity.SchemaVersion)
			fmt.Fprintf(out, "model version:  %s\n", identity.ModelVersion)
			return nil
		},
	}
}
