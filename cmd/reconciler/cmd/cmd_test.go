package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-bank-reconciliation/internal/audit"
	"golang-bank-reconciliation/internal/contract"
	"golang-bank-reconciliation/internal/identity"
	"golang-bank-reconciliation/pkg/errors"
)

func execute(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

// workspace runs init into a fresh directory and returns it
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, stderr, code := execute(t, "init", "--out-dir", dir, "--client", "acme")
	require.Equal(t, errors.ExitSuccess, code, stderr)
	return dir
}

func inputArgs(dir string) []string {
	return []string{
		"--config", filepath.Join(dir, "client_config.yaml"),
		"--bank", filepath.Join(dir, "bank.csv"),
		"--expected", filepath.Join(dir, "expected.csv"),
	}
}

func TestInitWritesTemplates(t *testing.T) {
	dir := workspace(t)
	for _, name := range []string{"client_config.yaml", "expected.csv", "bank.csv"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	_, stderr, code := execute(t, "init", "--out-dir", dir)
	assert.Equal(t, errors.ExitUserInput, code)
	assert.Contains(t, stderr, "already exists")

	_, _, code = execute(t, "init", "--out-dir", dir, "--force")
	assert.Equal(t, errors.ExitSuccess, code)
}

func TestValidateCommand(t *testing.T) {
	dir := workspace(t)

	stdout, stderr, code := execute(t, append([]string{"validate"}, inputArgs(dir)...)...)
	require.Equal(t, errors.ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "client: acme")
	assert.Contains(t, stdout, "bank records: 1")
	assert.Contains(t, stdout, "inputs are valid")
}

func TestValidateCommandLimitOverride(t *testing.T) {
	dir := workspace(t)

	args := append([]string{"validate"}, inputArgs(dir)...)
	_, stderr, code := execute(t, append(args, "--max-cells", "3")...)
	assert.Equal(t, errors.ExitIngestion, code)
	assert.Contains(t, stderr, "Error (ingestion)")
}

func TestRunCommand(t *testing.T) {
	dir := workspace(t)
	out := filepath.Join(dir, "run")

	args := append([]string{"run", "--out", out, "--progress"}, inputArgs(dir)...)
	stdout, stderr, code := execute(t, args...)
	require.Equal(t, errors.ExitSuccess, code, stderr)

	assert.Contains(t, stdout, "RECONCILIATION REPORT")
	assert.Contains(t, stderr, "[5/5] done")
	assert.FileExists(t, filepath.Join(out, contract.FileName))
	assert.FileExists(t, filepath.Join(out, "audit.jsonl"))
	assert.FileExists(t, filepath.Join(out, "report.csv"))

	data, err := os.ReadFile(filepath.Join(out, contract.FileName))
	require.NoError(t, err)
	payload, err := contract.Decode(data, contract.ProducerValidator{})
	require.NoError(t, err)
	assert.True(t, payload.Fingerprint.Mask, "mask_by_default applies without flags")
	require.NotEmpty(t, payload.Matches)

	stdout, stderr, code = execute(t, "explain", "--run-dir", out, payload.Matches[0].ID)
	require.Equal(t, errors.ExitSuccess, code, stderr)
	assert.True(t, strings.HasPrefix(stdout, "{"))
	assert.Contains(t, stdout, `"id":"`+payload.Matches[0].ID+`"`)

	_, stderr, code = execute(t, "explain", "--run-dir", out, "M-unknown")
	assert.Equal(t, errors.ExitUserInput, code)
	assert.Contains(t, stderr, "Error (user_input)")
}

func TestRunCommandDryRunNoMask(t *testing.T) {
	dir := workspace(t)
	out := filepath.Join(dir, "run")

	args := append([]string{"run", "--out", out, "--dry-run", "--no-mask", "--format", "json"}, inputArgs(dir)...)
	stdout, stderr, code := execute(t, args...)
	require.Equal(t, errors.ExitSuccess, code, stderr)

	assert.True(t, strings.HasPrefix(stdout, "{"))
	assert.NoFileExists(t, filepath.Join(out, "report.csv"))

	data, err := os.ReadFile(filepath.Join(out, contract.FileName))
	require.NoError(t, err)
	payload, err := contract.Decode(data, contract.ProducerValidator{})
	require.NoError(t, err)
	assert.False(t, payload.Fingerprint.Mask)
}

func runIDOf(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, contract.FileName))
	require.NoError(t, err)
	payload, err := contract.Decode(data, contract.NewConsumerValidator())
	require.NoError(t, err)
	return payload.RunID
}

func TestRunCommandEnvOverrideChangesRunID(t *testing.T) {
	dir := workspace(t)
	plain := filepath.Join(dir, "plain")
	overridden := filepath.Join(dir, "overridden")

	_, stderr, code := execute(t, append([]string{"run", "--out", plain}, inputArgs(dir)...)...)
	require.Equal(t, errors.ExitSuccess, code, stderr)

	t.Setenv("RECONCILER_DATE_WINDOW_DAYS", "10")
	_, stderr, code = execute(t, append([]string{"run", "--out", overridden}, inputArgs(dir)...)...)
	require.Equal(t, errors.ExitSuccess, code, stderr)

	assert.NotEqual(t, runIDOf(t, plain), runIDOf(t, overridden))
}

func TestRunCommandMaskConflict(t *testing.T) {
	dir := workspace(t)
	out := filepath.Join(dir, "run")

	args := append([]string{"run", "--out", out, "--mask", "--no-mask"}, inputArgs(dir)...)
	_, stderr, code := execute(t, args...)
	assert.Equal(t, errors.ExitUserInput, code)
	assert.Contains(t, stderr, "--mask and --no-mask")

	events, err := audit.ReadEvents(filepath.Join(out, "audit.jsonl"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventCLIError, events[0].Type)
	assert.Equal(t, "run", events[0].Details["command"])
	assert.Equal(t, string(errors.CodeFlagConflict), events[0].Details["code"])
	assert.EqualValues(t, errors.ExitUserInput, events[0].Details["exit_code"])
	assert.NoFileExists(t, filepath.Join(out, contract.FileName))
}

func TestCommandExitCodes(t *testing.T) {
	dir := workspace(t)
	missing := filepath.Join(dir, "missing.yaml")

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"unknown flag", []string{"run", "--bogus"}, errors.ExitUserInput},
		{"unknown command", []string{"frobnicate"}, errors.ExitUserInput},
		{"missing required flag", append([]string{"run"}, inputArgs(dir)...), errors.ExitUserInput},
		{"bad format", append([]string{"run", "--out", filepath.Join(dir, "o"), "--format", "xml"}, inputArgs(dir)...), errors.ExitUserInput},
		{"missing config file", []string{"validate", "--config", missing, "--bank", "b.csv", "--expected", "e.csv"}, errors.ExitIO},
		{"explain without id", []string{"explain", "--run-dir", dir}, errors.ExitUserInput},
		{"explain without artifact", []string{"explain", "--run-dir", dir, "M-1"}, errors.ExitIO},
		{"invalid log level", []string{"--log-level", "loud", "version"}, errors.ExitConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := execute(t, tt.args...)
			assert.Equal(t, tt.code, code, stderr)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, code := execute(t, "version")
	assert.Equal(t, errors.ExitSuccess, code)
	assert.Contains(t, stdout, "schema version: "+identity.SchemaVersion)
	assert.Contains(t, stdout, "model version:  "+identity.ModelVersion)
}

func TestHandleErrorRendering(t *testing.T) {
	err := errors.IngestionError(errors.CodeInvalidData, "bank.csv", 7, "amount is not a number", nil).
		WithContext("column", "amount")

	var out bytes.Buffer
	code := NewCLIErrorHandler(&out, false).HandleError(err)
	assert.Equal(t, errors.ExitIngestion, code)

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "Error (ingestion): amount is not a number\n"))
	assert.Less(t, strings.Index(text, "  column: amount"), strings.Index(text, "  file: bank.csv"))
	assert.Less(t, strings.Index(text, "  file: bank.csv"), strings.Index(text, "  row: 7"))
	assert.NotContains(t, text, "Stack trace")

	out.Reset()
	NewCLIErrorHandler(&out, true).HandleError(err)
	assert.Contains(t, out.String(), "Stack trace:")

	assert.Equal(t, errors.ExitSuccess, NewCLIErrorHandler(&out, false).HandleError(nil))
}
