package cmd

import (
	"fmt"
	"io"

	"golang-bank-reconciliation/internal/audit"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// CLIErrorHandler renders failures for people and maps them to exit codes
type CLIErrorHandler struct {
	logger logger.Logger
	out    io.Writer
	debug  bool
}

// NewCLIErrorHandler creates a new CLI error handler writing to out
func NewCLIErrorHandler(out io.Writer, debug bool) *CLIErrorHandler {
	return &CLIErrorHandler{
		logger: logger.GetGlobalLogger().WithComponent("cli"),
		out:    out,
		debug:  debug,
	}
}

// HandleError prints err and returns the process exit code. Errors that
// are not ReconcilerErrors come from argument parsing and count as user input.
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return errors.ExitSuccess
	}

	rerr, ok := errors.AsReconcilerError(err)
	if !ok {
		rerr = errors.UserInputError(errors.CodeInvalidArgument, err.Error(), err)
	}
	h.logger.WithError(err).WithField("category", rerr.Category).Debug("Command failed")

	fmt.Fprintf(h.out, "Error (%s): %s\n", rerr.Category, rerr.Message)
	for _, key := range rerr.ContextKeys() {
		fmt.Fprintf(h.out, "  %s: %v\n", key, rerr.Context[key])
	}
	if rerr.Suggestion != "" {
		fmt.Fprintf(h.out, "Hint: %s\n", rerr.Suggestion)
	}

	if h.debug {
		if rerr.Cause != nil {
			fmt.Fprintf(h.out, "\nUnderlying error: %v\n", rerr.Cause)
		}
		if stack := rerr.FormatStack(); stack != "" {
			fmt.Fprintf(h.out, "\nStack trace:\n%s", stack)
		}
	}

	return rerr.GetExitCode()
}

// recordCLIError appends a cli_error event to the audit stream at path.
// It never fails; a lost event is only logged.
func recordCLIError(path, command string, err error) {
	rerr, ok := errors.AsReconcilerError(err)
	if !ok {
		rerr = errors.UserInputError(errors.CodeInvalidArgument, err.Error(), err)
	}

	log := logger.GetGlobalLogger().WithComponent("cli")
	var inner audit.Recorder = audit.Null{}
	if writer, openErr := audit.OpenJSONL(path); openErr != nil {
		log.WithError(openErr).Warn("audit log unavailable, cli_error not recorded")
	} else {
		inner = writer
	}

	audit.NewBestEffort(inner, log).Record(audit.EventCLIError, rerr.Message, map[string]interface{}{
		"command":   command,
		"category":  string(rerr.Category),
		"code":      string(rerr.Code),
		"exit_code": rerr.GetExitCode(),
	})
}
