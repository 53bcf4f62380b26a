package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"

	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

// OutputWriter handles CLI output formatting
type OutputWriter struct {
	format   types.OutputFormat
	quiet    bool
	verbose  bool
	traceID  string
	out      io.Writer
	errOut   io.Writer
	warnings []types.CLIWarning
}

// NewOutputWriter creates a new output writer on stdout/stderr
func NewOutputWriter(format types.OutputFormat, quiet, verbose bool) *OutputWriter {
	return &OutputWriter{
		format:   format,
		quiet:    quiet,
		verbose:  verbose,
		out:      os.Stdout,
		errOut:   os.Stderr,
		warnings: []types.CLIWarning{},
	}
}

// newOutput creates an output writer from the global flags and trace ID,
// writing where the root command writes
func newOutput() *OutputWriter {
	flags := GetGlobalFlags()
	return NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose).
		WithTraceID(traceID).
		SetWriters(rootCmd.OutOrStdout(), rootCmd.ErrOrStderr())
}

// WithTraceID sets the trace ID reported in the JSON envelope
func (w *OutputWriter) WithTraceID(id string) *OutputWriter {
	w.traceID = id
	return w
}

// SetWriters redirects result and log output
func (w *OutputWriter) SetWriters(out, errOut io.Writer) *OutputWriter {
	w.out = out
	w.errOut = errOut
	return w
}

// AddWarning adds a warning to the output
func (w *OutputWriter) AddWarning(code, message, severity string) {
	w.warnings = append(w.warnings, types.CLIWarning{
		Code:     code,
		Message:  message,
		Severity: severity,
	})
}

func (w *OutputWriter) envelopeTraceID() string {
	if w.traceID == "" {
		return uuid.New().String()
	}
	return w.traceID
}

// WriteSuccess writes a successful result
func (w *OutputWriter) WriteSuccess(command string, data interface{}) error {
	if w.format == types.OutputFormatJSON {
		return w.writeJSON(types.CLIOutput{
			SchemaVersion: utils.SchemaVersion,
			TraceID:       w.envelopeTraceID(),
			Command:       command,
			Data:          data,
			Warnings:      w.warnings,
			Errors:        []types.CLIError{},
		})
	}
	for _, warning := range w.warnings {
		w.Log("%s: %s", warning.Code, warning.Message)
	}
	return w.writeTable(command, data)
}

// WriteResult writes data like WriteSuccess and, when cliErr is set, also
// carries it in the envelope and turns it into the command's exit status.
func (w *OutputWriter) WriteResult(command string, data interface{}, cliErr *types.CLIError) error {
	if cliErr == nil {
		return w.WriteSuccess(command, data)
	}
	if w.format == types.OutputFormatJSON {
		if err := w.writeJSON(types.CLIOutput{
			SchemaVersion: utils.SchemaVersion,
			TraceID:       w.envelopeTraceID(),
			Command:       command,
			Data:          data,
			Warnings:      w.warnings,
			Errors:        []types.CLIError{*cliErr},
		}); err != nil {
			return err
		}
	} else {
		if err := w.writeTable(command, data); err != nil {
			return err
		}
		fmt.Fprintf(w.errOut, "Error [%s]: %s\n", cliErr.Code, cliErr.Message)
	}
	return &reportedError{cliErr: *cliErr}
}

// WriteError writes an error result. The returned error carries the code
// Execute turns into the exit status.
func (w *OutputWriter) WriteError(command string, cliErr types.CLIError) error {
	if w.format == types.OutputFormatJSON {
		if err := w.writeJSON(types.CLIOutput{
			SchemaVersion: utils.SchemaVersion,
			TraceID:       w.envelopeTraceID(),
			Command:       command,
			Data:          nil,
			Warnings:      w.warnings,
			Errors:        []types.CLIError{cliErr},
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w.errOut, "Error [%s]: %s\n", cliErr.Code, cliErr.Message)
		if action, ok := cliErr.Context["suggestedAction"]; ok {
			fmt.Fprintf(w.errOut, "  %v\n", action)
		}
	}
	return &reportedError{cliErr: cliErr}
}

// WriteErr writes err, keeping the CLI error it carries when there is one
func (w *OutputWriter) WriteErr(command string, err error) error {
	return w.WriteError(command, toCLIError(err, utils.ErrCodeUnknown))
}

func (w *OutputWriter) writeJSON(output types.CLIOutput) error {
	encoder := json.NewEncoder(w.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func (w *OutputWriter) writeTable(command string, data interface{}) error {
	if group, ok := data.(types.TableGroup); ok {
		for i, renderer := range group.Tables() {
			if i > 0 {
				fmt.Fprintln(w.out)
			}
			if err := w.renderTable(renderer); err != nil {
				return err
			}
		}
		return nil
	}
	if renderable, ok := data.(types.TableRenderable); ok {
		return w.renderTable(renderable.AsTableRenderer())
	}
	if renderer, ok := data.(types.TableRenderer); ok {
		return w.renderTable(renderer)
	}
	// Fallback to JSON for unknown types
	return w.writeJSON(types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       w.envelopeTraceID(),
		Command:       command,
		Data:          data,
		Warnings:      w.warnings,
		Errors:        []types.CLIError{},
	})
}

func (w *OutputWriter) renderTable(renderer types.TableRenderer) error {
	rows := renderer.Rows()
	if len(rows) == 0 {
		if !w.quiet {
			fmt.Fprintln(w.out, renderer.EmptyMessage())
		}
		return nil
	}

	table := tablewriter.NewWriter(w.out)
	table.SetHeader(renderer.Headers())
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, row := range rows {
		table.Append(row)
	}

	table.Render()
	return nil
}

// Log writes to stderr if not quiet
func (w *OutputWriter) Log(format string, args ...interface{}) {
	if !w.quiet {
		fmt.Fprintf(w.errOut, format+"\n", args...)
	}
}

// Verbose writes to stderr if verbose is enabled
func (w *OutputWriter) Verbose(format string, args ...interface{}) {
	if w.verbose {
		fmt.Fprintf(w.errOut, "[VERBOSE] "+format+"\n", args...)
	}
}

// reportedError is returned once an error envelope has been written
type reportedError struct {
	cliErr types.CLIError
}

func (e *reportedError) Error() string {
	return fmt.Sprintf("%s: %s", e.cliErr.Code, e.cliErr.Message)
}

// toCLIError extracts the CLI error carried by err, or wraps err under fallback
func toCLIError(err error, fallback string) types.CLIError {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError
	}
	if errors.Is(err, context.Canceled) {
		return utils.NewCLIError(utils.ErrCodeCancelled, "operation cancelled").Build()
	}
	return utils.NewCLIError(fallback, err.Error()).Build()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
