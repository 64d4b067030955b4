package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/dl-alexandre/gdrvflow/internal/sink"
	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/google/uuid"
)

// OutputWriter handles CLI output formatting
type OutputWriter struct {
	w        io.Writer
	errw     io.Writer
	format   types.OutputFormat
	quiet    bool
	verbose  bool
	traceID  string
	warnings []types.CLIWarning
}

// NewOutputWriter creates a new output writer
func NewOutputWriter(w, errw io.Writer, format types.OutputFormat, quiet, verbose bool) *OutputWriter {
	return &OutputWriter{
		w:        w,
		errw:     errw,
		format:   format,
		quiet:    quiet,
		verbose:  verbose,
		traceID:  uuid.New().String(),
		warnings: []types.CLIWarning{},
	}
}

// TraceID is the trace ID stamped on this command's output.
func (w *OutputWriter) TraceID() string {
	return w.traceID
}

// AddWarning adds a warning to the output
func (w *OutputWriter) AddWarning(code, message, severity string) {
	w.warnings = append(w.warnings, types.CLIWarning{
		Code:     code,
		Message:  message,
		Severity: severity,
	})
}

// WriteSuccess writes a successful result
func (w *OutputWriter) WriteSuccess(command string, data interface{}) error {
	if w.format == types.OutputFormatTable {
		if renderer, ok := data.(types.TableRenderer); ok {
			return sink.RenderTable(w.w, renderer)
		}
		if renderable, ok := data.(types.TableRenderable); ok {
			return sink.RenderTable(w.w, renderable.AsTableRenderer())
		}
	}
	return w.writeJSON(types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       w.traceID,
		Command:       command,
		Data:          data,
		Warnings:      w.warnings,
		Errors:        []types.CLIError{},
	})
}

// WriteError writes err as a JSON error result and returns it so the process
// exit code reflects the failure.
func (w *OutputWriter) WriteError(command string, err error) error {
	return w.WriteErrorData(command, err, nil)
}

// WriteErrorData is WriteError with a data payload describing the failure.
func (w *OutputWriter) WriteErrorData(command string, err error, data interface{}) error {
	appErr, ok := utils.AsAppError(err)
	if !ok {
		appErr = utils.WrapAppError(utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build(), err)
	}
	if werr := w.writeJSON(types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       w.traceID,
		Command:       command,
		Data:          data,
		Warnings:      w.warnings,
		Errors:        []types.CLIError{appErr.CLIError},
	}); werr != nil {
		return werr
	}
	return appErr
}

func (w *OutputWriter) writeJSON(output types.CLIOutput) error {
	encoder := json.NewEncoder(w.w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// Log writes to stderr if not quiet
func (w *OutputWriter) Log(format string, args ...interface{}) {
	if !w.quiet {
		fmt.Fprintf(w.errw, format+"\n", args...)
	}
}

// Verbose writes to stderr if verbose is enabled
func (w *OutputWriter) Verbose(format string, args ...interface{}) {
	if w.verbose {
		fmt.Fprintf(w.errw, "[VERBOSE] "+format+"\n", args...)
	}
}

// attributeTable renders a flat attribute map as key/value rows.
type attributeTable map[string]string

func (t attributeTable) Headers() []string {
	return []string{"Attribute", "Value"}
}

func (t attributeTable) Rows() [][]string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, t[k]})
	}
	return rows
}

func (t attributeTable) EmptyMessage() string {
	return "No attributes"
}
