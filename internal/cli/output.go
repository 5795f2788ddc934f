package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dl-alexandre/gsyncd/internal/types"
	"github.com/dl-alexandre/gsyncd/internal/utils"
	"github.com/olekukonko/tablewriter"
)

// TableRenderer lets command result types render themselves as a table
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
	EmptyMessage() string
}

// OutputWriter handles CLI output formatting
type OutputWriter struct {
	format types.OutputFormat
	quiet  bool
}

// NewOutputWriter creates a writer honoring the global flags
func NewOutputWriter() *OutputWriter {
	return &OutputWriter{
		format: globalFlags.OutputFormat,
		quiet:  globalFlags.Quiet,
	}
}

type commandOutput struct {
	Command string      `json:"command"`
	Status  string      `json:"status"`
	Data    interface{} `json:"data,omitempty"`
}

// WriteResult emits one command result in the selected format
func (w *OutputWriter) WriteResult(command string, code utils.Code, data interface{}) error {
	if w.format == types.OutputFormatJSON {
		return w.writeJSON(commandOutput{
			Command: command,
			Status:  string(code),
			Data:    data,
		})
	}
	if renderer, ok := data.(TableRenderer); ok {
		return w.renderTable(renderer)
	}
	if !w.quiet {
		fmt.Fprintf(os.Stdout, "%s: %s\n", command, code)
	}
	return nil
}

func (w *OutputWriter) writeJSON(output commandOutput) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func (w *OutputWriter) renderTable(renderer TableRenderer) error {
	rows := renderer.Rows()
	if len(rows) == 0 {
		if !w.quiet {
			fmt.Fprintln(os.Stdout, renderer.EmptyMessage())
		}
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(renderer.Headers())
	table.SetBorder(false)
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
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
