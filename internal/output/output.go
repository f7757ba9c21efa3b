// Package output renders CLI results as text, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats lists the accepted --output values.
var Formats = []string{string(FormatText), string(FormatJSON), string(FormatYAML)}

// Writer handles output in the specified format.
type Writer struct {
	format   Format
	w        io.Writer
	terminal bool
}

// NewWriter creates a new output writer. Notices are decorated only when w
// is a terminal.
func NewWriter(w io.Writer, format Format) *Writer {
	return &Writer{format: format, w: w, terminal: isTerminal(w)}
}

// Format returns the configured format.
func (w *Writer) Format() Format {
	return w.format
}

// Write outputs the given value in the configured format.
func (w *Writer) Write(v interface{}) error {
	switch w.format {
	case FormatJSON:
		enc := json.NewEncoder(w.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		if s, ok := v.(fmt.Stringer); ok {
			_, err := fmt.Fprintln(w.w, s.String())
			return err
		}
		_, err := fmt.Fprintf(w.w, "%+v\n", v)
		return err
	}
}

// Notice prints a one-line message for a person watching the process. In
// json/yaml mode the notice is written as a {"notice": msg} document so the
// stream stays machine readable.
func (w *Writer) Notice(msg string) error {
	if w.format != FormatText {
		return w.Write(map[string]string{"notice": msg})
	}
	if w.terminal {
		_, err := fmt.Fprintf(w.w, "\033[1m==>\033[0m %s\n", msg)
		return err
	}
	_, err := fmt.Fprintf(w.w, "notice: %s\n", msg)
	return err
}

// ParseFormat parses a format string into a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format: %s", s)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
