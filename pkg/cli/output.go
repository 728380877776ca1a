package cli

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

// OutputFormat selects how command results are rendered. Commands accept it
// via the --output flag and pass it to NewFormatter.
type OutputFormat string

const (
	FormatText OutputFormat = "text" // human-readable, the default
	FormatJSON OutputFormat = "json" // indented JSON for scripting
	FormatCSV  OutputFormat = "csv"  // rows only, requires Tabular
)

// Formatter renders a command result either into a byte slice or directly
// onto a writer.
type Formatter interface {
	Format(data interface{}) ([]byte, error)
	FormatTo(w io.Writer, data interface{}) error
}

// Tabular is implemented by command results that can render as rows. CSV
// output requires it; other formats ignore it.
type Tabular interface {
	Header() []string
	Rows() [][]string
}

// NewFormatter returns the Formatter for format. Unrecognized values fall
// back to text so a typo in --output still prints something useful.
func NewFormatter(format OutputFormat) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatCSV:
		return &CSVFormatter{}
	default:
		return &TextFormatter{}
	}
}

// TextFormatter prints the result's default string form, one value per line.
// Result types control their rendering through fmt.Stringer.
type TextFormatter struct{}

func (f *TextFormatter) Format(data interface{}) ([]byte, error) {
	return []byte(fmt.Sprintf("%v\n", data)), nil
}

func (f *TextFormatter) FormatTo(w io.Writer, data interface{}) error {
	_, err := fmt.Fprintf(w, "%v\n", data)
	return err
}

// JSONFormatter marshals the result as JSON. Indent picks between compact
// and two-space indented output.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) Format(data interface{}) ([]byte, error) {
	if f.Indent {
		return json.MarshalIndent(data, "", "  ")
	}
	return json.Marshal(data)
}

func (f *JSONFormatter) FormatTo(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(data)
}

// CSVFormatter writes a Tabular result as CSV, header row first. Results
// that do not implement Tabular are rejected rather than guessed at.
type CSVFormatter struct{}

func (f *CSVFormatter) Format(data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.FormatTo(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *CSVFormatter) FormatTo(w io.Writer, data interface{}) error {
	tab, ok := data.(Tabular)
	if !ok {
		return fmt.Errorf("%T does not support CSV output", data)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(tab.Header()); err != nil {
		return err
	}
	for _, row := range tab.Rows() {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
