// Package reporting exports session trails for inspection outside the
// planner: a Graphviz DOT graph of the action log or a JSON document.
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/xkilldash9x/navpilot/internal/session"
)

// Reporter writes session trails to an output.
type Reporter interface {
	// Write renders a single session.
	Write(s *session.Session) error
	// Close finalizes the report and closes any underlying file.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format ("dot" or "json") writing to outputPath.
// An empty path or "stdout" writes to stdout, which is never closed.
func New(format, outputPath string, stdout io.Writer) (Reporter, error) {
	switch format {
	case "dot", "json":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	if format == "dot" {
		return NewDOTReporter(writer), nil
	}
	return NewJSONReporter(writer), nil
}
