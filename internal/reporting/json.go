package reporting

import (
	"fmt"
	"io"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/navpilot/internal/session"
)

// JSONReporter writes each session as one indented JSON document.
type JSONReporter struct {
	w   io.WriteCloser
	enc *json.Encoder
}

func NewJSONReporter(w io.WriteCloser) *JSONReporter {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &JSONReporter{w: w, enc: enc}
}

func (r *JSONReporter) Write(s *session.Session) error {
	if err := r.enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}
	return nil
}

func (r *JSONReporter) Close() error { return r.w.Close() }
