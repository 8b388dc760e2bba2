package cmd

import (
	"fmt"
	"io"
	"os"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/navpilot/internal/dom"
	"github.com/xkilldash9x/navpilot/internal/session"
)

// readInput reads path, or in when path is "-".
func readInput(path string, in io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(in)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func readSnapshot(path string, in io.Reader) (*dom.Snapshot, error) {
	if path == "" {
		return nil, nil
	}
	data, err := readInput(path, in)
	if err != nil {
		return nil, err
	}
	return dom.ParseSnapshot(data)
}

func readResult(path string, in io.Reader) (*session.ActionResult, error) {
	if path == "" {
		return nil, nil
	}
	data, err := readInput(path, in)
	if err != nil {
		return nil, err
	}
	var r session.ActionResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode action result: %w", err)
	}
	return &r, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
