package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/navpilot/internal/decision"
	"github.com/xkilldash9x/navpilot/internal/dom"
	"github.com/xkilldash9x/navpilot/internal/planner"
	"github.com/xkilldash9x/navpilot/internal/service"
	"github.com/xkilldash9x/navpilot/internal/session"
)

// replayScript is a recorded trace: the snapshot seen before each planning
// round and what happened when the decided action was executed.
type replayScript struct {
	Goal  string       `yaml:"goal"`
	URL   string       `yaml:"url"`
	DOM   string       `yaml:"dom"`
	Steps []replayStep `yaml:"steps"`
}

type replayStep struct {
	// DOM is a snapshot file, relative to the script.
	DOM string `yaml:"dom"`
	// Result uses the executor's JSON field names.
	Result map[string]any `yaml:"result"`
}

func loadReplayScript(path string) (*replayScript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay script: %w", err)
	}
	var script replayScript
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("failed to parse replay script %s: %w", path, err)
	}
	if script.Goal == "" {
		return nil, errors.New("replay script has no goal")
	}
	if len(script.Steps) == 0 {
		return nil, errors.New("replay script has no steps")
	}
	return &script, nil
}

func (s replayStep) result() (*session.ActionResult, error) {
	if len(s.Result) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(s.Result)
	if err != nil {
		return nil, err
	}
	var r session.ActionResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("invalid step result: %w", err)
	}
	return &r, nil
}

func newReplayCmd(rt *Runtime) *cobra.Command {
	var graphPath string
	cmd := &cobra.Command{
		Use:   "replay <script.yaml>",
		Short: "Drive a session through a recorded trace of snapshots and results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			script, err := loadReplayScript(args[0])
			if err != nil {
				return err
			}
			c, err := rt.Components(ctx)
			if err != nil {
				return err
			}
			s, err := replay(ctx, c, script, filepath.Dir(args[0]), cmd.OutOrStdout(), rt.Logger())
			if err != nil {
				return err
			}
			if graphPath != "" {
				return writeReport(cmd, rt, s, "dot", graphPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&graphPath, "graph", "", "write the resulting trail as DOT to this file")
	return cmd
}

func replay(ctx context.Context, c *service.Components, script *replayScript, baseDir string, out io.Writer, logger *zap.Logger) (*session.Session, error) {
	load := func(name string) (*dom.Snapshot, error) {
		if name == "" {
			return nil, nil
		}
		if !filepath.IsAbs(name) {
			name = filepath.Join(baseDir, name)
		}
		return readSnapshot(name, nil)
	}

	id, err := c.Planner.CreateSession(ctx, script.Goal, script.URL)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "session %s: %s\n", id, script.Goal)

	initial, err := load(script.DOM)
	if err != nil {
		return nil, err
	}
	if initial != nil {
		analysis, err := c.Planner.IngestDOM(ctx, id, initial)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(out, "analysis: %s\n", analysis.Understanding)
	}

	var previous *session.ActionResult
	for i, step := range script.Steps {
		snap, err := load(step.DOM)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}

		outcome, err := c.Planner.PlanNext(ctx, id, snap, previous)
		var modelErr *planner.ModelError
		switch {
		case errors.As(err, &modelErr):
			logger.Warn("Replay step produced no decision", zap.Int("step", i+1), zap.Error(err))
			fmt.Fprintf(out, "step %d: %v\n", i+1, err)
		case err != nil:
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		default:
			fmt.Fprintf(out, "step %d: %s\n", i+1, describeOutcome(outcome))
		}
		if outcome.Decision.Complete || outcome.Decision.Reason == decision.ReasonMaxIterations {
			break
		}

		if previous, err = step.result(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	return c.Planner.GetSession(ctx, id)
}

func describeOutcome(o planner.Outcome) string {
	d := o.Decision
	switch {
	case d.Complete:
		return fmt.Sprintf("complete (%.2f): %s", d.Confidence, d.Reason)
	case d.NextAction != nil:
		target := d.NextAction.TargetUID
		if target == "" {
			target = d.NextAction.URL
		}
		line := fmt.Sprintf("%s %s", d.NextAction.Type, target)
		if d.Validation != nil && !d.Validation.OK {
			line += " [invalid]"
		}
		return line
	default:
		return "no action: " + d.Reason
	}
}
