package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/navpilot/internal/decision"
	"github.com/xkilldash9x/navpilot/internal/planner"
)

func newSessionCmd(rt *Runtime) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Create, drive and inspect planning sessions",
	}
	sessionCmd.AddCommand(
		newSessionCreateCmd(rt),
		newSessionIngestCmd(rt),
		newSessionNextCmd(rt),
		newSessionShowCmd(rt),
		newSessionCompleteCmd(rt),
		newSessionExpireCmd(rt),
	)
	return sessionCmd
}

type createdSession struct {
	SessionID string             `json:"session_id"`
	Analysis  *decision.Analysis `json:"analysis,omitempty"`
}

func newSessionCreateCmd(rt *Runtime) *cobra.Command {
	var goal, url, domPath string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a session for a goal, optionally with an initial page snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			snap, err := readSnapshot(domPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			c, err := rt.Components(ctx)
			if err != nil {
				return err
			}

			id, err := c.Planner.CreateSession(ctx, goal, url)
			if err != nil {
				return err
			}
			out := createdSession{SessionID: id}
			if snap != nil {
				analysis, err := c.Planner.IngestDOM(ctx, id, snap)
				if err != nil {
					return err
				}
				out.Analysis = &analysis
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVarP(&goal, "goal", "g", "", "natural-language goal")
	cmd.Flags().StringVarP(&url, "url", "u", "", "starting page URL")
	cmd.Flags().StringVar(&domPath, "dom", "", "initial snapshot JSON file ('-' for stdin)")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func newSessionIngestCmd(rt *Runtime) *cobra.Command {
	var domPath string
	cmd := &cobra.Command{
		Use:   "ingest <session-id>",
		Short: "Store a page snapshot and print the initial analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			snap, err := readSnapshot(domPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			c, err := rt.Components(ctx)
			if err != nil {
				return err
			}
			analysis, err := c.Planner.IngestDOM(ctx, args[0], snap)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), analysis)
		},
	}
	cmd.Flags().StringVar(&domPath, "dom", "", "snapshot JSON file ('-' for stdin)")
	_ = cmd.MarkFlagRequired("dom")
	return cmd
}

func newSessionNextCmd(rt *Runtime) *cobra.Command {
	var domPath, resultPath string
	cmd := &cobra.Command{
		Use:   "next <session-id>",
		Short: "Decide the next action, reporting the previous action's result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if domPath == "-" && resultPath == "-" {
				return errors.New("only one of --dom and --result may read stdin")
			}
			snap, err := readSnapshot(domPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			previous, err := readResult(resultPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			c, err := rt.Components(ctx)
			if err != nil {
				return err
			}

			out, err := c.Planner.PlanNext(ctx, args[0], snap, previous)
			var modelErr *planner.ModelError
			if err != nil && !errors.As(err, &modelErr) {
				return err
			}
			if werr := writeJSON(cmd.OutOrStdout(), out); werr != nil {
				return werr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&domPath, "dom", "", "current snapshot JSON file ('-' for stdin)")
	cmd.Flags().StringVar(&resultPath, "result", "", "previous action result JSON file ('-' for stdin)")
	return cmd
}

func newSessionShowCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rt.Components(cmd.Context())
			if err != nil {
				return err
			}
			s, err := c.Planner.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), s)
		},
	}
}

func newSessionCompleteCmd(rt *Runtime) *cobra.Command {
	var failed bool
	var message string
	cmd := &cobra.Command{
		Use:   "complete <session-id>",
		Short: "Mark a session completed or failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := rt.Components(ctx)
			if err != nil {
				return err
			}
			if err := c.Planner.CompleteSession(ctx, args[0], !failed, message); err != nil {
				return err
			}
			s, err := c.Planner.GetSession(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"session_id": s.ID,
				"status":     s.Status,
				"message":    s.CompletionMessage,
			})
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "mark the session failed instead of completed")
	cmd.Flags().StringVarP(&message, "message", "m", "", "completion message")
	return cmd
}

func newSessionExpireCmd(rt *Runtime) *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Delete sessions older than the configured (or given) age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := rt.Components(ctx)
			if err != nil {
				return err
			}
			var n int
			if maxAge > 0 {
				n, err = c.Sessions.Expire(ctx, maxAge)
			} else {
				n, err = c.Janitor.RunOnce(ctx)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]int{"expired": n})
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "override session.max_age")
	return cmd
}
