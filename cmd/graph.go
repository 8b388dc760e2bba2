package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navpilot/internal/reporting"
	"github.com/xkilldash9x/navpilot/internal/session"
)

func newGraphCmd(rt *Runtime) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "graph <session-id>",
		Short: "Export a session's action trail as Graphviz DOT or JSON",
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
			return writeReport(cmd, rt, s, format, output)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "dot", "output format: dot or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func writeReport(cmd *cobra.Command, rt *Runtime, s *session.Session, format, output string) error {
	reporter, err := reporting.New(format, output, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			rt.Logger().Error("Failed to close reporter", zap.Error(err))
		}
	}()
	if err := reporter.Write(s); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if output != "" && output != "stdout" {
		rt.Logger().Info("Report written", zap.String("path", output), zap.String("format", format))
	}
	return nil
}
