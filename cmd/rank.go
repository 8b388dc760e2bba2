package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/navpilot/internal/dom"
)

func newRankCmd() *cobra.Command {
	var goal, domPath string
	var top int
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Score a snapshot's elements against a goal without calling a model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := readSnapshot(domPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if snap == nil {
				return errors.New("a snapshot is required (--dom)")
			}
			candidates := dom.Rank(snap, goal)
			if top > 0 && len(candidates) > top {
				candidates = candidates[:top]
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"keywords":   dom.Keywords(goal),
				"total":      len(snap.Elements),
				"candidates": candidates,
			})
		},
	}
	cmd.Flags().StringVarP(&goal, "goal", "g", "", "goal to rank against")
	cmd.Flags().StringVar(&domPath, "dom", "-", "snapshot JSON file ('-' for stdin)")
	cmd.Flags().IntVarP(&top, "top", "n", 0, "print only the first n candidates")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}
