package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jjcore/jjcore/internal/conflict"
)

var conflictCmd = &cobra.Command{
	Use:   "conflict",
	Short: "Inspect and resolve merge conflicts",
}

var conflictListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unresolved conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		for _, c := range h.Repo.Conflicts().Unresolved() {
			fmt.Printf("%s: %s (%s)\n", c.ConflictID, c.Path, c.Type)
		}
		return nil
	},
}

var conflictResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Resolve one conflict by side or content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		side, _ := cmd.Flags().GetString("side")
		content, _ := cmd.Flags().GetString("content")
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		err = h.Repo.ResolveConflict(cmd.Context(), args[0], conflict.ResolutionInput{Side: side, Content: content})
		if err != nil {
			return err
		}
		fmt.Printf("resolved %s\n", args[0])
		return nil
	},
}

var conflictResolveAllCmd = &cobra.Command{
	Use:   "resolve-all",
	Short: "Resolve every conflict with one strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		strategy, _ := cmd.Flags().GetString("strategy")
		glob, _ := cmd.Flags().GetString("path")
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		resolved, err := h.Repo.ResolveAllConflicts(cmd.Context(), conflict.ResolveAllStrategy(strategy), glob)
		if err != nil {
			return err
		}
		fmt.Printf("resolved %d conflicts\n", len(resolved))
		return nil
	},
}

func init() {
	conflictResolveCmd.Flags().String("side", "", `pick a side: "ours", "theirs" or "base"`)
	conflictResolveCmd.Flags().String("content", "", "explicit resolved content")
	conflictResolveAllCmd.Flags().String("strategy", "ours", "ours, theirs, union or driver")
	conflictResolveAllCmd.Flags().String("path", "", "restrict to paths matching this glob")

	conflictCmd.AddCommand(conflictListCmd, conflictResolveCmd, conflictResolveAllCmd)
	rootCmd.AddCommand(conflictCmd)
}
