package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jjcore/jjcore/internal/repository"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a repository in the working directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		ch, err := h.Repo.Init(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("initialized, working copy is %s\n", ch.ChangeID)
		return nil
	},
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a new change on top of the working copy",
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		ch, err := h.Repo.New(cmd.Context(), repository.NewOptions{Message: message})
		if err != nil {
			return err
		}
		fmt.Printf("created %s\n", ch.ChangeID)
		return nil
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Set the description of a change",
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		rev, _ := cmd.Flags().GetString("revision")
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		target := ""
		if rev != "" {
			target, err = h.Repo.ResolveRevision(rev)
			if err != nil {
				return err
			}
		}
		ch, err := h.Repo.Describe(cmd.Context(), repository.DescribeOptions{Revision: target, Message: message})
		if err != nil {
			return err
		}
		fmt.Printf("described %s\n", ch.ChangeID)
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <revision>",
	Short: "Check out a change as the working copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		id, err := h.Repo.ResolveRevision(args[0])
		if err != nil {
			return err
		}
		ch, err := h.Repo.Edit(cmd.Context(), id, repository.EditOptions{})
		if err != nil {
			return err
		}
		fmt.Printf("working copy is now %s\n", ch.ChangeID)
		return nil
	},
}

var abandonCmd = &cobra.Command{
	Use:   "abandon <revision>",
	Short: "Abandon a change (hide it from default revsets)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		id, err := h.Repo.ResolveRevision(args[0])
		if err != nil {
			return err
		}
		if err := h.Repo.Abandon(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("abandoned %s\n", id)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <revision>",
	Short: "Restore an abandoned change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		id, err := h.Repo.ResolveRevision(args[0])
		if err != nil {
			return err
		}
		if err := h.Repo.Restore(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("restored %s\n", id)
		return nil
	},
}

var squashCmd = &cobra.Command{
	Use:   "squash <source> <dest>",
	Short: "Fold one change's content into another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		src, err := h.Repo.ResolveRevision(args[0])
		if err != nil {
			return err
		}
		dst, err := h.Repo.ResolveRevision(args[1])
		if err != nil {
			return err
		}
		ch, err := h.Repo.Squash(cmd.Context(), src, dst)
		if err != nil {
			return err
		}
		fmt.Printf("squashed into %s\n", ch.ChangeID)
		return nil
	},
}

var rebaseCmd = &cobra.Command{
	Use:   "rebase <revision> <new-parent>",
	Short: "Reparent a change",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		id, err := h.Repo.ResolveRevision(args[0])
		if err != nil {
			return err
		}
		parent, err := h.Repo.ResolveRevision(args[1])
		if err != nil {
			return err
		}
		ch, err := h.Repo.RebaseChange(cmd.Context(), id, parent)
		if err != nil {
			return err
		}
		fmt.Printf("rebased %s\n", ch.ChangeID)
		return nil
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge <source>",
	Short: "Merge a change into the working copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		src, err := h.Repo.ResolveRevision(args[0])
		if err != nil {
			return err
		}
		res, err := h.Repo.Merge(cmd.Context(), repository.MergeOptions{Source: src, DryRun: dryRun})
		if err != nil {
			return err
		}
		if res.Change != nil {
			fmt.Printf("merged as %s\n", res.Change.ChangeID)
		}
		for _, c := range res.Conflicts {
			fmt.Printf("conflict: %s (%s)\n", c.Path, c.Type)
		}
		if len(res.Conflicts) == 0 {
			fmt.Println("no conflicts")
		}
		return nil
	},
}

var duplicateCmd = &cobra.Command{
	Use:   "duplicate <revision>...",
	Short: "Copy changes under fresh ids",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		var ids []string
		for _, a := range args {
			id, err := h.Repo.ResolveRevision(a)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		dups, err := h.Repo.Duplicate(cmd.Context(), ids)
		if err != nil {
			return err
		}
		for i, d := range dups {
			fmt.Printf("duplicated %s as %s\n", ids[i], d.ChangeID)
		}
		return nil
	},
}

var backoutCmd = &cobra.Command{
	Use:   "backout <revision>",
	Short: "Create a change reversing another change's delta",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		id, err := h.Repo.ResolveRevision(args[0])
		if err != nil {
			return err
		}
		ch, err := h.Repo.Backout(cmd.Context(), id, message)
		if err != nil {
			return err
		}
		fmt.Printf("backed out as %s\n", ch.ChangeID)
		return nil
	},
}

var absorbCmd = &cobra.Command{
	Use:   "absorb",
	Short: "Fold working-copy edits into the ancestors that last touched each file",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		plan, err := h.Repo.Absorb(cmd.Context(), repository.AbsorbOptions{DryRun: dryRun})
		if err != nil {
			return err
		}
		for _, step := range plan {
			verb := "absorbed"
			if dryRun {
				verb = "would absorb"
			}
			fmt.Printf("%s %s into %s\n", verb, step.Path, step.Target)
		}
		if len(plan) == 0 {
			fmt.Println("nothing to absorb")
		}
		return nil
	},
}

func init() {
	newCmd.Flags().StringP("message", "m", "", "description for the new change")
	describeCmd.Flags().StringP("message", "m", "", "new description")
	describeCmd.Flags().StringP("revision", "r", "", "change to describe (default: working copy)")
	mergeCmd.Flags().Bool("dry-run", false, "report conflicts without mutating state")
	backoutCmd.Flags().StringP("message", "m", "", "description for the backout change")
	absorbCmd.Flags().Bool("dry-run", false, "report the plan without mutating state")

	rootCmd.AddCommand(initCmd, newCmd, describeCmd, editCmd, abandonCmd, restoreCmd,
		squashCmd, rebaseCmd, mergeCmd, duplicateCmd, backoutCmd, absorbCmd)
}
