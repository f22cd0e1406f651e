package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var opCmd = &cobra.Command{
	Use:   "op",
	Short: "Inspect and roll back the operation log",
}

var opLogCmd = &cobra.Command{
	Use:   "log",
	Short: "List operations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		ops, err := h.Repo.OperationLog().All()
		if err != nil {
			return err
		}
		for i := len(ops) - 1; i >= 0; i-- {
			op := ops[i]
			fmt.Printf("%s %s\n", op.OperationID[:12], op.Description)
		}
		return nil
	},
}

var opUndoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Roll back to the previous operation's view",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		op, err := h.Repo.Undo(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("undone, working copy is %s\n", op.View.WorkingCopy)
		return nil
	},
}

func init() {
	opCmd.AddCommand(opLogCmd, opUndoCmd)
	rootCmd.AddCommand(opCmd)
}
