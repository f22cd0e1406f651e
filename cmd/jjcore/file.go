package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "File operations against the working copy's change",
}

var fileWriteCmd = &cobra.Command{
	Use:   "write <path> <content>",
	Short: "Create or overwrite a file in the current change",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fromFile, _ := cmd.Flags().GetString("from-file")
		content := args[1]
		if fromFile != "" {
			data, err := os.ReadFile(fromFile)
			if err != nil {
				return err
			}
			content = string(data)
		}
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		if err := h.Repo.WriteFile(cmd.Context(), args[0], content); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", args[0])
		return nil
	},
}

var fileRemoveCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Remove a file from the current change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		if err := h.Repo.RemoveFile(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}

var fileMoveCmd = &cobra.Command{
	Use:   "mv <src> <dst>",
	Short: "Rename a file within the current change",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		if err := h.Repo.RenameFile(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("moved %s to %s\n", args[0], args[1])
		return nil
	},
}

var sparseCmd = &cobra.Command{
	Use:   "sparse",
	Short: "Manage working-copy sparse patterns",
}

var sparseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sparse patterns (empty means everything)",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		patterns, err := h.Repo.SparsePatterns()
		if err != nil {
			return err
		}
		for _, p := range patterns {
			fmt.Println(p)
		}
		return nil
	},
}

var sparseSetCmd = &cobra.Command{
	Use:   "set <pattern>...",
	Short: "Replace the sparse pattern list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		if err := h.Repo.SetSparsePatterns(cmd.Context(), args); err != nil {
			return err
		}
		fmt.Printf("sparse patterns set (%d)\n", len(args))
		return nil
	},
}

func init() {
	fileWriteCmd.Flags().String("from-file", "", "read content from this file instead of the argument")
	fileCmd.AddCommand(fileWriteCmd, fileRemoveCmd, fileMoveCmd)
	sparseCmd.AddCommand(sparseListCmd, sparseSetCmd)
	rootCmd.AddCommand(fileCmd, sparseCmd)
}
