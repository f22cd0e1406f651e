package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "List changes matching a revset, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		revsetExpr, _ := cmd.Flags().GetString("revset")
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		entries, err := h.Repo.Log(revsetExpr)
		if err != nil {
			return err
		}
		for _, e := range entries {
			marker := " "
			if e.IsWC {
				marker = "@"
			}
			var names []string
			names = append(names, e.Bookmarks...)
			for _, t := range e.Tags {
				names = append(names, "tag:"+t)
			}
			decoration := ""
			if len(names) > 0 {
				decoration = " [" + strings.Join(names, " ") + "]"
			}
			desc := e.Change.Description
			if desc == "" {
				desc = "(no description)"
			}
			fmt.Printf("%s %s%s %s\n", marker, e.Change.ChangeID, decoration, desc)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the working copy's change, pending edits, and conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		st, err := h.Repo.Status()
		if err != nil {
			return err
		}
		desc := st.Current.Description
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Printf("working copy: %s %s\n", st.Current.ChangeID, desc)
		for _, p := range st.Parents {
			fmt.Printf("parent: %s %s\n", p.ChangeID, p.Description)
		}
		for _, f := range st.ModifiedFiles {
			fmt.Printf("modified: %s\n", f)
		}
		for _, c := range st.Conflicts {
			fmt.Printf("conflict: %s (%s)\n", c.Path, c.Type)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show [revision]",
	Short: "Show a change and its diff against its parent",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		id := ""
		if len(args) == 1 {
			id, err = h.Repo.ResolveRevision(args[0])
			if err != nil {
				return err
			}
		}
		rep, err := h.Repo.Show(id)
		if err != nil {
			return err
		}
		fmt.Printf("change: %s\n", rep.Change.ChangeID)
		fmt.Printf("commit: %s\n", rep.Change.CommitID)
		fmt.Printf("author: %s <%s>\n", rep.Change.Author.Name, rep.Change.Author.Email)
		fmt.Printf("description: %s\n", rep.Change.Description)
		for _, d := range rep.Diff {
			fmt.Printf("%s: %s\n", d.Kind, d.Path)
		}
		return nil
	},
}

func init() {
	logCmd.Flags().StringP("revset", "r", "", "revset expression (default: all())")
	rootCmd.AddCommand(logCmd, statusCmd, showCmd)
}
