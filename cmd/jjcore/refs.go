package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var bookmarkCmd = &cobra.Command{
	Use:   "bookmark",
	Short: "Manage movable named pointers to changes",
}

var bookmarkCreateCmd = &cobra.Command{
	Use:   "create <name> <revision>",
	Short: "Create a bookmark",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		id, err := h.Repo.ResolveRevision(args[1])
		if err != nil {
			return err
		}
		if err := h.Repo.CreateBookmark(cmd.Context(), args[0], id); err != nil {
			return err
		}
		fmt.Printf("bookmark %s -> %s\n", args[0], id)
		return nil
	},
}

var bookmarkMoveCmd = &cobra.Command{
	Use:   "move <name> <revision>",
	Short: "Repoint a bookmark",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		id, err := h.Repo.ResolveRevision(args[1])
		if err != nil {
			return err
		}
		if err := h.Repo.MoveBookmark(cmd.Context(), args[0], id); err != nil {
			return err
		}
		fmt.Printf("bookmark %s -> %s\n", args[0], id)
		return nil
	},
}

var bookmarkDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a bookmark",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		if err := h.Repo.DeleteBookmark(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted bookmark %s\n", args[0])
		return nil
	},
}

var bookmarkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookmarks",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		bookmarks := h.Repo.Bookmarks().List()
		names := make([]string, 0, len(bookmarks))
		for name := range bookmarks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s: %s\n", name, bookmarks[name])
		}
		return nil
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage immutable named pointers to changes",
}

var tagCreateCmd = &cobra.Command{
	Use:   "create <name> <revision>",
	Short: "Create a tag (immutable once created)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		id, err := h.Repo.ResolveRevision(args[1])
		if err != nil {
			return err
		}
		if err := h.Repo.CreateTag(cmd.Context(), args[0], id); err != nil {
			return err
		}
		fmt.Printf("tag %s -> %s\n", args[0], id)
		return nil
	},
}

var tagDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		if err := h.Repo.DeleteTag(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted tag %s\n", args[0])
		return nil
	},
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openRepo()
		if err != nil {
			return err
		}
		defer h.Close()
		tags := h.Repo.Tags().List()
		names := make([]string, 0, len(tags))
		for name := range tags {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s: %s\n", name, tags[name])
		}
		return nil
	},
}

func init() {
	bookmarkCmd.AddCommand(bookmarkCreateCmd, bookmarkMoveCmd, bookmarkDeleteCmd, bookmarkListCmd)
	tagCmd.AddCommand(tagCreateCmd, tagDeleteCmd, tagListCmd)
	rootCmd.AddCommand(bookmarkCmd, tagCmd)
}
