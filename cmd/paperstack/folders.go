package main

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

func newFolderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Manage folders",
	}

	var color string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.store.CreateFolder(cmd.Context(), args[0], color)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", f.Name, f.ID)
			return nil
		},
	}
	create.Flags().StringVar(&color, "color", "", "hex color, default from the palette")

	list := &cobra.Command{
		Use:   "list",
		Short: "List folders with their paper counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range a.store.Folders() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %d papers\n", f.ID, f.Name, f.Count)
			}
			return nil
		},
	}

	rename := &cobra.Command{
		Use:   "rename <folder> <name>",
		Short: "Rename a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.store.FindFolder(args[0])
			if err != nil {
				return err
			}
			return a.store.RenameFolder(cmd.Context(), f.ID, args[1])
		},
	}

	remove := &cobra.Command{
		Use:   "delete <folder>",
		Short: "Delete a folder; its papers stay in the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.store.FindFolder(args[0])
			if err != nil {
				return err
			}
			if err := a.store.DeleteFolder(cmd.Context(), f.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", f.Name)
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add <folder> <paper>...",
		Short: "Add papers to a folder",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.store.FindFolder(args[0])
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(args)-1)
			for _, ref := range args[1:] {
				p, err := a.resolvePaper(ref)
				if err != nil {
					return err
				}
				ids = append(ids, p.ID)
			}
			n, err := a.store.AddManyToFolder(cmd.Context(), f.ID, ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d papers to %s\n", n, f.Name)
			return nil
		},
	}

	rm := &cobra.Command{
		Use:   "remove <folder> <paper>",
		Short: "Remove a paper from a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.store.FindFolder(args[0])
			if err != nil {
				return err
			}
			p, err := a.resolvePaper(args[1])
			if err != nil {
				return err
			}
			removed, err := a.store.RemoveFromFolder(cmd.Context(), p.ID, f.ID)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("%s is not in %s", p.Title, f.Name)
			}
			return nil
		},
	}

	var filter string
	show := &cobra.Command{
		Use:   "show <folder>",
		Short: "List the papers in a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.store.FindFolder(args[0])
			if err != nil {
				return err
			}
			papers, err := a.store.FolderPapers(f.ID, filter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d papers)\n", f.Name, f.Count)
			for _, p := range papers {
				printPaperLine(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	show.Flags().StringVar(&filter, "filter", "", "only papers whose title or authors contain this text")

	var copyLink bool
	share := &cobra.Command{
		Use:   "share <folder>",
		Short: "Print the share link of a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.store.FindFolder(args[0])
			if err != nil {
				return err
			}
			link, err := a.store.ShareLink(f.ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			if copyLink {
				if err := clipboard.WriteAll(link); err != nil {
					return fmt.Errorf("copy to clipboard: %w", err)
				}
			}
			return nil
		},
	}
	share.Flags().BoolVar(&copyLink, "copy", false, "also copy the link to the clipboard")

	cmd.AddCommand(create, list, rename, remove, add, rm, show, share)
	return cmd
}
