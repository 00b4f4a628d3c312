package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nikbrunner/paperstack/internal/exporter"
	"github.com/nikbrunner/paperstack/internal/importer"
	"github.com/nikbrunner/paperstack/internal/library"
	"github.com/nikbrunner/paperstack/internal/model"
)

var settingGroups = map[string]string{
	"privacy":       model.KeyPrivacy,
	"notifications": model.KeyNotifications,
}

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show privacy and notification settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, group := range []string{"privacy", "notifications"} {
				s, err := a.store.Settings(settingGroups[group])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", group)
				names := make([]string, 0, len(s))
				for name := range s {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(cmd.OutOrStdout(), "  %-22s %s\n", name, onOff(s[name]))
				}
			}
			return nil
		},
	}

	toggle := &cobra.Command{
		Use:   "toggle <privacy|notifications> <name>",
		Short: "Flip one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, ok := settingGroups[strings.ToLower(args[0])]
			if !ok {
				return fmt.Errorf("unknown settings group %q", args[0])
			}
			on, err := a.store.ToggleSetting(cmd.Context(), key, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[1], onOff(on))
			return nil
		},
	}

	cmd.AddCommand(toggle)
	return cmd
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func newExportCmd(a *app) *cobra.Command {
	var asHTML bool

	cmd := &cobra.Command{
		Use:   "export [path]",
		Short: "Export all data as JSON, or paper links as bookmark HTML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out string
			if len(args) == 1 {
				out = args[0]
			}

			if asHTML {
				if out == "" {
					var err error
					if out, err = exporter.DefaultExportPath(); err != nil {
						return fmt.Errorf("default export path: %w", err)
					}
				}
				if err := os.WriteFile(out, []byte(exporter.ExportHTML(a.store.Snapshot())), 0644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d papers to %s\n", len(a.store.Papers()), out)
				return nil
			}

			exp, err := a.store.ExportData(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" {
				out = "."
			}
			if info, err := os.Stat(out); err == nil && info.IsDir() {
				out = filepath.Join(out, library.ExportFileName(exp.ExportDate))
			}
			data, err := json.MarshalIndent(exp, "", "  ")
			if err != nil {
				return fmt.Errorf("encode export: %w", err)
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d collections to %s\n", len(exp.Data), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asHTML, "html", false, "write a Netscape bookmark file of paper links")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.html>",
		Short: "Import paper links from a Netscape bookmark file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer file.Close()

			entries, err := importer.ParseHTMLPapers(file)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			sum, err := a.store.ImportPapers(cmd.Context(), entries)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d papers, %d new folders", sum.Added, sum.FoldersCreated)
			if sum.Skipped > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " (%d duplicates skipped)", sum.Skipped)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func newDeleteAllCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every paper, folder, favorite and setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("this deletes all data; pass --yes to confirm")
			}
			if err := a.store.DeleteAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All data deleted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")
	return cmd
}

func newPendingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List writes that have not reached storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pending := a.store.Pending()
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No unsaved changes")
				return nil
			}
			for _, p := range pending {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  keys=%s attempts=%d queued=%s: %v\n",
					p.ID, p.Op, strings.Join(p.Keys, ","), p.Attempts, p.Queued.Format(time.RFC3339), p.LastErr)
			}
			return nil
		},
	}
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Retry unsaved changes and reload from storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Flush(cmd.Context()); err != nil {
				return err
			}
			if err := a.store.Load(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Library is in sync")
			return nil
		},
	}
}

func newRecountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recount",
		Short: "Recompute folder counts from paper membership",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mismatches := a.store.Snapshot().FolderCountMismatches()
			if err := a.store.RecountFolders(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fixed %d folder counts\n", len(mismatches))
			return nil
		},
	}
}
