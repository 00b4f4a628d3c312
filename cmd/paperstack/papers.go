package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nikbrunner/paperstack/internal/library"
	"github.com/nikbrunner/paperstack/internal/metadata"
	"github.com/nikbrunner/paperstack/internal/model"
)

func newAddCmd(a *app) *cobra.Command {
	var params library.AddPaperParams
	var file string

	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a paper by hand or from a local PDF",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				params.Title = args[0]
			}

			var (
				p   model.Paper
				err error
			)
			if file != "" {
				p, err = a.materializer().Import(cmd.Context(), file, params)
			} else {
				p, err = a.store.AddPaper(cmd.Context(), params)
			}
			if err != nil {
				return err
			}
			printPaper(cmd.OutOrStdout(), p)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&params.Authors, "authors", "", "authors, comma separated")
	f.StringVar(&params.Source, "journal", "", "journal or venue")
	f.StringVar(&params.Year, "year", "", "publication year")
	f.StringVar(&params.Pages, "pages", "", "page count")
	f.StringVar(&params.DOI, "doi", "", "DOI")
	f.StringVar(&params.PDFURL, "url", "", "PDF URL")
	f.StringVar(&params.Collection, "collection", "", "collection name")
	f.StringVar(&file, "file", "", "local PDF to copy into the library")
	return cmd
}

func newDOICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doi <doi>",
		Short: "Add a paper from its CrossRef record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.crossref().LookupDOI(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			p, err := a.store.AddPaper(cmd.Context(), library.AddPaperParams{
				Title:      r.Title,
				Authors:    r.Authors,
				Source:     r.Journal,
				Year:       r.Year,
				DOI:        r.DOI,
				PDFURL:     r.PDFURL,
				Provenance: model.ProvenanceDOI,
			})
			if err != nil {
				return err
			}
			printPaper(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var collection string
	var unread bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List papers, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib := a.store.Snapshot()
			papers := lib.Papers
			if collection != "" {
				papers = lib.PapersInCollection(collection)
			}
			for _, p := range papers {
				if unread && p.ReadStatus != model.Unread {
					continue
				}
				printPaperLine(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "only papers filed under this collection")
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread papers")
	return cmd
}

func newStarCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "star <paper>",
		Short: "Toggle the star of a paper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.resolvePaper(args[0])
			if err != nil {
				return err
			}
			if p, err = a.store.ToggleStar(cmd.Context(), p.ID); err != nil {
				return err
			}
			state := "unstarred"
			if p.Starred {
				state = "starred"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state, p.Title)
			return nil
		},
	}
}

func newReadCmd(a *app) *cobra.Command {
	var unread bool

	cmd := &cobra.Command{
		Use:   "read <paper>",
		Short: "Mark a paper read (or unread)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.resolvePaper(args[0])
			if err != nil {
				return err
			}
			status := model.Read
			if unread {
				status = model.Unread
			}
			if p, err = a.store.SetReadStatus(cmd.Context(), p.ID, status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", p.Title, p.ReadStatus)
			return nil
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "mark unread instead")
	return cmd
}

func newOpenCmd(a *app) *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "open <paper>",
		Short: "Open a paper, preferring the local copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.resolvePaper(args[0])
			if err != nil {
				return err
			}
			uri, err := a.store.OpenPaper(cmd.Context(), p.ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), uri)
			if !printOnly {
				openURL(uri)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "only print the location")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <paper>",
		Short: "Delete a paper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.resolvePaper(args[0])
			if err != nil {
				return err
			}
			if err := a.store.DeletePaper(cmd.Context(), p.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", p.Title)
			return nil
		},
	}
}

func newMoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "move <paper> <collection>",
		Short: "File a paper under a collection",
		Long:  "File a paper under a collection. Known collections: " + strings.Join(model.Collections, ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.resolvePaper(args[0])
			if err != nil {
				return err
			}
			if p, err = a.store.MoveToCollection(cmd.Context(), p.ID, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s moved to %s\n", p.Title, p.Collection)
			return nil
		},
	}
}

func newDownloadCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "download [paper]",
		Short: "Download the PDF of a paper, or of every paper with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			m := a.materializer()

			if all {
				results := m.DownloadAll(cmd.Context(), func(completed, total int) {
					fmt.Fprintf(out, "\r%d/%d", completed, total)
				})
				if len(results) > 0 {
					fmt.Fprintln(out)
				}
				failed := 0
				for _, r := range results {
					if r.Err != nil {
						failed++
						fmt.Fprintf(out, "failed  %s: %v\n", r.Paper.Title, r.Err)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d downloads failed", failed, len(results))
				}
				fmt.Fprintf(out, "downloaded %d papers\n", len(results))
				return nil
			}

			if len(args) == 0 {
				return fmt.Errorf("name a paper or pass --all")
			}
			p, err := a.resolvePaper(args[0])
			if err != nil {
				return err
			}
			path, err := m.DownloadPaper(cmd.Context(), p.ID, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "saved %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "download every paper without a local copy")
	return cmd
}

func printPaperLine(w io.Writer, p model.Paper) {
	star := " "
	if p.Starred {
		star = "*"
	}
	local := ""
	if p.LocalURI != nil {
		local = " [local]"
	}
	fmt.Fprintf(w, "%s %s  %s (%s, %s) [%s]%s\n", star, p.ID, p.Title, p.Authors, p.Year, p.Tag, local)
}

func printPaper(w io.Writer, p model.Paper) {
	fmt.Fprintf(w, "id:       %s\n", p.ID)
	fmt.Fprintf(w, "title:    %s\n", p.Title)
	fmt.Fprintf(w, "authors:  %s\n", p.Authors)
	fmt.Fprintf(w, "journal:  %s\n", p.Source)
	fmt.Fprintf(w, "year:     %s\n", p.Year)
	fmt.Fprintf(w, "pages:    %s\n", p.Pages)
	fmt.Fprintf(w, "tag:      %s\n", p.Tag)
	if p.DOI != "" {
		fmt.Fprintf(w, "doi:      %s\n", p.DOI)
	}
	if p.PDFURL != nil {
		fmt.Fprintf(w, "pdf:      %s\n", *p.PDFURL)
	}
	if p.LocalURI != nil {
		fmt.Fprintf(w, "local:    %s\n", *p.LocalURI)
	}
}

// paramsFromResult maps a remote search result onto a new paper.
func paramsFromResult(r metadata.Result) library.AddPaperParams {
	return library.AddPaperParams{
		Title:      r.Title,
		Authors:    r.Authors,
		Source:     r.Journal,
		Year:       r.Year,
		DOI:        r.DOI,
		PDFURL:     r.PDFURL,
		Provenance: model.ProvenanceRemote,
	}
}
