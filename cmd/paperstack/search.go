package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gosimple/slug"
	"github.com/spf13/cobra"

	"github.com/nikbrunner/paperstack/internal/metadata"
	"github.com/nikbrunner/paperstack/internal/model"
	"github.com/nikbrunner/paperstack/internal/picker"
	"github.com/nikbrunner/paperstack/internal/search"
)

func (a *app) aggregator(sources []string) (*metadata.Aggregator, error) {
	if len(sources) == 0 {
		sources = []string{string(metadata.SourceCrossref), string(metadata.SourceArxiv)}
	}
	var searchers []metadata.Searcher
	for _, s := range sources {
		switch metadata.Source(strings.ToLower(s)) {
		case metadata.SourceCrossref:
			searchers = append(searchers, a.crossref())
		case metadata.SourceArxiv:
			searchers = append(searchers, a.arxiv())
		default:
			return nil, fmt.Errorf("unknown source %q", s)
		}
	}
	return metadata.NewAggregator(a.log, a.cfg.FetchTimeout, searchers...), nil
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		mode        string
		limit       int
		sources     []string
		pick        bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search CrossRef and arXiv",
		Long: `Search CrossRef and arXiv. Results you have starred are marked.
With --pick the results open in a picker and the chosen ones are added.
With --interactive queries are read line by line from stdin; each line
replaces the previous one and only the latest results are printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := metadata.ParseMode(mode)
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = a.cfg.SearchRows
			}
			agg, err := a.aggregator(sources)
			if err != nil {
				return err
			}

			if interactive {
				return a.searchInteractive(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), agg, m, limit)
			}

			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return errors.New("search needs a query")
			}
			if err := a.store.PushRecentSearch(cmd.Context(), text); err != nil {
				a.log.WithError(err).Warn("remember search")
			}

			q := metadata.Query{Text: text, Mode: m, Limit: limit}
			res, err := agg.Search(cmd.Context(), q, a.store.Snapshot().StarredKeys())
			if err != nil {
				return err
			}
			for src, ferr := range res.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s unavailable: %v\n", src, ferr)
			}

			if !pick {
				printResults(cmd.OutOrStdout(), res.Items)
				return nil
			}
			if len(res.Items) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No papers found for '%s'\n", text)
				return nil
			}
			chosen, err := picker.Run(picker.FromResults(res.Items), text)
			if err != nil {
				return fmt.Errorf("run picker: %w", err)
			}
			for _, i := range chosen {
				p, err := a.store.AddPaper(cmd.Context(), paramsFromResult(res.Items[i]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", p.Title, p.ID)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&mode, "mode", "title", "match on title, author or keyword")
	f.IntVar(&limit, "limit", 0, "results per source (default search_rows)")
	f.StringSliceVar(&sources, "source", nil, "sources to query: crossref, arxiv")
	f.BoolVar(&pick, "pick", false, "choose results to add")
	f.BoolVarP(&interactive, "interactive", "i", false, "read queries from stdin")
	return cmd
}

// searchInteractive feeds stdin lines through a debounced session and
// prints each update as it arrives.
func (a *app) searchInteractive(ctx context.Context, in io.Reader, out io.Writer, agg *metadata.Aggregator, mode metadata.Mode, limit int) error {
	starred := a.store.Snapshot().StarredKeys()
	updated := make(chan struct{}, 1)

	session := metadata.NewSession(func(ctx context.Context, q metadata.Query) (metadata.Results, error) {
		return agg.Search(ctx, q, starred)
	}, a.cfg.SearchDebounce, func(u metadata.Update) {
		if u.Err != nil {
			fmt.Fprintf(out, "error: %v\n", u.Err)
		} else {
			fmt.Fprintf(out, "== %s\n", u.Results.Query.Text)
			printResults(out, u.Results.Items)
		}
		select {
		case updated <- struct{}{}:
		default:
		}
	})
	defer session.Close()

	var last string
	var lastSeq uint64
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = strings.TrimSpace(scanner.Text())
		lastSeq = session.Set(metadata.Query{Text: last, Mode: mode, Limit: limit})
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if last == "" {
		return nil
	}

	// the final query is never superseded, so its update always arrives
	for {
		if u, ok := session.Latest(); ok && u.Seq == lastSeq {
			break
		}
		select {
		case <-updated:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := a.store.PushRecentSearch(ctx, last); err != nil {
		a.log.WithError(err).Warn("remember search")
	}
	return nil
}

func printResults(w io.Writer, results []metadata.Result) {
	for i, r := range results {
		star := " "
		if r.Starred {
			star = "*"
		}
		fmt.Fprintf(w, "%s %2d. %s\n", star, i+1, r.Title)
		detail := []string{string(r.Source)}
		for _, s := range []string{r.Authors, r.Journal, r.Year, r.DOI} {
			if s != "" {
				detail = append(detail, s)
			}
		}
		fmt.Fprintf(w, "      %s\n", strings.Join(detail, " | "))
	}
}

func newFindCmd(a *app) *cobra.Command {
	var field string
	var pick bool

	cmd := &cobra.Command{
		Use:   "find <query>",
		Short: "Fuzzy search the local library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fld, ok := search.ParseField(field)
			if !ok {
				return fmt.Errorf("unknown field %q", field)
			}
			query := strings.Join(args, " ")
			results := search.FuzzySearchPapers(a.store.Papers(), query, fld)
			if len(results) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No papers found for '%s'\n", query)
				return nil
			}
			if !pick {
				for _, r := range results {
					printPaperLine(cmd.OutOrStdout(), *r.Paper)
				}
				return nil
			}

			var chosen *model.Paper
			if len(results) == 1 {
				chosen = results[0].Paper
			} else {
				sel, err := picker.Run(picker.FromPapers(results), query)
				if err != nil {
					return fmt.Errorf("run picker: %w", err)
				}
				if len(sel) == 0 {
					return nil
				}
				chosen = results[sel[0]].Paper
			}

			uri, err := a.store.OpenPaper(cmd.Context(), chosen.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opening: %s\n", chosen.Title)
			openURL(uri)
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", "title", "title, author, journal or all")
	cmd.Flags().BoolVar(&pick, "open", false, "pick a match and open it")
	return cmd
}

func newFavoritesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "favorites",
		Short: "List starred papers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range a.store.Favorites() {
				printPaperLine(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func newAuthorsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authors",
		Short: "List favorite authors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, au := range a.store.FavoriteAuthors() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", au.ID, au.Name)
			}
			return nil
		},
	}

	var affiliation string
	toggle := &cobra.Command{
		Use:   "toggle <name>",
		Short: "Follow or unfollow an author",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			on, err := a.store.ToggleFavoriteAuthor(cmd.Context(), model.FavoriteAuthor{
				ID:          slug.Make(name),
				Name:        name,
				Affiliation: affiliation,
			})
			if err != nil {
				return err
			}
			printToggle(cmd.OutOrStdout(), name, on)
			return nil
		},
	}
	toggle.Flags().StringVar(&affiliation, "affiliation", "", "affiliation of the author")

	var limit int
	papers := &cobra.Command{
		Use:   "papers <name>",
		Short: "Recent arXiv papers of an author, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			for _, au := range a.store.FavoriteAuthors() {
				if au.ID == name {
					name = au.Name
				}
			}
			results, err := a.arxiv().AuthorPapers(cmd.Context(), name, limit)
			if err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), metadata.Annotate(results, a.store.Snapshot().StarredKeys()))
			return nil
		},
	}
	papers.Flags().IntVar(&limit, "limit", metadata.DefaultLimit, "number of papers")

	cmd.AddCommand(toggle, papers)
	return cmd
}

func newJournalsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journals",
		Short: "List favorite journals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, j := range a.store.FavoriteJournals() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", j.ID, j.Name)
			}
			return nil
		},
	}

	toggle := &cobra.Command{
		Use:   "toggle <name>",
		Short: "Follow or unfollow a journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			on, err := a.store.ToggleFavoriteJournal(cmd.Context(), model.FavoriteJournal{ID: slug.Make(name), Name: name})
			if err != nil {
				return err
			}
			printToggle(cmd.OutOrStdout(), name, on)
			return nil
		},
	}

	cmd.AddCommand(toggle)
	return cmd
}

func newRecentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recent",
		Short: "List recent searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, r := range a.store.RecentSearches() {
				fmt.Fprintln(cmd.OutOrStdout(), r.Label)
			}
			return nil
		},
	}
}

func printToggle(w io.Writer, name string, on bool) {
	if on {
		fmt.Fprintf(w, "following %s\n", name)
		return
	}
	fmt.Fprintf(w, "unfollowed %s\n", name)
}
