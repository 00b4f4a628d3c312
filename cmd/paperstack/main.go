package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nikbrunner/paperstack/internal/library"
	"github.com/nikbrunner/paperstack/internal/logging"
	"github.com/nikbrunner/paperstack/internal/materialize"
	"github.com/nikbrunner/paperstack/internal/metadata"
	"github.com/nikbrunner/paperstack/internal/model"
	"github.com/nikbrunner/paperstack/internal/storage"
)

func main() {
	a := &app{}
	root := newRootCmd(a)
	err := root.ExecuteContext(context.Background())
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds everything a command needs. It is filled in by the root
// command before any subcommand runs.
type app struct {
	configPath string
	dataDir    string
	backend    string
	logLevel   string

	cfg   *storage.Config
	log   *logrus.Logger
	db    storage.Backend
	store *library.Store
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "paperstack",
		Short:         "Keep your papers, folders and favorites in one place",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.config/paperstack/config.yaml)")
	flags.StringVar(&a.dataDir, "data-dir", "", "data directory")
	flags.StringVar(&a.backend, "backend", "", "storage backend: sqlite, bolt or json")
	flags.StringVar(&a.logLevel, "log-level", "", "log level")

	root.AddCommand(
		newAddCmd(a),
		newDOICmd(a),
		newListCmd(a),
		newStarCmd(a),
		newReadCmd(a),
		newOpenCmd(a),
		newDeleteCmd(a),
		newMoveCmd(a),
		newDownloadCmd(a),
		newFolderCmd(a),
		newSearchCmd(a),
		newFindCmd(a),
		newFavoritesCmd(a),
		newAuthorsCmd(a),
		newJournalsCmd(a),
		newRecentCmd(a),
		newSettingsCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newDeleteAllCmd(a),
		newPendingCmd(a),
		newSyncCmd(a),
		newRecountCmd(a),
	)
	return root
}

// open loads the config, applies flag overrides and loads the library.
func (a *app) open(ctx context.Context) error {
	path := a.configPath
	if path == "" {
		var err error
		if path, err = storage.DefaultConfigFilePath(); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}
	cfg, err := storage.LoadConfig(path)
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
		cfg.DocumentsDir = ""
	}
	if a.backend != "" {
		cfg.Backend = a.backend
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if cfg.DocumentsDir == "" {
		cfg.DocumentsDir = filepath.Join(cfg.DataDir, "documents")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if a.log, err = logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if a.db, err = storage.OpenBackend(cfg); err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{"backend": cfg.Backend, "dir": cfg.DataDir}).Debug("opened library")

	a.store = library.NewStore(a.db, library.Options{
		Logger:       a.log,
		ShareBaseURL: cfg.ShareBaseURL,
	})
	return a.store.Load(ctx)
}

func (a *app) close() {
	if a.store != nil && a.store.HasUnsavedChanges() {
		a.log.Warnf("%d unsaved changes are lost", len(a.store.Pending()))
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && a.log != nil {
			a.log.WithError(err).Warn("close library")
		}
	}
}

func (a *app) clientOptions(base string) metadata.ClientOptions {
	return metadata.ClientOptions{
		BaseURL: base,
		Mailto:  a.cfg.Mailto,
		Timeout: a.cfg.FetchTimeout,
		Retries: a.cfg.FetchRetries,
		Logger:  a.log,
	}
}

func (a *app) crossref() *metadata.CrossrefClient {
	return metadata.NewCrossrefClient(a.clientOptions(a.cfg.CrossrefURL))
}

func (a *app) arxiv() *metadata.ArxivClient {
	return metadata.NewArxivClient(a.clientOptions(a.cfg.ArxivURL))
}

func (a *app) materializer() *materialize.Materializer {
	return materialize.New(a.store, materialize.Options{
		Dir:         a.cfg.DocumentsDir,
		Concurrency: a.cfg.DownloadConcurrency,
		Logger:      a.log,
	})
}

// resolvePaper finds a paper by id or unique id prefix.
func (a *app) resolvePaper(ref string) (model.Paper, error) {
	if p, err := a.store.Paper(ref); err == nil {
		return p, nil
	}
	var found []model.Paper
	for _, p := range a.store.Papers() {
		if strings.HasPrefix(strings.ToLower(p.ID), strings.ToLower(ref)) {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return model.Paper{}, fmt.Errorf("no paper %q", ref)
	case 1:
		return found[0], nil
	}
	return model.Paper{}, fmt.Errorf("%q matches %d papers", ref, len(found))
}

// openURL opens a URL or file in the default application.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	}
	if cmd != nil {
		_ = cmd.Start()
	}
}
