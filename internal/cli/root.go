// Package cli implements the kittpages command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kittclouds/kittpages/internal/config"
	"github.com/kittclouds/kittpages/internal/logging"
	"github.com/kittclouds/kittpages/internal/remote"
	"github.com/kittclouds/kittpages/internal/store"
	"github.com/kittclouds/kittpages/pkg/docstore"
)

// app holds global flags and the resolved configuration of one invocation.
type app struct {
	configPath string
	remoteURL  string
	jsonOutput bool

	cfg *config.Config
	log zerolog.Logger
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{log: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "kittpages",
		Short: "kittpages - nested pages made of blocks",
		Long: `kittpages keeps a tree of pages, each a list of typed content blocks.

Pages live in a SQLite or MySQL database, or behind a remote
'kittpages serve' instance (--remote). Published pages are served
read-only at /preview/<slug>.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file")
	root.PersistentFlags().StringVar(&a.remoteURL, "remote", "", "Base URL of a kittpages server (overrides store.remote)")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output in JSON format")

	root.AddCommand(
		newServeCmd(a),
		newTreeCmd(a),
		newNewCmd(a),
		newShowCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newArchiveCmd(a),
		newUnarchiveCmd(a),
		newRemoveCmd(a),
		newMoveCmd(a),
		newDuplicateCmd(a),
		newFavoriteCmd(a),
		newPublishCmd(a),
		newLinkCmd(a),
		newTemplatesCmd(a),
		newBackupCmd(a),
		newRestoreCmd(a),
	)
	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCommand().Execute()
}

func (a *app) setup(cmd *cobra.Command) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFrom(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.remoteURL != "" {
		a.cfg.Store.Remote = a.remoteURL
	}

	a.log, err = logging.New(a.cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}
	return nil
}

// =============================================================================
// Backends
// =============================================================================

// openSQL opens the configured database. The sqlite parent directory is
// created on first use.
func (a *app) openSQL() (*store.SQLStore, error) {
	db := a.cfg.Database
	dsn := db.ConnString()
	if db.Driver == store.DriverSQLite && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return store.Open(db.Driver, dsn)
}

// openRepository returns the remote client when one is configured and the
// SQL store otherwise. close releases it.
func (a *app) openRepository() (repo store.Repository, close func(), err error) {
	if a.cfg.Store.Remote != "" {
		a.log.Debug().Str("remote", a.cfg.Store.Remote).Msg("using remote backend")
		return remote.NewClient(a.cfg.Store.Remote), func() {}, nil
	}
	db, err := a.openSQL()
	if err != nil {
		return nil, nil, err
	}
	return db, func() { db.Close() }, nil
}

// session is a loaded document tree store plus the sync failures it has
// reported so far.
type session struct {
	*docstore.Store
	close func()

	mu   sync.Mutex
	errs []error
}

// openStore loads every document into a tree store.
func (a *app) openStore(ctx context.Context) (*session, error) {
	repo, closeRepo, err := a.openRepository()
	if err != nil {
		return nil, err
	}
	sess := &session{close: closeRepo}
	sess.Store = docstore.New(repo,
		docstore.WithLogger(a.log),
		docstore.WithOwner(a.cfg.Store.Owner),
		docstore.WithHistoryLimit(a.cfg.Store.HistoryLimit),
		docstore.WithSyncErrorHandler(func(e docstore.SyncError) {
			sess.mu.Lock()
			sess.errs = append(sess.errs, e)
			sess.mu.Unlock()
		}),
	)
	if err := sess.FetchAll(ctx); err != nil {
		closeRepo()
		return nil, fmt.Errorf("failed to load pages: %w", err)
	}
	return sess, nil
}

// finish waits for pending backend writes and reports any that failed.
func (s *session) finish() error {
	s.Wait()
	s.close()
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}

// withStore runs fn against a loaded store and waits for its writes.
func (a *app) withStore(cmd *cobra.Command, fn func(s *session) error) error {
	s, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		s.Wait()
		s.close()
		return err
	}
	return s.finish()
}

// lookup resolves a page by id or slug.
func (s *session) lookup(ref string) (docstore.Document, error) {
	if d, ok := s.Document(ref); ok {
		return d, nil
	}
	if id, ok := decodeRef(ref); ok {
		if d, ok := s.Document(id); ok {
			return d, nil
		}
	}
	return docstore.Document{}, fmt.Errorf("page %q not found", ref)
}

func (a *app) printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
