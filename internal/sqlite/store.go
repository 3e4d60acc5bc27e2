package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/loomworks/tapestry/pkg/types"
)

// DatabaseFile is the SQLite file name inside the data directory.
const DatabaseFile = "tapestry.db"

// Store is the relational persistence boundary. All mutations run inside a
// WithTx unit of work so multi-row operations (singleton check + insert,
// cascading creation, per-column audit diffs) commit or roll back together.
type Store struct {
	mu     sync.Mutex // serializes writers; sqlite allows one at a time
	db     *sql.DB
	cfg    types.Config
	logger *slog.Logger

	hookMu   sync.Mutex
	onMutate []func() // template mutation hooks (cache invalidation)
}

// Open opens (creating if needed) the database under cfg.DataDir.
// The schema is not applied; call Init.
func Open(cfg types.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	path := filepath.Join(cfg.DataDir, DatabaseFile)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", strings.TrimSpace(pragma), err)
		}
	}

	return &Store{db: db, cfg: cfg, logger: logger}, nil
}

// Init applies the schema and provisions counters for the core identifier
// prefixes. Idempotent.
func (s *Store) Init() error {
	for _, ddl := range append(append([]string{}, schemaDDL...), indexDDL...) {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return s.WithTx(func(tx *Tx) error {
		for _, prefix := range types.CorePrefixes {
			if err := tx.ProvisionPrefix(prefix, 0); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reset drops all tables and reapplies the schema. Every row, including the
// audit history, is destroyed; callers gate this behind explicit
// confirmation.
func (s *Store) Reset() error {
	s.mu.Lock()
	for _, ddl := range dropDDL {
		if _, err := s.db.Exec(ddl); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("dropping tables: %w", err)
		}
	}
	s.mu.Unlock()
	s.logger.Warn("store reset", "data_dir", s.cfg.DataDir)
	return s.Init()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Config returns the configuration the store was opened with.
func (s *Store) Config() types.Config { return s.cfg }

// OnTemplateMutation registers a hook invoked after any transaction that
// mutated a template commits. The resolver registers its cache invalidation
// here.
func (s *Store) OnTemplateMutation(hook func()) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onMutate = append(s.onMutate, hook)
}

func (s *Store) fireTemplateMutation() {
	s.hookMu.Lock()
	hooks := make([]func(), len(s.onMutate))
	copy(hooks, s.onMutate)
	s.hookMu.Unlock()
	for _, h := range hooks {
		h()
	}
}

// Tx is one unit of work. Engine operations receive a Tx and never commit
// themselves; WithTx commits on success and rolls back on any error, so a
// failure mid-cascade leaves no partial object graph behind.
type Tx struct {
	tx    *sql.Tx
	store *Store

	templateMutated bool
}

// WithTx runs fn inside a single transaction.
func (s *Store) WithTx(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	tx := &Tx{tx: sqlTx, store: s}

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	if tx.templateMutated {
		s.fireTemplateMutation()
	}
	return nil
}

// Actor returns the audit actor for this transaction.
func (t *Tx) Actor() string { return t.store.cfg.Actor }

// newUUID generates a UUID v7 surrogate row ID.
func newUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// translateConstraint maps storage-level uniqueness violations to the typed
// errors the engine exposes. Raw driver errors never leave this package for
// the constraints the engine owns.
func translateConstraint(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return err
	}
	switch {
	case strings.Contains(msg, "instances.category"):
		return types.ErrSingletonConflict
	case strings.Contains(msg, "lineage_edges.parent_uuid"):
		return types.ErrDuplicateEdge
	case strings.Contains(msg, "templates.category"):
		return fmt.Errorf("%w: duplicate composite key", types.ErrTemplateIntegrity)
	}
	return err
}
