// Package local implements the store contract on an embedded sqlite database.
// It serves two roles: the standalone store in local-only mode, and the
// offline mirror the cache synchronizer writes remote snapshots into. One
// Engine instance is scoped to a single (tenant, source) pair and every query
// it runs carries that scope filter.
package local

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/dbx"
	"github.com/plainlyhq/plainly-core/internal/logging"
	"github.com/plainlyhq/plainly-core/internal/store"
	"github.com/plainlyhq/plainly-core/internal/store/local/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// ChangeFunc receives a "data changed" signal after a successful mutation:
// kind is "category", "document" or "config", id the affected record id.
// The search/indexing pipeline subscribes through this hook.
type ChangeFunc func(kind, id string)

// Engine is the embedded local implementation of store.Store.
type Engine struct {
	db       *sql.DB
	uid      int64
	source   store.Source
	log      logging.Logger
	onChange ChangeFunc
}

var _ store.Store = (*Engine)(nil)

type Option func(*Engine)

func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithChangeNotifier installs the mutation callback. It fires after the
// mutating transaction has committed, never during the legacy backfill.
func WithChangeNotifier(fn ChangeFunc) Option {
	return func(e *Engine) { e.onChange = fn }
}

// Open opens (creating if needed) the sqlite database at dsn, upgrades any
// legacy pre-UUID tables it finds there, runs the schema migrations and
// returns an engine scoped to (uid, source).
func Open(ctx context.Context, dsn string, uid int64, source store.Source, opts ...Option) (*Engine, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	e := &Engine{db: db, uid: uid, source: source, log: logging.Nop()}
	for _, opt := range opts {
		opt(e)
	}

	// Legacy tables must move out of the way before goose creates the
	// current shape under the same names.
	if err := e.prepareLegacy(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrMigration, err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrMigration, err)
	}
	if err := e.importLegacy(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrMigration, err)
	}

	return e, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// UID returns the tenant this engine is scoped to.
func (e *Engine) UID() int64 { return e.uid }

// Source returns the source tag this engine reads and writes under.
func (e *Engine) Source() store.Source { return e.source }

func (e *Engine) notify(kind, id string) {
	if e.onChange != nil {
		e.onChange(kind, id)
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// nextVersion mints a new version for writes this engine originates. The
// mirror (source=remote) never mints: it stores server-assigned versions as
// given, so a zero stays zero until the server says otherwise.
func (e *Engine) nextVersion(current int64) int64 {
	if e.source != store.SourceLocal {
		return current
	}
	return current + 1
}

// ensureDefaultCategory guarantees the tenant owns the canonical default
// category, creating it when absent. When the default display name is taken
// by an unrelated category, a numbered variant is used so the canonical row
// can still exist.
func (e *Engine) ensureDefaultCategory(ctx context.Context, q dbx.DBTX) (*store.Category, error) {
	existing, err := e.findCategory(ctx, q, store.DefaultCategoryID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := nowMillis()
	name := store.DefaultCategoryName
	for i := 2; ; i++ {
		taken, err := e.categoryNameTaken(ctx, q, name, store.DefaultCategoryID)
		if err != nil {
			return nil, err
		}
		if !taken {
			break
		}
		name = fmt.Sprintf("%s (%d)", store.DefaultCategoryName, i)
	}

	cat := &store.Category{
		UID:       e.uid,
		ID:        store.DefaultCategoryID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Source:    e.source,
		Version:   e.nextVersion(0),
	}
	_, err = q.ExecContext(ctx, `
		INSERT OR IGNORE INTO categories
			(user_id, source, category_id, name, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cat.UID, cat.Source, cat.ID, cat.Name, cat.CreatedAt, cat.UpdatedAt, cat.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure default category: %w", err)
	}
	return e.findCategory(ctx, q, store.DefaultCategoryID)
}

func (e *Engine) categoryNameTaken(ctx context.Context, q dbx.DBTX, name, excludeID string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM categories
		WHERE user_id = ? AND source = ? AND name = ? AND category_id <> ?`,
		e.uid, e.source, name, excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check category name: %w", err)
	}
	return n > 0, nil
}
