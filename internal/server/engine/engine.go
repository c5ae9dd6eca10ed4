// Package engine implements the store contract on a relational database.
// One Engine serves every tenant; ForTenant returns the per-tenant view that
// satisfies store.Store. The same code runs against the embedded sqlite
// deployment and a standalone PostgreSQL server, differing only in driver,
// placeholder format and migration directory.
package engine

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/logging"
	"github.com/plainlyhq/plainly-core/internal/server/migrate"
	"github.com/plainlyhq/plainly-core/internal/server/migrations"
	"github.com/plainlyhq/plainly-core/internal/store"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Dialect names, used to pick driver, placeholders and migration dir.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

type Engine struct {
	db      *sqlx.DB
	sb      sq.StatementBuilderType
	dialect string
	log     logging.Logger
}

// Open connects to the database behind dsn, runs the base schema migrations
// and the legacy upgrade, and returns the engine. A DSN starting with
// postgres:// (or postgresql://) selects the pgx driver; anything else is a
// sqlite file path.
func Open(ctx context.Context, dsn string, log logging.Logger) (*Engine, error) {
	if log == nil {
		log = logging.Nop()
	}

	dialect := DialectSQLite
	driver := "sqlite"
	sb := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialect = DialectPostgres
		driver = "pgx"
		sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	e := &Engine{db: db, sb: sb, dialect: dialect, log: log}
	if err := e.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrMigration, err)
	}
	if err := migrate.Run(ctx, db, dialect, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	gooseDialect := "sqlite3"
	if e.dialect == DialectPostgres {
		gooseDialect = "pgx"
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return err
	}
	return goose.UpContext(ctx, e.db.DB, e.dialect)
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// DB exposes the underlying handle for the auth services sharing this
// connection pool.
func (e *Engine) DB() *sqlx.DB { return e.db }

// Dialect returns the active dialect name.
func (e *Engine) Dialect() string { return e.dialect }

// ForTenant returns the store.Store view scoped to one tenant.
func (e *Engine) ForTenant(uid int64) *TenantStore {
	return &TenantStore{e: e, uid: uid}
}

// TenantStore is the per-tenant face of the engine. Every query it builds
// carries the tenant filter.
type TenantStore struct {
	e   *Engine
	uid int64
}

var _ store.Store = (*TenantStore)(nil)

// Close on a tenant view is a no-op; the engine owns the connection pool.
func (t *TenantStore) Close() error { return nil }

// UID returns the tenant this view is scoped to.
func (t *TenantStore) UID() int64 { return t.uid }
