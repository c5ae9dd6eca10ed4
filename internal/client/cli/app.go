// Package cli is the interactive terminal client. It drives the store
// contract through a registry of backends: the embedded local engine in
// local mode, or the network store with its offline mirror in remote mode.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/plainlyhq/plainly-core/internal/client/config"
	"github.com/plainlyhq/plainly-core/internal/client/netstore"
	"github.com/plainlyhq/plainly-core/internal/client/syncstore"
	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/filex"
	"github.com/plainlyhq/plainly-core/internal/logging"
	"github.com/plainlyhq/plainly-core/internal/store"
	"github.com/plainlyhq/plainly-core/internal/store/local"
)

type App struct {
	config   *config.Config
	registry *store.Registry
	remote   *netstore.Client
	store    store.Store
	mode     store.Mode
	uid      int64
	userName string
	reader   *bufio.Reader
	log      logging.Logger
}

func NewApp(cfg *config.Config) (*App, error) {
	dir, err := filex.EnsureSubdDir(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data dir init error: %w", err)
	}

	a := &App{
		config: cfg,
		reader: bufio.NewReader(os.Stdin),
		log:    logging.Nop(),
	}

	switch cfg.Mode {
	case config.ModeLocal:
		a.mode = store.ModeLocal
	case config.ModeRemote:
		a.mode = store.ModeRemote
		remote, err := netstore.New(cfg.ServerURL)
		if err != nil {
			return nil, err
		}
		a.remote = remote
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", common.ErrValidation, cfg.Mode)
	}

	a.registry = store.NewRegistry(func(ctx context.Context, mode store.Mode, uid int64) (store.Store, error) {
		switch mode {
		case store.ModeLocal:
			return local.Open(ctx, filepath.Join(dir, "local.db"), uid, store.SourceLocal)
		case store.ModeRemote:
			mirror, err := local.Open(ctx, filepath.Join(dir, fmt.Sprintf("mirror-%d.db", uid)), uid, store.SourceRemote)
			if err != nil {
				return nil, err
			}
			return syncstore.New(a.remote, mirror, a.log), nil
		default:
			return nil, fmt.Errorf("%w: unknown mode %q", common.ErrValidation, mode)
		}
	})

	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.registry.Close()

	// local mode needs no login; the store is ready immediately
	if a.mode == store.ModeLocal {
		s, err := a.registry.Get(ctx, store.ModeLocal, common.LocalUserID)
		if err != nil {
			return err
		}
		a.store = s
	}

	fmt.Println("plainly CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
	return nil
}

func (a *App) getStatus() string {
	s := string(a.mode)
	if a.userName != "" {
		s = a.userName + " " + s
	}
	return "(" + s + ")"
}

// isReady reports whether a store is attached; in remote mode that means a
// successful login.
func (a *App) isReady() bool {
	return a.store != nil
}

func (a *App) isRemote() bool {
	return a.mode == store.ModeRemote
}
