package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/billsync/internal/auth"
	"github.com/dmitrijs2005/billsync/internal/config"
	"github.com/dmitrijs2005/billsync/internal/connectivity"
	"github.com/dmitrijs2005/billsync/internal/device"
	"github.com/dmitrijs2005/billsync/internal/filex"
	"github.com/dmitrijs2005/billsync/internal/logging"
	"github.com/dmitrijs2005/billsync/internal/remote"
	"github.com/dmitrijs2005/billsync/internal/remote/memstore"
	"github.com/dmitrijs2005/billsync/internal/remote/pgstore"
	"github.com/dmitrijs2005/billsync/internal/repositories/metadata"
	"github.com/dmitrijs2005/billsync/internal/services"
	"github.com/dmitrijs2005/billsync/internal/store"
	"github.com/dmitrijs2005/billsync/internal/syncer"
)

type App struct {
	config *config.Config
	log    logging.Logger

	db      *store.DB
	remote  remote.DocumentStore
	closers []func()

	session      *auth.Session
	monitor      *connectivity.Monitor
	orchestrator *syncer.Orchestrator
	trigger      *syncer.Trigger
	billing      *services.Billing

	reader *bufio.Reader
	out    io.Writer
}

// New opens the local store and the remote store named by cfg and wires the
// sync engine. An empty RemoteDSN selects an in-process remote store, which
// is enough to work offline-first on a single device.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if err := filex.EnsureParentDir(cfg.DBPath); err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	var (
		docs    remote.DocumentStore
		closers = []func(){func() { _ = db.Close() }}
	)
	if cfg.RemoteDSN == "" {
		log.Info(ctx, "no remote DSN configured, using in-memory remote store")
		docs = memstore.New()
	} else {
		pg, err := pgstore.Open(ctx, cfg.RemoteDSN, log)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		docs = pg
		closers = append(closers, pg.Close)
	}

	a := assemble(ctx, cfg, log, db, docs, os.Stdin, os.Stdout)
	a.closers = closers
	return a, nil
}

// assemble wires the components around an opened local and remote store.
func assemble(ctx context.Context, cfg *config.Config, log logging.Logger, db *store.DB, docs remote.DocumentStore, in io.Reader, out io.Writer) *App {
	meta := metadata.NewSQLiteRepository(db.SQL())
	dev := device.NewProvider(meta)
	session := auth.NewSession(meta, []byte(cfg.AuthSecret), log)
	monitor := connectivity.NewMonitor(docs, cfg.OnlineCheckInterval, log)

	deps := syncer.Deps{
		Local:  db,
		Remote: docs,
		Users:  session,
		Conn:   monitor,
		Device: dev,
		Log:    log,
	}
	syncers := syncer.NewCollectionSyncers(deps)
	listeners := syncer.NewListeners(deps)
	orch := syncer.NewOrchestrator(deps, syncers, listeners, meta, cfg.AutoSyncInterval)
	trigger := syncer.NewTrigger(ctx, syncers, monitor, session, cfg.RetryAttempts, cfg.RetryBaseDelay, log)

	monitor.OnReconnect(orch.Reconnected)
	session.OnChange(orch.AuthChanged)

	return &App{
		config:       cfg,
		log:          log.With("component", "app"),
		db:           db,
		remote:       docs,
		session:      session,
		monitor:      monitor,
		orchestrator: orch,
		trigger:      trigger,
		billing:      services.NewBilling(db, dev, session, trigger, log),
		reader:       bufio.NewReader(in),
		out:          out,
	}
}

// Run restores the previous session, starts connectivity monitoring and
// auto-sync, and serves commands until the input ends or the user exits.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.close()

	if err := a.session.Restore(ctx); err != nil {
		a.println("Stored session expired, please log in again.")
	}

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		a.monitor.Run(ctx)
	}()

	if err := a.orchestrator.Start(ctx); err != nil {
		return err
	}

	a.println("Welcome to billsync (type 'help' for commands)")
	runREPL(ctx, a, a.status, a.reader, a.out)

	a.orchestrator.Stop()
	cancel()
	a.trigger.Wait()
	<-monitorDone
	return nil
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *App) isLoggedIn() bool {
	_, ok := a.session.CurrentUser()
	return ok
}

// status is the prompt decoration: user and connectivity.
func (a *App) status() string {
	s := "signed out"
	if id, ok := a.session.CurrentUser(); ok {
		s = id
	}
	return fmt.Sprintf("(%s %s)", s, a.orchestrator.Status())
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
