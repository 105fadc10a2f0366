package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/internal/adapters/file"
	"github.com/aretw0/strata/internal/config"
	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/adapters/redis"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/graph"
	"github.com/aretw0/strata/pkg/observability"
	"github.com/aretw0/strata/pkg/persistence"
	"github.com/aretw0/strata/pkg/persistence/middleware"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/session"
	"github.com/spf13/cobra"
)

// env is what every command needs: the merged configuration, a logger and
// the session manager over the configured store.
type env struct {
	cfg     config.Config
	session string
	logger  *slog.Logger
	manager *session.Manager
	close   func() error
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if cmd.Flags().Changed("store") {
		cfg.Store.Backend, _ = cmd.Flags().GetString("store")
	}
	if cmd.Flags().Changed("dir") {
		cfg.Store.Path, _ = cmd.Flags().GetString("dir")
	}
	if cmd.Flags().Changed("session") {
		cfg.Session, _ = cmd.Flags().GetString("session")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	return cfg, cfg.Validate()
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Level())

	store, locker, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	opts := []session.Option{session.WithLogger(logger)}
	if locker != nil {
		opts = append(opts, session.WithLocker(locker))
	}
	return &env{
		cfg:     cfg,
		session: cfg.SessionID(),
		logger:  logger,
		manager: session.NewManager(store, opts...),
		close:   closeStore,
	}, nil
}

func openStore(cfg config.Config) (ports.StackStore, ports.DistributedLocker, func() error, error) {
	var (
		store  ports.StackStore
		locker ports.DistributedLocker
		closer = func() error { return nil }
	)

	switch cfg.Store.Backend {
	case config.BackendMemory:
		store = memory.NewStore()
	case config.BackendRedis:
		rc := cfg.Store.Redis
		rs := redis.New(rc.Address, rc.Password, rc.DB, redis.WithPrefix(rc.Prefix), redis.WithTTL(rc.TTL))
		store = rs
		locker = redis.NewLocker(rs.Client(), rc.Prefix)
		closer = rs.Close
	default:
		store = file.New(cfg.Store.Path)
	}

	var mws []middleware.Middleware
	if len(cfg.Store.Redact) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.Store.Redact))
	}
	key, err := cfg.EncryptionKey()
	if err != nil {
		closer()
		return nil, nil, nil, err
	}
	if key != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	return middleware.Chain(store, mws...), locker, closer, nil
}

// openWorkspace builds a workspace for the env's session. The dataset comes
// from the config. The session is reserved in the store first; its stack is
// restored, or read from the configured filters file when the session is new.
func (e *env) openWorkspace(ctx context.Context, extra ...strata.Option) (*strata.Workspace, *observability.Metrics, error) {
	_, created, err := e.manager.LoadOrStart(ctx, e.session)
	if err != nil {
		return nil, nil, fmt.Errorf("start session %s: %w", e.session, err)
	}

	g := graph.New(false)
	if e.cfg.Graph != "" {
		loaded, err := graph.Load(e.cfg.Graph)
		if err != nil {
			return nil, nil, err
		}
		g = loaded
	}

	metrics := observability.NewMetrics()
	snap := persistence.NewSnapshotter(e.manager, e.session,
		persistence.WithLogger(e.logger),
		persistence.WithDataset(e.cfg.Graph),
	)

	opts := []strata.Option{
		strata.WithLogger(e.logger),
		strata.WithGraph(g),
		strata.WithDebounce(e.cfg.Debounce),
		strata.WithMetrics(metrics),
		strata.WithSnapshotter(snap),
	}
	ws := strata.New(append(opts, extra...)...)

	if _, err := ws.Restore(ctx); err != nil {
		ws.Close()
		return nil, nil, fmt.Errorf("restore session %s: %w", e.session, err)
	}
	if created && e.cfg.Filters != "" {
		if err := e.reloadFilters(ws); err != nil {
			ws.Close()
			return nil, nil, err
		}
	}
	e.logger.Info("workspace ready", "session_id", e.session, "created", created, "nodes", g.Order(), "edges", g.Size())
	return ws, metrics, nil
}

func (e *env) reloadFilters(ws *strata.Workspace) error {
	stack, err := filter.LoadFile(e.cfg.Filters)
	if err != nil {
		return err
	}
	var errs []error
	for _, def := range stack.Past {
		if err := filter.Validate(def); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: %w", e.cfg.Filters, err)
	}
	ws.Filters().Set(stack)
	return nil
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
