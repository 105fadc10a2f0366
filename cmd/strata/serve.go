package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/internal/presentation/tui"
	"github.com/aretw0/strata/internal/watch"
	shttp "github.com/aretw0/strata/pkg/adapters/http"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a workspace over HTTP",
	Long: `Loads the configured graph, restores the session's filter stack and serves
the JSON API, the change stream and Prometheus metrics. With --watch the graph
and filters files are reloaded when they change.`,
	Run: func(cmd *cobra.Command, args []string) {
		e, err := setup(cmd)
		exitOnError(err)
		defer e.close()

		if cmd.Flags().Changed("port") {
			e.cfg.HTTP.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("graph") {
			e.cfg.Graph, _ = cmd.Flags().GetString("graph")
		}
		if cmd.Flags().Changed("watch") {
			e.cfg.Watch, _ = cmd.Flags().GetBool("watch")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ws, metrics, err := e.openWorkspace(ctx)
		exitOnError(err)
		defer ws.Close()

		api := shttp.NewServer(ws, shttp.WithMetrics(metrics), shttp.WithLogger(e.logger))
		defer api.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", e.cfg.HTTP.Port),
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		tui.PrintBanner(os.Stderr, strata.Version)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			e.logger.Info("HTTP server listening", "address", srv.Addr, "session_id", e.session)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				e.logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				return srv.Close()
			}
			return nil
		})
		if e.cfg.Watch {
			w, err := newWatcher(e, ws)
			exitOnError(err)
			g.Go(func() error { return w.Run(gctx) })
		}

		exitOnError(g.Wait())
		e.logger.Info("server stopped gracefully")
	},
}

func newWatcher(e *env, ws *strata.Workspace) (*watch.Watcher, error) {
	files := map[string]func(context.Context) error{}
	if e.cfg.Graph != "" {
		files[e.cfg.Graph] = func(context.Context) error {
			return ws.LoadDataset(e.cfg.Graph)
		}
	}
	if e.cfg.Filters != "" {
		files[e.cfg.Filters] = func(context.Context) error {
			return e.reloadFilters(ws)
		}
	}
	if len(files) == 0 {
		return nil, errors.New("--watch needs a graph or filters file")
	}
	return watch.New(files, watch.WithLogger(e.logger), watch.WithDelay(e.cfg.Debounce))
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringP("graph", "g", "", "Graph file to load")
	serveCmd.Flags().BoolP("watch", "w", false, "Reload the graph and filters files on change")
}
