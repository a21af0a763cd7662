// Command fern runs the game recommendation service and its batch jobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Gobusters/ectologger"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/routes"
	etlroutes "github.com/Ramsey-B/fern/pkg/routes/etl"
	"github.com/Ramsey-B/fern/pkg/routes/games"
)

var version = "dev"

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "fern",
		Short:        "Game similarity and catalog ingestion service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fern %s\n", version)
		},
	})

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			return withApp(cmd, configPath, migrate, runServe)
		},
	}
	serve.Flags().Bool("migrate", true, "apply schema migrations before serving")
	root.AddCommand(serve)

	etlCmd := &cobra.Command{
		Use:   "etl",
		Short: "Run the full ingestion pipeline once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rawg, _ := cmd.Flags().GetString("rawg")
			igdb, _ := cmd.Flags().GetString("igdb")
			return withApp(cmd, configPath, true, func(ctx context.Context, a *app) error {
				req := a.cfg.Etl.RunRequest()
				if rawg != "" {
					req.RawgPath = rawg
				}
				if igdb != "" {
					req.IgdbPath = igdb
				}
				report, err := a.orchestrator.Run(ctx, req)
				if report != nil {
					_ = printJSON(cmd, report)
				}
				return err
			})
		},
	}
	etlCmd.Flags().String("rawg", "", "RAWG catalog export (overrides etl.rawg_path)")
	etlCmd.Flags().String("igdb", "", "IGDB catalog export (overrides etl.igdb_path)")
	root.AddCommand(etlCmd)

	simCmd := &cobra.Command{
		Use:   "similarity [game-id]",
		Short: "Recompute content similarity for one game or the whole corpus",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, configPath, true, func(ctx context.Context, a *app) error {
				if len(args) == 0 {
					report, err := a.similarities.ComputeAll(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd, report)
				}
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid game id %q: %w", args[0], err)
				}
				edges, err := a.similarities.ComputeForGame(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd, edges)
			})
		},
	}
	root.AddCommand(simCmd)

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, flush, err := load(configPath)
			if err != nil {
				return err
			}
			defer flush()

			db, err := database.Open(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			return database.NewMigrationService(logger, &cfg.Migration).Migrate(db)
		},
	})

	return root
}

func load(configPath string) (*config.Config, ectologger.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, flush, err := newLogger(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, flush, nil
}

// withApp starts every dependency, runs fn until it returns or a signal arrives, then
// stops the dependencies.
func withApp(cmd *cobra.Command, configPath string, migrate bool, fn func(ctx context.Context, a *app) error) error {
	cfg, logger, flush, err := load(configPath)
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, logger, migrate)
	if err := a.start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		return err
	}

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.stop(stopCtx)
	}()

	return fn(ctx, a)
}

func runServe(ctx context.Context, a *app) error {
	var neighbors games.Neighbors
	if a.graph != nil {
		neighbors = a.graph
	}

	e := routes.New(routes.Options{
		ServiceName: a.cfg.ServiceName,
		Logger:      a.logger,
		Health:      a.checker,
		Games:       games.NewHandler(a.similarities, neighbors, a.logger),
		Etl:         etlroutes.NewHandler(a.orchestrator, a.store, a.cfg.Etl.RunRequest(), a.logger),
	})

	srv := &http.Server{
		Addr:         a.cfg.HTTP.Addr(),
		Handler:      e,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Infof("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.checker.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.logger.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
