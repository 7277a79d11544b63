package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"wishlistbuilder/internal/builds"
	"wishlistbuilder/internal/catalog"
	"wishlistbuilder/internal/config"
	"wishlistbuilder/internal/database"
	"wishlistbuilder/internal/events"
	"wishlistbuilder/internal/github"
	"wishlistbuilder/internal/handlers"
	"wishlistbuilder/internal/littlelight"
	"wishlistbuilder/internal/logger"
	"wishlistbuilder/internal/middleware"
	"wishlistbuilder/internal/vault"
)

func main() {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "wishlistbuilder",
		Short:         "Destiny 2 wishlist builder and vault checker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			logger.Initialize(logger.ParseLevel(cfg.LogLevel), cfg.IsDevelopment())
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Import a Little Light wishlist file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), cfg, args[0], cmd.OutOrStdout())
		},
	})

	var opts littlelight.ExportOptions
	var output string
	exportCmd := &cobra.Command{
		Use:   "export <wishlist-id>",
		Short: "Export a wishlist as a Little Light file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid wishlist id %q", args[0])
			}
			return runExport(cmd.Context(), cfg, id, opts, output, cmd.OutOrStdout())
		},
	}
	exportCmd.Flags().BoolVar(&opts.PrettyPrint, "pretty", false, "Indent the output")
	exportCmd.Flags().BoolVar(&opts.OmitDescriptions, "omit-descriptions", false, "Leave build descriptions out")
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	rootCmd.AddCommand(exportCmd)

	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the item catalog",
	}
	catalogCmd.AddCommand(&cobra.Command{
		Use:   "snapshot <dir>",
		Short: "Download the catalog components into a directory for CATALOG_DIR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := catalog.NewHTTPSource(cfg.BungieBaseURL, cfg.D2AIBaseURL, cfg.BungieAPIKey, cfg.HTTPTimeout)
			if err := src.Prepare(cmd.Context()); err != nil {
				return err
			}
			if err := catalog.Snapshot(cmd.Context(), src, args[0]); err != nil {
				return err
			}
			logger.Info("Catalog snapshot written", "dir", args[0])
			return nil
		},
	})
	rootCmd.AddCommand(catalogCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func loadCatalog(ctx context.Context, cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogDir != "" {
		logger.Info("Loading catalog from directory", "dir", cfg.CatalogDir)
		return catalog.Load(ctx, catalog.DirSource{Dir: cfg.CatalogDir})
	}

	src := catalog.NewHTTPSource(cfg.BungieBaseURL, cfg.D2AIBaseURL, cfg.BungieAPIKey, cfg.HTTPTimeout)
	if err := src.Prepare(ctx); err != nil {
		return nil, err
	}
	return catalog.Load(ctx, src)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	cat, err := loadCatalog(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	bus := events.NewBus(16)
	store := database.NewStore(db)
	bungie := vault.NewBungieClient(cfg.BungieBaseURL, cfg.BungieAPIKey, cfg.BungieRatePerSecond, cfg.HTTPTimeout, cat)

	h := &handlers.Handler{
		DB:      db,
		Catalog: cat,
		Engine:  builds.NewEngine(store, cat, bus),
		Vault:   vault.NewCache(store, bungie, bus, cfg.VaultCacheTTL, cfg.VaultRefreshDebounce),
		Syncer:  github.NewSyncer(github.NewClient(cfg.GitHubAPIURL, cfg.HTTPTimeout), db, bus),
		Bus:     bus,
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	handlers.SetupRoutes(r, cfg, h)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Event streams never go idle on their own; ending them lets Shutdown
	// drain the connections.
	srv.RegisterOnShutdown(bus.Close)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func runImport(ctx context.Context, cfg *config.Config, path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := littlelight.Decode(f)
	if err != nil {
		return err
	}
	w, list, err := doc.ToModels()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	created, err := database.ImportWishlist(ctx, db, w, list)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Imported wishlist %d (%s) with %d builds\n", created.ID, created.Name, len(list))
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, id int64, opts littlelight.ExportOptions, output string, out io.Writer) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	w, err := database.GetWishlist(ctx, db, id)
	if err != nil {
		return err
	}
	list, err := database.GetBuildsByWishlist(ctx, db, id)
	if err != nil {
		return err
	}
	data, err := littlelight.Encode(littlelight.FromModels(*w, list, opts), opts)
	if err != nil {
		return err
	}

	if output == "" {
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	if err := os.WriteFile(output, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	logger.Info("Wishlist exported", "wishlist_id", id, "file", output, "builds", len(list))
	return nil
}
