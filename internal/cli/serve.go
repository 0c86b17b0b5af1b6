package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quickutil/toolstats/internal/api"
	"github.com/quickutil/toolstats/internal/config"
	"github.com/quickutil/toolstats/internal/ipres"
	log "github.com/quickutil/toolstats/internal/logging"
	"github.com/quickutil/toolstats/internal/ratelimit"
	"github.com/quickutil/toolstats/internal/usage"
	"github.com/quickutil/toolstats/internal/util"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the toolstats tracking server",
	Long: `Start the usage-analytics HTTP server.

Loads the configuration, opens the usage store, and serves the tracking
API. A database that cannot be reached at startup leaves the server in
degraded mode: storage-backed endpoints fail per request while IP and
diagnostic endpoints keep working.`,
	Run: func(c *cobra.Command, args []string) {
		log.SetupBaseLogger()

		configPath := cfgFile
		if configPath == "" {
			configPath = "$XDG_CONFIG_HOME/toolstats/config.yaml"
		}

		result, err := Bootstrap(configPath)
		if err != nil {
			log.Fatalf("Failed to bootstrap: %v", err)
		}
		cfg := result.Config

		if servePort != 0 && servePort != config.DefaultPort {
			cfg.Port = servePort
		}

		log.SetDebug(cfg.Debug)
		if err := log.ConfigureLogOutput(cfg.LoggingToFile, util.ConfigDir()); err != nil {
			log.Fatalf("Failed to configure log output: %v", err)
		}

		runServer(cfg)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", config.DefaultPort, "server port")
	rootCmd.AddCommand(serveCmd)
}

func runServer(cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Degraded mode: a nil store keeps the process serving, with
	// storage-backed endpoints returning 500 per request.
	store, err := usage.NewBackend(ctx, cfg.Usage.DSN)
	if err != nil {
		log.Errorf("Usage store unavailable, serving degraded: %v", err)
		store = nil
	} else {
		log.Infof("Usage store ready: %s", cfg.Usage.DSN)
		defer func() {
			if errClose := store.Close(); errClose != nil {
				log.Warnf("Closing usage store: %v", errClose)
			}
		}()
	}

	limiter := ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.MaxRequests, cfg.RateLimit.Cooldown)
	limiter.StartSweep(ctx, cfg.RateLimit.SweepInterval)

	resolver := ipres.NewResolver(cfg.PublicIPServices, 5*time.Second)

	router := api.NewRouter(api.RouterOptions{
		Store:    store,
		Resolver: resolver,
		Limiter:  limiter,
		AdminKey: cfg.AdminKey,
		Debug:    cfg.Debug,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Infof("toolstats listening on %s", srv.Addr)
		errChan <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-sigChan:
		log.Infof("Received %s, shutting down", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Graceful shutdown failed: %v", err)
		}
	}
}
