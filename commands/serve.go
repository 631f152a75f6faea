package commands

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillbooks/ledger-engine/api"
	"github.com/quillbooks/ledger-engine/config"
	"github.com/quillbooks/ledger-engine/store/sqlite"
)

// newServeCommand starts the HTTP API over the SQLite store, with
// graceful shutdown on SIGINT/SIGTERM.
func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}

			store, err := sqlite.New(cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			handler := api.NewHandler(store, cfg.Options())
			router := api.NewRouter(handler)

			server := &http.Server{
				Addr:         cfg.Listen,
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Printf("Serving ledger API on %s (db: %s)", cfg.Listen, cfg.Database)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-quit:
			}

			log.Println("Shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		},
	}
}
