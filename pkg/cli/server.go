package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v3"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
	serverPortDefault         = 8080

	portFlagName = "port"
)

func newServerCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"serve"},
		Usage:   "Start local HTTP API server",
		Action:  cmdStartServer,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  portFlagName,
				Usage: "Port on which the server will listen",
				Value: serverPortDefault,
			},
		},
	}
}

func cmdStartServer(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)
	address := fmt.Sprintf("127.0.0.1:%d", cmd.Int(portFlagName))

	s := &http.Server{
		Addr:           address,
		Handler:        makeRouter(cfg.DB, cfg.Config.System, cfg.Config.Workers),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("server started", "address", fmt.Sprintf("http://%s", address))

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("error starting server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

func makeRouter(db *sqlx.DB, system string, workers int) *http.ServeMux {
	std := newStandardizers(db)

	mux := http.NewServeMux()

	// References
	mux.HandleFunc("GET /api/references", referencesAPIHandler(db))
	mux.HandleFunc("GET /api/references/{name}", referenceAPIHandler(db))
	mux.HandleFunc("GET /api/curves", curvesAPIHandler(std, system))

	// Standardization
	mux.HandleFunc("GET /api/standardize", standardizeAPIHandler(std, system))
	mux.HandleFunc("POST /api/batch", batchAPIHandler(db, std, system, workers))

	// Runs
	mux.HandleFunc("GET /api/runs", runsAPIHandler(db))
	mux.HandleFunc("GET /api/runs/{id}/failures", runFailuresAPIHandler(db))

	return mux
}
