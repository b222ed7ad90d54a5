package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tablesmith/tablesmith/internal/api"
	"github.com/tablesmith/tablesmith/internal/ws"
)

var servePort int
var serveDevMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session API server",
	Long: `Start the HTTP API on localhost. Clients open editing sessions, stage
changes, preview and commit them; /api/ws pushes pending changes to every
connected client.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Graceful shutdown on signals
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, done, err := connect(cmd)
		if err != nil {
			return err
		}
		defer done()

		port := eng.Config.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		dev := eng.Config.Server.DevMode || serveDevMode

		hub := ws.NewHub(eng.Logger)
		hub.SetDevMode(dev)
		hub.SetStateProvider(func() ([]byte, error) {
			return json.Marshal(eng.Sessions())
		})
		go hub.Run(ctx)

		srv := api.New(eng, eng.Logger, port,
			api.WithHub(hub),
			api.WithDevMode(dev),
		)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		fmt.Fprintf(os.Stderr, "Tablesmith API: http://localhost:%d/api\n", port)

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
			eng.Logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8230, "port for the API server")
	serveCmd.Flags().BoolVar(&serveDevMode, "dev", false, "enable CORS for development mode")
	rootCmd.AddCommand(serveCmd)
}
