package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/personaengine/internal/server"
)

var (
	serverPort     int
	serverAllowAll bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the REST API server",
	Long:  `Starts the personaengine REST API. Every MCP tool has an equivalent HTTP endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, closeDB, err := openEngine()
		if err != nil {
			return err
		}
		defer closeDB()

		cfg := e.Config()
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = serverPort
		}
		allowAll := cfg.Server.AllowAllOrigins || serverAllowAll

		srv := server.New(server.Config{Port: port, AllowAll: allowAll}, e, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		logger.Info("personaengine server starting",
			zap.String("version", Version),
			zap.Int("port", port),
			zap.String("database", cfg.DatabasePath),
		)
		return g.Wait()
	},
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Port to listen on (overrides server.port)")
	serverCmd.Flags().BoolVar(&serverAllowAll, "allow-all-origins", false, "Allow CORS requests from any origin")
	rootCmd.AddCommand(serverCmd)
}
