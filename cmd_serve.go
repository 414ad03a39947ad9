package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"live_artifact_editor/devserver"
	"live_artifact_editor/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	tmpl, err := buildPipeline(ctx, cfg, reg, false)
	if err != nil {
		return err
	}
	srv, err := server.New(server.Options{
		Connect: func(ctx context.Context) (devserver.Workspace, error) {
			dev, err := connect(ctx, cfg.DevServer, cfg.DevServer.StartApp)
			if err != nil {
				return nil, err
			}
			return dev, nil
		},
		Pipeline: tmpl,
		Events:   tmpl.Events,
		Registry: reg,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	listen := cfg.ServerAddr
	if serveAddr != "" {
		listen = serveAddr
	}
	httpSrv := &http.Server{Addr: listen, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting web server", zap.String("addr", listen))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
