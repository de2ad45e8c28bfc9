package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"firstcontact/internal/api"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, session, err := a.buildService()
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			a.log.Warn("Error closing browser", zap.Error(err))
		}
	}()

	a.log.Info("Service starting",
		zap.String("version", api.Version),
		zap.String("addr", a.cfg.Addr()),
		zap.Int("max_per_session", a.cfg.Session.MaxPerSession),
		zap.String("delay_range", a.cfg.Session.DelayRange()))

	// The browser comes up behind the listener so /status answers at once.
	go func() {
		initCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		res, err := svc.Authenticate(initCtx)
		if err != nil {
			a.log.Error("Initial browser setup failed", zap.Error(err))
			return
		}
		a.log.Info("Initial authentication check", zap.Bool("authenticated", res.Authenticated))
	}()

	srv := api.NewServer(svc, a.cfg.Session.DelayRange(), a.log)
	err = srv.Run(ctx, a.cfg.Addr())

	a.log.Info("Shutting down")
	svc.Stop()
	return err
}
