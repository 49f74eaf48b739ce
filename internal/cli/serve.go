package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fmueller/voxscribe/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser UI and transcription API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd.Context())
		},
	}

	bindServerFlags(cmd.Flags(), app.cfg)
	return cmd
}

func (a *appState) runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, err := a.newHandler(ctx)
	if err != nil {
		return err
	}

	if a.cfg.Log.Verbose {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	srv, err := server.New(a.cfg.Server, handler, a.log())
	if err != nil {
		return err
	}

	a.log().Info("voxscribe ready", zap.String("url", "http://"+srv.Addr()), zap.String("engine", handler.EngineName()))
	return a.serveFn(ctx, srv)
}
