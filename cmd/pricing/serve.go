package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresuchdata/pricing-model/backend-go/internal/api"
	"github.com/andresuchdata/pricing-model/backend-go/internal/config"
	"github.com/andresuchdata/pricing-model/backend-go/internal/drive"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{Name: "port", Usage: "Listen port", EnvVars: []string{"SERVER_PORT"}},
		newDBURLFlag(),
		newSQLiteFlag(),
	}, runOptionFlags()...)

	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve the pricing HTTP API",
		Flags:  flags,
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	cfg := config.Load()
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	svc, closeFn, err := newPricingService(c, cfg, true)
	if err != nil {
		return err
	}
	defer closeFn()

	services := &api.Services{Pricing: svc, Defaults: runOptions(c, cfg)}
	if cfg.Drive.CredentialsJSON != "" {
		driveSvc, err := drive.NewService(c.Context, cfg.Drive.CredentialsJSON)
		if err != nil {
			log.Warn().Err(err).Msg("drive: routes disabled")
		} else {
			r := mux.NewRouter()
			drive.NewHandler(driveSvc, svc).RegisterRoutes(r)
			services.Drive = r
		}
	}

	port := cfg.Server.Port
	if c.IsSet("port") {
		port = c.String("port")
	}
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      api.NewRouter(services, cfg.Server.AllowedOrigins),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("server exited")
	return nil
}
