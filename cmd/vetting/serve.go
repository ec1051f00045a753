package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vetting/internal/server"

	"github.com/urfave/cli/v2"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Start the HTTP API and the renewal scheduler",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "in-memory",
			Usage: "Use an in-memory store loaded from FIXTURES_FILE instead of Postgres",
		},
		&cli.BoolFlag{
			Name:  "no-scheduler",
			Usage: "Do not run the renewal scheduler in this process",
		},
	},
	Action: serve,
}

func serve(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger()

	inMemory := cCtx.Bool("in-memory")
	config, err := loadConfig(!inMemory)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, config, logger, inMemory)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(config, logger, a.checks, a.validator, a.registry, a.jwksCache, a.metrics, a.promReg)

	if !cCtx.Bool("no-scheduler") && config.RenewalInterval() > 0 {
		go a.scheduler.Start(ctx, config.RenewalInterval())
	}

	go func() {
		logger.WithField("port", config.ServerPort).Infof("server starting http://localhost:%d", config.ServerPort)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Stop(shutdownCtx)
}
