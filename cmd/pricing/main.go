package main

import (
	"os"

	"github.com/andresuchdata/pricing-model/backend-go/internal/config"
	"github.com/andresuchdata/pricing-model/backend-go/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load(".env")

	app := &cli.App{
		Name:  "pricing",
		Usage: "Compute per-city retail prices from catalog, competitor and cost snapshots",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Usage:   "Emit JSON log lines instead of console output",
				EnvVars: []string{"LOG_JSON"},
			},
		},
		Before: func(c *cli.Context) error {
			cfg := config.Load()
			logger.Configure(os.Stderr, cfg.App.LogJSON || c.Bool("log-json"))
			level := cfg.App.LogLevel
			if c.IsSet("log-level") {
				level = c.String("log-level")
			}
			logger.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			runCommand(),
			backfillCommand(),
			fetchDriveCommand(),
			fetchS3Command(),
			migrateCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("pricing: command failed")
	}
}
