package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresuchdata/pricing-model/backend-go/internal/config"
	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/andresuchdata/pricing-model/backend-go/internal/drive"
	"github.com/andresuchdata/pricing-model/backend-go/internal/ingest"
	"github.com/andresuchdata/pricing-model/backend-go/internal/pipeline"
	"github.com/andresuchdata/pricing-model/backend-go/internal/storage"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func runCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:    "input",
			Aliases: []string{"i"},
			Usage:   "Input directory of CSV/XLSX tables, or a single workbook",
			EnvVars: []string{"APP_INPUT_DIR"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output file (.csv or .xlsx); defaults to APP_OUTPUT_DIR/pricing_<run>.csv",
		},
		&cli.BoolFlag{
			Name:  "upload",
			Usage: "Upload the output file to the configured S3 output prefix",
		},
		newDBURLFlag(),
		newSQLiteFlag(),
	}, runOptionFlags()...)

	return &cli.Command{
		Name:   "run",
		Usage:  "Price a local snapshot and write the priced catalog",
		Flags:  flags,
		Action: runPricing,
	}
}

func runPricing(c *cli.Context) error {
	cfg := config.Load()
	input := c.String("input")
	if input == "" {
		input = cfg.App.InputDir
	}

	snap, err := loadSnapshot(input)
	if err != nil {
		return err
	}

	svc, closeFn, err := newPricingService(c, cfg, false)
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := svc.Run(c.Context, snap.Inputs, runOptions(c, cfg))
	if err != nil {
		return err
	}

	out := c.String("output")
	if out == "" {
		out = filepath.Join(cfg.App.OutputDir, fmt.Sprintf("pricing_%s_%s.csv", time.Now().Format("20060102"), result.RunID))
	}
	if err := writeOutput(out, result.Items); err != nil {
		return err
	}

	for _, issue := range result.Issues {
		log.Warn().Str("kind", string(issue.Kind)).Msg(issue.String())
	}
	log.Info().
		Str("run_id", result.RunID).
		Str("output", out).
		Int("items", result.Summary.TotalProducts).
		Int("matched", result.Summary.MatchedProducts).
		Float64("avg_margin_pct", result.Summary.AvgRealizedMarginPct).
		Float64("avg_price_index", result.Summary.AvgPriceIndex).
		Msg("pricing: output written")

	if c.Bool("upload") {
		store, err := storage.NewS3Client(cfg.Storage)
		if err != nil {
			return err
		}
		key, err := storage.UploadFile(c.Context, store, cfg.Storage.OutputPrefix, out, contentTypeFor(out))
		if err != nil {
			return err
		}
		log.Info().Str("key", key).Msg("pricing: output uploaded")
	}
	return nil
}

func loadSnapshot(input string) (*ingest.Snapshot, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("input %s: %w", input, err)
	}
	if info.IsDir() {
		return ingest.LoadDir(input)
	}
	if strings.EqualFold(filepath.Ext(input), ".xlsx") {
		return ingest.LoadWorkbook(input)
	}
	return nil, fmt.Errorf("input %s must be a directory or an .xlsx workbook", input)
}

func writeOutput(path string, items []domain.PricedProduct) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		err = ingest.WriteXLSX(f, ingest.Rows(items))
	} else {
		err = ingest.WriteCSV(f, items)
	}
	if err != nil {
		return err
	}
	return f.Close()
}

func contentTypeFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

func fetchDriveCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch-drive",
		Usage: "Download a snapshot folder from Google Drive",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "folder-path",
				Usage:   "Drive folder path, e.g. pricing/eggs/2024-06-01",
				EnvVars: []string{"GOOGLE_DRIVE_FOLDER_PATH"},
			},
			&cli.StringFlag{Name: "folder-id", Usage: "Drive folder id; ignored when --folder-path is set"},
			&cli.StringFlag{Name: "dir", Usage: "Destination directory", Value: "./data/inputs"},
		},
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			svc, err := drive.NewService(c.Context, cfg.Drive.CredentialsJSON)
			if err != nil {
				return err
			}
			paths, err := drive.NewFetcher(svc).Fetch(c.Context, drive.FetchOptions{
				FolderID:   c.String("folder-id"),
				FolderPath: c.String("folder-path"),
				Dir:        c.String("dir"),
			})
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(c.App.Writer, p)
			}
			return nil
		},
	}
}

func fetchS3Command() *cli.Command {
	return &cli.Command{
		Name:  "fetch-s3",
		Usage: "Download a snapshot prefix from S3-compatible storage",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "prefix", Usage: "Object prefix; defaults to S3_INPUT_PREFIX"},
			&cli.StringFlag{Name: "dir", Usage: "Destination directory", Value: "./data/inputs"},
		},
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			store, err := storage.NewS3Client(cfg.Storage)
			if err != nil {
				return err
			}
			prefix := c.String("prefix")
			if prefix == "" {
				prefix = cfg.Storage.InputPrefix
			}
			dir := c.String("dir")
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
			paths, err := storage.DownloadPrefix(c.Context, store, prefix, dir)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(c.App.Writer, p)
			}
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the run history tables",
		Flags: []cli.Flag{newDBURLFlag(), newSQLiteFlag()},
		Action: func(c *cli.Context) error {
			_, closeFn, err := openRepository(c, config.Load(), true)
			if err != nil {
				return err
			}
			closeFn()
			log.Info().Msg("pricing: schema ready")
			return nil
		},
	}
}

func backfillCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{Name: "root", Usage: "Directory holding one dated subdirectory per snapshot", Required: true},
		&cli.StringFlag{Name: "output-dir", Usage: "Directory for per-snapshot CSVs", Value: "./data/output/backfill"},
		&cli.IntFlag{Name: "parallel", Usage: "Snapshots priced concurrently", Value: 2},
		newDBURLFlag(),
		newSQLiteFlag(),
	}, runOptionFlags()...)

	return &cli.Command{
		Name:  "backfill",
		Usage: "Price every dated snapshot under a root directory",
		Flags: flags,
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			snaps, err := pipeline.Discover(c.String("root"))
			if err != nil {
				return err
			}

			svc, closeFn, err := newPricingService(c, cfg, false)
			if err != nil {
				return err
			}
			defer closeFn()

			pcfg := pipeline.DefaultConfig()
			pcfg.WorkerCount = c.Int("parallel")
			pcfg.OutputDir = c.String("output-dir")

			results, err := pipeline.NewOrchestrator(svc, pcfg).Run(c.Context, snaps, runOptions(c, cfg))
			if err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					continue
				}
				fmt.Fprintf(c.App.Writer, "%s\t%s\t%d\t%s\n", r.Snapshot.Date.Format("2006-01-02"), r.RunID, r.Items, r.Output)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d snapshots failed", failed, len(results))
			}
			return nil
		},
	}
}
