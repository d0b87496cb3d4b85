package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/joseph-ayodele/pdf2text/internal/common"
	"github.com/joseph-ayodele/pdf2text/internal/convert"
	"github.com/joseph-ayodele/pdf2text/internal/ocr"
	"github.com/joseph-ayodele/pdf2text/internal/staging"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	app := &cli.App{
		Name:      "convert",
		Usage:     "OCR a PDF into RESULT_<stem>_OCR.txt",
		ArgsUsage: "FILE.pdf",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "max-pages",
				Aliases: []string{"n"},
				Value:   cfg.Convert.MaxPages,
				Usage:   "OCR at most this many leading pages",
			},
			&cli.StringFlag{
				Name:    "lang",
				Aliases: []string{"l"},
				Value:   cfg.OCR.Language,
				Usage:   "document language (ISO 639-1 like en, or tesseract names like eng+deu)",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Value:   cfg.Storage.OutputDir,
				Usage:   "directory for the result file",
			},
			&cli.StringFlag{
				Name:  "engine",
				Value: cfg.OCR.Engine,
				Usage: "tesseract, gosseract or textlayer",
			},
			&cli.StringFlag{
				Name:  "staging-dir",
				Value: cfg.Storage.StagingDir,
				Usage: "working directory for staged copies",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: cfg.Convert.Timeout,
				Usage: "abort OCR after this long (0 = no limit)",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "do not print the extracted text",
			},
			&cli.BoolFlag{
				Name:  "check",
				Usage: "verify OCR dependencies and exit",
			},
		},
		Action: func(c *cli.Context) error {
			return runConvert(c, cfg)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runConvert(c *cli.Context, cfg *common.Config) error {
	// the text goes to stdout, so logs stay on stderr
	logger := common.NewLogger(os.Stderr, cfg.Log)
	if c.Bool("quiet") {
		logger = common.NewLogger(os.Stderr, common.LogConfig{Level: "warn", Format: cfg.Log.Format})
	}
	slog.SetDefault(logger)

	ocrCfg := ocr.FromConfig(cfg.OCR)
	ocrCfg.Engine = c.String("engine")
	ocrCfg.Language = c.String("lang")
	backend, err := ocr.NewBackend(ocrCfg, logger)
	if err != nil {
		return err
	}
	if c.Bool("check") {
		if err := backend.Check(c.Context); err != nil {
			return err
		}
		fmt.Printf("%s backend ready\n", backend.Name())
		return nil
	}

	if c.NArg() != 1 {
		return cli.Exit("usage: convert [flags] FILE.pdf", 2)
	}

	stager, err := staging.NewStager(c.String("staging-dir"), logger)
	if err != nil {
		return err
	}
	svc := convert.NewService(backend, stager, nil, convert.Config{
		OutputDir:       c.String("out"),
		DefaultMaxPages: cfg.Convert.MaxPages,
		DefaultLanguage: c.String("lang"),
		Timeout:         c.Duration("timeout"),
		MaxConcurrent:   1,
	}, logger)

	req := svc.NewRequest(staging.FileUpload{Path: c.Args().First()})
	req.MaxPages = c.Int("max-pages")

	out, err := svc.Convert(c.Context, req)
	if err != nil && !errors.Is(err, convert.ErrConversionFailed) {
		return err
	}
	if out.ArtifactPath == "" {
		return cli.Exit(out.Text, 1)
	}
	if !c.Bool("quiet") {
		fmt.Println(out.Text)
	}
	r := out.Result
	if r.Truncated {
		fmt.Fprintf(os.Stderr, "WARNING - PDF was truncated to %d pages\n", req.MaxPages)
	}
	fmt.Fprintf(os.Stderr, "Runtime: %s minutes for %d pages -> %s\n", convert.Minutes(r.Elapsed), r.PagesProcessed, out.ArtifactPath)
	return nil
}
