package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
)

// Recognizer turns one rendered page image into text.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath, lang string) (string, error)
}

// gosseractFactory is set by the gosseract build.
var gosseractFactory func(cfg Config) Recognizer

type tesseractCLI struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func (t tesseractCLI) Recognize(ctx context.Context, imagePath, lang string) (string, error) {
	// tesseract <file> stdout -l <lang> [--psm N] [--oem N] [--tessdata-dir D]
	args := []string{imagePath, "stdout", "-l", lang}
	if psm := pageSegMode(t.cfg); psm > 0 {
		args = append(args, "--psm", strconv.Itoa(psm))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}

	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, t.logger, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return string(out), nil
}

// pageSegMode resolves the effective --psm. Pages that may be rotated get
// automatic segmentation with orientation detection.
func pageSegMode(cfg Config) int {
	if cfg.PSM > 0 {
		return cfg.PSM
	}
	if !cfg.AssumeStraightPages {
		return 1
	}
	return 0
}
