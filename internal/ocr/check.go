package ocr

import (
	"context"
	"fmt"
	"strings"
)

// Check verifies that pdftoppm runs and, for the tesseract CLI engine, that
// the configured language data is installed.
func (e *Extractor) Check(ctx context.Context) error {
	if _, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, e.logger, "-v"); err != nil {
		return fmt.Errorf("pdftoppm unavailable: %w: %s", err, truncate(string(errb), 256))
	}
	if e.cfg.Engine != EngineTesseract {
		return nil
	}
	lang, err := TesseractLanguage(e.cfg.Language)
	if err != nil {
		return err
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.logger, "--list-langs")
	if err != nil {
		return fmt.Errorf("tesseract unavailable: %w: %s", err, truncate(string(errb), 256))
	}
	installed := parseLangList(string(out))
	for _, l := range strings.Split(lang, "+") {
		if !installed[l] {
			return fmt.Errorf("tesseract language data %q not installed", l)
		}
	}
	return nil
}

// parseLangList reads `tesseract --list-langs` output, skipping the header.
func parseLangList(out string) map[string]bool {
	langs := make(map[string]bool)
	for _, ln := range strings.Split(out, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "List of") {
			continue
		}
		langs[ln] = true
	}
	return langs
}
