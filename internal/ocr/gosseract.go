//go:build gosseract

package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

func init() {
	gosseractFactory = func(cfg Config) Recognizer { return gosseractRecognizer{cfg: cfg} }
}

type gosseractRecognizer struct {
	cfg Config
}

func (g gosseractRecognizer) Recognize(ctx context.Context, imagePath, lang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client := gosseract.NewClient()
	defer func() { _ = client.Close() }()

	if g.cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(g.cfg.TessdataDir); err != nil {
			return "", fmt.Errorf("gosseract tessdata: %w", err)
		}
	}
	if err := client.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("gosseract language: %w", err)
	}
	if psm := pageSegMode(g.cfg); psm > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(psm)); err != nil {
			return "", fmt.Errorf("gosseract psm: %w", err)
		}
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("gosseract image: %w", err)
	}
	txt, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("gosseract: %w", err)
	}
	return txt, nil
}
