package ocr

import (
	"context"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// pdfcpu otherwise installs config.yml and fonts under the user's config
	// dir and exits the process when it cannot
	model.ConfigPath = "disable"
}

// PageCounter reports the number of pages in a document.
type PageCounter interface {
	PageCount(ctx context.Context, path string) (int, error)
}

type pdfcpuCounter struct{}

func (pdfcpuCounter) PageCount(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	defer func() { _ = f.Close() }()

	n, err := api.PageCount(f, model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}
