package ocr

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// renderPages rasterizes pages 1..limit into dir and returns the images in
// page order.
func (e *Extractor) renderPages(ctx context.Context, path, dir string, limit int) ([]string, error) {
	prefix := filepath.Join(dir, "page")
	// pdftoppm -r 300 -png -f 1 -l <limit> <in.pdf> <dir/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, e.logger,
		"-r", strconv.Itoa(e.cfg.DPI), "-png", "-f", "1", "-l", strconv.Itoa(limit), path, prefix)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	// collect generated pngs (page-1.png or zero padded page-01.png, ...)
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	slices.SortFunc(matches, func(a, b string) int { return pageIndex(a) - pageIndex(b) })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	if len(matches) != limit {
		return nil, fmt.Errorf("pdftoppm rendered %d of %d pages", len(matches), limit)
	}
	return matches, nil
}

func pageIndex(img string) int {
	base := strings.TrimSuffix(filepath.Base(img), ".png")
	i := strings.LastIndexByte(base, '-')
	n, err := strconv.Atoi(base[i+1:])
	if err != nil {
		return 0
	}
	return n
}
