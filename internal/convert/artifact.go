package convert

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gofrs/flock"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/joseph-ayodele/pdf2text/constants"
)

// Invalid UTF-8 arrives here as utf8.RuneError. Layout characters survive.
var dropUnencodable = runes.Remove(runes.Predicate(func(r rune) bool {
	switch r {
	case '\n', '\t', '\f':
		return false
	case utf8.RuneError:
		return true
	}
	return unicode.IsControl(r)
}))

// sanitizeText drops anything that cannot be written as clean UTF-8 text.
func sanitizeText(s string) string {
	out, _, err := transform.String(dropUnencodable, s)
	if err != nil {
		return strings.ToValidUTF8(s, "")
	}
	return out
}

// writeArtifact stores text as RESULT_<stem>_OCR.txt in dir and returns the
// absolute path. Concurrent writers of the same artifact are serialized with
// a file lock and readers never observe a partial file.
func writeArtifact(ctx context.Context, dir, source, text string) (string, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	name := constants.ArtifactName(source)
	dest := filepath.Join(abs, name)

	lock := flock.New(lockPath(dest))
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return "", fmt.Errorf("lock artifact: %w", err)
	}
	if !locked {
		return "", fmt.Errorf("lock artifact: %s is busy", name)
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(abs, "."+name+".*.tmp")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(sanitizeText(text)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return dest, nil
}

// lock files live outside the output dir so they never show up as downloads
func lockPath(dest string) string {
	sum := sha256.Sum256([]byte(dest))
	return filepath.Join(os.TempDir(), "pdf2text-"+hex.EncodeToString(sum[:8])+".lock")
}
