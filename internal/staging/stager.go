package staging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"

	"github.com/joseph-ayodele/pdf2text/internal/common"
)

type Reason string

const (
	SourceUnreadable      Reason = "source unreadable"
	DestinationUnwritable Reason = "destination unwritable"
	InvalidName           Reason = "invalid file name"
)

// Error describes why an upload could not be staged.
type Error struct {
	Reason Reason
	Path   string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Reason, e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", e.Reason, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// StagedFile is a private copy of an upload inside the staging directory.
// The copy stays locked against other Stage calls for the same name until
// Release is called.
type StagedFile struct {
	Path   string // absolute
	Name   string
	Size   int64
	SHA256 string // hex

	lock *flock.Flock
}

// Release unlocks the staged path. Safe to call more than once.
func (f StagedFile) Release() error {
	if f.lock == nil {
		return nil
	}
	return f.lock.Unlock()
}

// Stager copies uploads into a working directory; later processing only
// ever reads the copy.
type Stager struct {
	dir    string
	logger *slog.Logger
}

// NewStager makes sure dir exists and returns a Stager writing into it.
func NewStager(dir string, logger *slog.Logger) (*Stager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(dir) == "" {
		dir = "temp"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, common.WrapError(err, "staging dir")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, common.WrapError(err, "create staging dir")
	}
	return &Stager{dir: abs, logger: logger}, nil
}

func (s *Stager) Dir() string { return s.dir }

// Stage copies the upload to <dir>/<base name>, replacing any previous copy
// of the same name. The destination is written through a temp file and
// renamed into place. Callers sharing a name wait for the holder to Release;
// the returned file must be released once it is no longer read.
func (s *Stager) Stage(ctx context.Context, u Upload) (_ StagedFile, err error) {
	src := u.Name()
	name, err := BaseName(src)
	if err != nil {
		return StagedFile{}, s.fail(InvalidName, src, err)
	}
	if err := ctx.Err(); err != nil {
		return StagedFile{}, s.fail(SourceUnreadable, src, err)
	}
	dest := filepath.Join(s.dir, name)

	lock := flock.New(lockPath(dest))
	locked, err := lock.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		return StagedFile{}, s.fail(DestinationUnwritable, src, fmt.Errorf("lock %s: %w", name, err))
	}
	if !locked {
		return StagedFile{}, s.fail(DestinationUnwritable, src, fmt.Errorf("lock %s: busy", name))
	}
	defer func() {
		if err != nil {
			_ = lock.Unlock()
		}
	}()

	if fi, err := os.Lstat(dest); err == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			return StagedFile{}, s.fail(DestinationUnwritable, src, fmt.Errorf("%s: %w", dest, ErrSymlink))
		}
		if fi.IsDir() {
			return StagedFile{}, s.fail(DestinationUnwritable, src, fmt.Errorf("%s is a directory", dest))
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return StagedFile{}, s.fail(DestinationUnwritable, src, err)
	}

	in, err := u.Open()
	if err != nil {
		return StagedFile{}, s.fail(SourceUnreadable, src, err)
	}
	defer func() {
		if err := in.Close(); err != nil {
			s.logger.Warn("close upload failed", "path", src, "error", err)
		}
	}()

	tmp, err := os.CreateTemp(s.dir, "."+name+".*.part")
	if err != nil {
		return StagedFile{}, s.fail(DestinationUnwritable, src, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	h := sha256.New()
	r := &trackingReader{r: in}
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		if r.err != nil {
			return StagedFile{}, s.fail(SourceUnreadable, src, r.err)
		}
		return StagedFile{}, s.fail(DestinationUnwritable, src, err)
	}
	if err := ctx.Err(); err != nil {
		return StagedFile{}, s.fail(SourceUnreadable, src, err)
	}
	if err := tmp.Sync(); err != nil {
		return StagedFile{}, s.fail(DestinationUnwritable, src, err)
	}
	if err := tmp.Close(); err != nil {
		return StagedFile{}, s.fail(DestinationUnwritable, src, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return StagedFile{}, s.fail(DestinationUnwritable, src, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return StagedFile{}, s.fail(DestinationUnwritable, src, err)
	}
	committed = true

	out := StagedFile{Path: dest, Name: name, Size: n, SHA256: hex.EncodeToString(h.Sum(nil)), lock: lock}
	s.logger.Info("upload staged",
		"source", src,
		"path", dest,
		"size", humanize.Bytes(uint64(n)),
		"sha256", out.SHA256,
	)
	return out, nil
}

func (s *Stager) fail(reason Reason, src string, err error) *Error {
	s.logger.Error("staging failed", "reason", string(reason), "source", src, "error", err)
	return &Error{Reason: reason, Path: src, Err: err}
}

// BaseName is the last element of an upload name. Backslashes count as
// separators.
func BaseName(p string) (string, error) {
	// browsers on Windows may send full client paths
	p = strings.ReplaceAll(p, `\`, "/")
	name := filepath.Base(filepath.Clean(p))
	switch name {
	case "", ".", "..", "/":
		return "", errors.New("empty or relative file name")
	}
	return name, nil
}

// lock files live outside the staging dir so it only ever holds uploads
func lockPath(dest string) string {
	sum := sha256.Sum256([]byte(dest))
	return filepath.Join(os.TempDir(), "pdf2text-stage-"+hex.EncodeToString(sum[:8])+".lock")
}

// trackingReader remembers read errors so copy failures can be attributed
// to the source or the destination.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}
