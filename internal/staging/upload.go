package staging

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
)

// ErrSymlink is returned when a source or destination is a symbolic link.
var ErrSymlink = errors.New("refusing to follow symlink")

// Upload is a user-supplied file reference: a display name plus a way to read
// its bytes.
type Upload interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// FileUpload is a file already on disk (bundled sample, CLI argument).
type FileUpload struct {
	Path string
}

func (f FileUpload) Name() string { return f.Path }

func (f FileUpload) Open() (io.ReadCloser, error) {
	fi, err := os.Lstat(f.Path)
	if err != nil {
		return nil, err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return nil, ErrSymlink
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", fi.Mode().Type())
	}
	return os.Open(f.Path)
}

// MultipartUpload is a file posted through an HTML form.
type MultipartUpload struct {
	Header *multipart.FileHeader
}

func (m MultipartUpload) Name() string {
	if m.Header == nil {
		return ""
	}
	return m.Header.Filename
}

func (m MultipartUpload) Open() (io.ReadCloser, error) {
	if m.Header == nil {
		return nil, errors.New("no file in form")
	}
	return m.Header.Open()
}
