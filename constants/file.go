package constants

import (
	"path/filepath"
	"strings"
)

// DocumentExt is the only accepted upload extension. The check is
// case-sensitive: "scan.PDF" is rejected.
const DocumentExt = ".pdf"

const (
	artifactPrefix = "RESULT_"
	artifactSuffix = "_OCR.txt"
)

// IsDocument reports whether name carries the exact document extension after
// a non-empty stem. A bare ".pdf" is a dotfile, not a document.
func IsDocument(name string) bool {
	return filepath.Ext(name) == DocumentExt && Stem(name) != ""
}

// Stem returns the base name of path without its final extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ArtifactName derives the text artifact name from the uploaded file name:
// "sample.pdf" -> "RESULT_sample_OCR.txt".
func ArtifactName(source string) string {
	return artifactPrefix + Stem(source) + artifactSuffix
}

// IsArtifactName reports whether name is a bare artifact file name as produced
// by ArtifactName (no directory components).
func IsArtifactName(name string) bool {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return false
	}
	return strings.HasPrefix(name, artifactPrefix) &&
		strings.HasSuffix(name, artifactSuffix) &&
		len(name) > len(artifactPrefix)+len(artifactSuffix)
}
