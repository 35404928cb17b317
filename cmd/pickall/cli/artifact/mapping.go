package artifact

import (
	"path/filepath"
	"strings"
)

// Mapping is the naming convention associating a derived binary artifact with
// its textual source: same directory, same base name, different extension.
// There is no persistent registry; the association is recomputed per conflict.
type Mapping struct {
	ArtifactExt string
	SourceExt   string
}

// DefaultMapping is the compiled-document convention: a .pdf built from the
// sibling .tex of the same base name.
var DefaultMapping = Mapping{ArtifactExt: ".pdf", SourceExt: ".tex"}

// IsArtifact reports whether path names a derived artifact.
func (m Mapping) IsArtifact(path string) bool {
	return strings.EqualFold(filepath.Ext(path), m.ArtifactExt)
}

// IsSource reports whether path names an artifact source.
func (m Mapping) IsSource(path string) bool {
	return strings.EqualFold(filepath.Ext(path), m.SourceExt)
}

// SourceFor returns the expected source path for an artifact.
// The artifact's extension is replaced, directory and base name kept.
func (m Mapping) SourceFor(artifactPath string) string {
	return strings.TrimSuffix(artifactPath, filepath.Ext(artifactPath)) + m.SourceExt
}

// ArtifactFor returns the artifact path a source compiles to.
func (m Mapping) ArtifactFor(sourcePath string) string {
	return strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + m.ArtifactExt
}
