package sandbox

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

// Artifact naming constants
const (
	DefaultStagingDir = "__cacheweb__"
	ArtifactPrefix    = "wrapper_"
	ArtifactExt       = ".lua"
	artifactIDLength  = 8
)

// Staging manages the directory that holds generated wrapper scripts.
// It is shared by concurrent executions; each one only touches its own file.
type Staging struct {
	root string
	fs   FileSystem
}

// NewStaging returns a Staging rooted at dir. A relative dir is resolved
// against the current working directory once, at construction.
func NewStaging(dir string, fs FileSystem) *Staging {
	if dir == "" {
		dir = DefaultStagingDir
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if fs == nil {
		fs = RealFileSystem{}
	}
	return &Staging{root: dir, fs: fs}
}

// Root returns the staging directory path without creating it.
func (s *Staging) Root() string {
	return s.root
}

// Ensure creates the staging directory if it is absent and returns its path.
// Concurrent and repeated calls are safe.
func (s *Staging) Ensure() (string, error) {
	if err := s.fs.MkdirAll(s.root, DirPermission); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrDirectoryUnavailable, s.root, err)
	}
	return s.root, nil
}

// NewArtifactID returns a random 8 hex character token.
func NewArtifactID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:artifactIDLength/2])
}

// ArtifactName returns the wrapper file name for id.
func ArtifactName(id string) string {
	return ArtifactPrefix + id + ArtifactExt
}

// NewArtifactPath returns a fresh artifact id and the wrapper path for it
// inside the staging directory. The file is not created.
func (s *Staging) NewArtifactPath() (id, path string) {
	id = NewArtifactID()
	return id, filepath.Join(s.root, ArtifactName(id))
}
