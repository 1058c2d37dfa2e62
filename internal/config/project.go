package config

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

// DetectProjectRoot walks upward from start looking for the first ancestor
// containing one of projectMarkers. If none is found, start itself (cleaned
// to an absolute path) is returned as the root.
func DetectProjectRoot(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		dir = start
	}
	origin := dir
	for {
		for _, marker := range projectMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return origin // no marker found anywhere up to the filesystem root
		}
		dir = parent
	}
}

// ProjectHash returns a stable hash of the detected project root, used to
// namespace persisted state under $HOME/.local/share/vibe_cli/<hash>_*.
func ProjectHash(projectRoot string) string {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		abs = projectRoot
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return hex.EncodeToString(sum[:])[:16]
}
