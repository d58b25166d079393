package indexer

import (
	"fmt"
	"os"
)

// FileSignature identifies a file version as "<size>-<mtime unix nanos>". Equal signatures
// mean the file is treated as unchanged.
func FileSignature(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a regular file: %s", path)
	}
	return fmt.Sprintf("%d-%d", info.Size(), info.ModTime().UnixNano()), nil
}
