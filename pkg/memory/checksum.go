package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// FileChecksum returns the lowercase hex sha256 of a file's current content.
func FileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()

	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

/*
Checksums captures the current hash of every readable path. Unreadable
paths are left out, and that absence is what the staleness detector later
reports as missing.
*/
func Checksums(paths []string) map[string]string {
	if len(paths) == 0 {
		return nil
	}

	sums := make(map[string]string, len(paths))

	for _, path := range paths {
		sum, err := FileChecksum(path)
		if err != nil {
			continue
		}

		sums[path] = sum
	}

	return sums
}
