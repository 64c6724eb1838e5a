package attachment

import (
	"fmt"
	"path/filepath"
	"strings"
)

// partitionedPath splits the zero padded id into four digit directories,
// e.g. 12 -> ["0000", "0012"] and 123456789 -> ["1234", "5678", "9"].
func partitionedPath(id uint) []string {
	padded := fmt.Sprintf("%08d", id)
	parts := make([]string, 0, len(padded)/4+1)
	for len(padded) > 4 {
		parts = append(parts, padded[:4])
		padded = padded[4:]
	}
	return append(parts, padded)
}

// relativePath joins prefix, the partitioned id and filename.
func relativePath(prefix string, id uint, filename string) string {
	elems := append([]string{prefix}, partitionedPath(id)...)
	return filepath.Join(append(elems, filename)...)
}

// publicPath strips the public root from an absolute path. Paths outside the
// public root are returned unchanged.
func publicPath(publicRoot, fullPath string) string {
	if publicRoot == "" {
		return fullPath
	}
	if fullPath == publicRoot {
		return "/"
	}
	if rest, ok := strings.CutPrefix(fullPath, publicRoot+string(filepath.Separator)); ok {
		return "/" + filepath.ToSlash(rest)
	}
	return fullPath
}
