// Package fsutil locates patch files on disk.
package fsutil

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// PatchExtension is the file extension patch files are expected to carry.
const PatchExtension = ".hcl"

// FindPatchFiles recursively searches rootPath for patch files. Hidden
// directories are skipped. Results are sorted so a patch directory always
// loads in the same order.
func FindPatchFiles(rootPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != rootPath && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), PatchExtension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
