package pipeline

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Supported source extensions (lowercase, with leading dot).
var mediaExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".m4v":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".ts":   true,
	".mpg":  true,
	".mpeg": true,
}

// Discover walks inputDir, collects files with media extensions, prunes
// hidden directories and "extras" (case-insensitive), ignores in-flight
// ".part.mp4" outputs, and returns the paths sorted lexicographically for
// deterministic processing order.
func Discover(inputDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != inputDir && (strings.HasPrefix(name, ".") || strings.EqualFold(name, "extras")) {
				return filepath.SkipDir
			}
			return nil
		}
		lower := strings.ToLower(d.Name())
		if strings.HasSuffix(lower, ".part.mp4") || strings.HasPrefix(lower, ".") {
			return nil
		}
		if mediaExtensions[filepath.Ext(lower)] {
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
