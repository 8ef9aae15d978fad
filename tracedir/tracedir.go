// Package tracedir discovers the per-hart trace files within a trace
// directory.
package tracedir

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Michaelsladkov/sc-trace-debugger/traceerr"
)

const (
	includeSubstring = "trace_log"
	excludeSubstring = "csr"
)

// Discover returns the paths of every regular file directly under dir whose
// name contains "trace_log" and does not contain "csr", sorted
// lexicographically. Hart indices are assigned by that order.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, traceerr.Wrap(traceerr.SessionCreationError, err, "reading trace directory "+dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		name := e.Name()
		if !strings.Contains(name, includeSubstring) {
			continue
		}
		if strings.Contains(name, excludeSubstring) {
			continue
		}
		names = append(names, name)
	}

	if len(names) == 0 {
		return nil, traceerr.New(traceerr.SessionCreationError, "no trace files found in %s", dir)
	}

	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}
