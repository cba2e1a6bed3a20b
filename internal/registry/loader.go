package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"lmserv/internal/common/fsutil"
	"lmserv/pkg/types"
)

// LoadDir scans a directory for *.gguf files and builds a registry from filenames.
// ID is the full filename (including extension); Path is the absolute file path.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !isGGUF(name) {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		models = append(models, types.Model{ID: name, Name: stem, Path: filepath.Join(abs, name), Quant: quantOf(stem)})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

var quantPattern = regexp.MustCompile(`(?i)(?:^|[-_.])((?:IQ|Q)[0-9]_[0-9A-Z_]+|Q[0-9]_[0-9]|Q[0-9]|F16|BF16|F32)$`)

// quantOf extracts a trailing quantization tag such as Q4_K_M from a stem.
func quantOf(stem string) string {
	m := quantPattern.FindStringSubmatch(stem)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

func isGGUF(name string) bool { return strings.HasSuffix(strings.ToLower(name), ".gguf") }
