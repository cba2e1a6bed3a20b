package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"lmserv/internal/common/fsutil"
)

// Locator says where llama-cli loads a model from: a local file (-m) or a
// remote repository it downloads itself (-hf).
type Locator struct {
	Path string
	Repo string
}

func (l Locator) Remote() bool { return l.Repo != "" }

func (l Locator) String() string {
	if l.Remote() {
		return "hf:" + l.Repo
	}
	return l.Path
}

var (
	remotePrefixes = []string{"hf:", "huggingface:"}
	repoPattern    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*/[A-Za-z0-9_.-]+(:[A-Za-z0-9_.-]+)?$`)
)

// Resolve classifies a configured model string. An hf: or huggingface:
// prefix, or an owner/repo[:variant] string that is not an existing path,
// is remote. Anything else must exist locally; a directory must hold exactly
// one *.gguf file.
func Resolve(model string) (Locator, error) {
	m := strings.TrimSpace(model)
	if m == "" {
		return Locator{}, fmt.Errorf("model is empty")
	}
	lower := strings.ToLower(m)
	for _, p := range remotePrefixes {
		if strings.HasPrefix(lower, p) {
			repo := strings.TrimSpace(m[len(p):])
			if !repoPattern.MatchString(repo) {
				return Locator{}, fmt.Errorf("model %q: want %sowner/repo[:variant]", m, p)
			}
			return Locator{Repo: repo}, nil
		}
	}

	p, err := fsutil.ExpandHome(m)
	if err != nil {
		return Locator{}, err
	}
	fi, statErr := os.Stat(p)
	if statErr == nil {
		abs, err := filepath.Abs(p)
		if err != nil {
			return Locator{}, fmt.Errorf("abs path: %w", err)
		}
		if !fi.IsDir() {
			return Locator{Path: abs}, nil
		}
		return resolveDir(abs)
	}
	if repoPattern.MatchString(m) && !isGGUF(m) {
		return Locator{Repo: m}, nil
	}
	return Locator{}, fmt.Errorf("model %q: %w", m, statErr)
}

func resolveDir(dir string) (Locator, error) {
	models, err := LoadDir(dir)
	if err != nil {
		return Locator{}, err
	}
	switch len(models) {
	case 0:
		return Locator{}, fmt.Errorf("no .gguf model in %s", dir)
	case 1:
		return Locator{Path: models[0].Path}, nil
	default:
		ids := make([]string, len(models))
		for i, m := range models {
			ids[i] = m.ID
		}
		return Locator{}, fmt.Errorf("%d models in %s (%s); pick one", len(models), dir, strings.Join(ids, ", "))
	}
}
