package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"lmserv/internal/common/fsutil"
)

// LlamaBinName is the executable looked up on PATH.
const LlamaBinName = "llama-cli"

// ResolveLlamaBin finds the llama-cli executable: the explicit override
// first, then PATH, then build/bin/llama-cli under the working directory and
// next to the running executable.
func ResolveLlamaBin(override string) (string, error) {
	var candidates []string
	if override != "" {
		p, err := fsutil.ExpandHome(override)
		if err != nil {
			return "", err
		}
		candidates = append(candidates, p)
	}
	if p, err := exec.LookPath(LlamaBinName); err == nil {
		candidates = append(candidates, p)
	}
	rel := filepath.Join("build", "bin", LlamaBinName)
	candidates = append(candidates, rel)
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), rel))
	}
	for _, c := range candidates {
		if fsutil.IsExecutableFile(c) {
			if abs, err := filepath.Abs(c); err == nil {
				return abs, nil
			}
			return c, nil
		}
	}
	return "", fmt.Errorf("%s not found (tried %s); set --llama-bin or %sLLAMA_BIN",
		LlamaBinName, strings.Join(candidates, ", "), EnvPrefix)
}
