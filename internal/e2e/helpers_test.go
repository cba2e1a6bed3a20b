package e2e

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"lmserv/internal/httpapi"
	"lmserv/internal/pool"
	"lmserv/internal/worker"
)

var fakeCLI string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "lmserv-e2e")
	if err != nil {
		fmt.Fprintln(os.Stderr, "tempdir:", err)
		os.Exit(1)
	}
	bin := filepath.Join(dir, "llama-cli")
	if runtime.GOOS == "windows" {
		bin += ".exe"
	}
	cmd := exec.Command("go", "build", "-o", bin, "../worker/testdata/fake_llama_cli.go")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		fmt.Fprintf(os.Stderr, "build fake llama-cli: %v\n%s\n", err, out)
	} else {
		fakeCLI = bin
	}
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

// newServer starts a pool of size fake workers behind the real HTTP mux.
func newServer(t *testing.T, size int, acquireTimeout time.Duration) (*httptest.Server, *pool.Pool) {
	t.Helper()
	if fakeCLI == "" {
		t.Skip("fake llama-cli not built")
	}
	if runtime.GOOS == "windows" {
		t.Skip("signals differ on windows")
	}
	wcfg := worker.Config{
		Bin:                fakeCLI,
		ModelPath:          "model.gguf",
		ReadyTimeout:       5 * time.Second,
		IdleTimeout:        300 * time.Millisecond,
		FirstOutputTimeout: 3 * time.Second,
		InterruptTimeout:   time.Second,
		TerminateTimeout:   time.Second,
		KillTimeout:        time.Second,
	}
	p := pool.New(pool.Config{Size: size, AcquireTimeout: acquireTimeout}, func() pool.Worker {
		return worker.New(wcfg)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start pool: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(p))
	t.Cleanup(func() {
		srv.Close()
		_ = p.Shutdown(context.Background())
	})
	return srv, p
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func postChat(t *testing.T, base, prompt string) (*http.Response, []byte) {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"prompt":%q}`, prompt))
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, base+"/chat", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
