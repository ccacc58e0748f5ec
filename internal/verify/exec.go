package verify

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Iron-Ham/daacs/internal/util"
)

// projectDir picks the directory holding the project manifest: the directory
// of the first file named manifest, else req.Dir, else the directory of the
// first file (stepping out of src/).
func projectDir(req Request, manifest string) string {
	paths := req.paths()
	for _, p := range paths {
		if filepath.Base(p) == manifest {
			return filepath.Dir(p)
		}
	}
	if req.Dir != "" {
		return req.Dir
	}
	if len(paths) == 0 {
		return ""
	}
	dir := filepath.Dir(paths[0])
	if filepath.Base(dir) == "src" {
		dir = filepath.Dir(dir)
	}
	return dir
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// runBounded runs a command in dir with a hard timeout and returns its
// combined output.
func runBounded(ctx context.Context, timeout time.Duration, dir, name string, args ...string) (string, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), cctx.Err() == context.DeadlineExceeded, err
}

func (e *Engine) checkFrontendBuild(ctx context.Context, req Request) (Verdict, bool) {
	if len(req.Files) == 0 {
		return Verdict{}, false
	}
	dir := projectDir(req, "package.json")
	if !fileExists(filepath.Join(dir, "package.json")) {
		return fail(FrontendBuildTest, "package.json not found", dir), true
	}
	if _, err := exec.LookPath("npm"); err != nil {
		return fail(FrontendBuildTest, "npm not found in PATH", err.Error()), true
	}

	e.logger.Debug("running npm install", "dir", dir)
	out, timedOut, err := runBounded(ctx, e.installTimeout, dir, "npm", "install")
	switch {
	case timedOut:
		return fail(FrontendBuildTest, fmt.Sprintf("npm install timeout (%s)", e.installTimeout), out), true
	case err != nil:
		return fail(FrontendBuildTest, "npm install failed: "+util.TruncateString(strings.TrimSpace(out), 100), out), true
	}
	return pass(FrontendBuildTest, "npm install succeeded"), true
}

func (e *Engine) checkBackendServer(ctx context.Context, req Request) (Verdict, bool) {
	if len(req.Files) == 0 {
		return Verdict{}, false
	}
	dir := projectDir(req, "main.py")
	if !fileExists(filepath.Join(dir, "main.py")) {
		return fail(BackendServerTest, "Main file not found: main.py", dir), true
	}
	python, err := e.pythonBin()
	if err != nil {
		return fail(BackendServerTest, "Server start failed: no python interpreter", err.Error()), true
	}

	if fileExists(filepath.Join(dir, "requirements.txt")) {
		out, timedOut, err := runBounded(ctx, e.installTimeout, dir, python, "-m", "pip", "install", "-q", "-r", "requirements.txt")
		if timedOut {
			return fail(BackendServerTest, fmt.Sprintf("pip install timeout (%s)", e.installTimeout), out), true
		}
		if err != nil {
			return fail(BackendServerTest, "pip install failed", out), true
		}
	}

	return e.bootAndProbe(ctx, python, dir), true
}

// bootAndProbe starts uvicorn, polls /health until it answers or the boot
// timeout passes, then kills the server and waits for it to exit.
func (e *Engine) bootAndProbe(ctx context.Context, python, dir string) Verdict {
	sctx, cancel := context.WithTimeout(ctx, e.bootTimeout+5*time.Second)
	defer cancel()

	port := fmt.Sprint(e.serverPort)
	cmd := exec.CommandContext(sctx, python, "-m", "uvicorn", "main:app", "--host", "127.0.0.1", "--port", port)
	cmd.Dir = dir
	var logs strings.Builder
	cmd.Stdout = &logs
	cmd.Stderr = &logs

	if err := cmd.Start(); err != nil {
		return fail(BackendServerTest, "Server start failed: "+util.TruncateString(err.Error(), 100), "")
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	healthy, exited, lastErr := e.probeHealth(sctx, "http://127.0.0.1:"+port+"/health", done)
	if !exited {
		_ = cmd.Process.Kill()
		<-done
	}

	switch {
	case healthy:
		return pass(BackendServerTest, "Server started and health check passed")
	case exited:
		return fail(BackendServerTest, "Server health check failed: server exited", logs.String())
	default:
		return fail(BackendServerTest, "Server health check failed: "+util.TruncateString(lastErr, 100), logs.String())
	}
}

// probeHealth polls url until it returns 200, the server exits or the boot
// timeout passes.
func (e *Engine) probeHealth(ctx context.Context, url string, done <-chan error) (healthy, exited bool, lastErr string) {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.After(e.bootTimeout)
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-done:
			return false, true, "server exited"
		case <-deadline:
			return false, false, lastErr
		case <-ctx.Done():
			return false, false, ctx.Err().Error()
		case <-tick.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, false, err.Error()
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err.Error()
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return true, false, ""
		}
		lastErr = fmt.Sprintf("status %d", resp.StatusCode)
	}
}
