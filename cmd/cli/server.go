package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const serverBinaryName = "contentsync-server"

// launcher starts a local server for commands that need one
type launcher struct {
	baseURL string
	// binary overrides the lookup when set
	binary     string
	configFile string
	timeout    time.Duration
	interval   time.Duration
	client     *http.Client
}

var serverLauncher = &launcher{
	interval: 200 * time.Millisecond,
	client:   &http.Client{Timeout: time.Second},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&serverLauncher.binary, "server-bin", os.Getenv("CONTENTSYNC_SERVER_BIN"),
		"Server binary to auto-start (default: next to this binary, then PATH)")
	flags.StringVar(&serverLauncher.configFile, "server-config", os.Getenv("CONTENTSYNC_CONFIG"),
		"Config file passed to an auto-started server")
	flags.DurationVar(&serverLauncher.timeout, "start-timeout", 10*time.Second,
		"How long to wait for an auto-started server")
}

// healthy reports whether the server answers its health check
func (l *launcher) healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// candidates lists where the server binary is looked for, in order
func (l *launcher) candidates() []string {
	if l.binary != "" {
		return []string{l.binary}
	}

	var paths []string
	if self, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(self), serverBinaryName))
	}
	if onPath, err := exec.LookPath(serverBinaryName); err == nil {
		paths = append(paths, onPath)
	}
	return paths
}

func (l *launcher) resolve() (string, error) {
	tried := l.candidates()
	for _, p := range tried {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	if len(tried) == 0 {
		return "", fmt.Errorf("%s not found next to the CLI or on PATH, use --server-bin", serverBinaryName)
	}
	return "", fmt.Errorf("%s not found (tried %v), use --server-bin", serverBinaryName, tried)
}

// spawn starts the server detached from this process
func (l *launcher) spawn() error {
	bin, err := l.resolve()
	if err != nil {
		return err
	}

	var args []string
	if l.configFile != "" {
		args = append(args, "-config", l.configFile)
	}
	cmd := exec.Command(bin, args...)
	setSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", bin, err)
	}
	go cmd.Wait()
	return nil
}

// waitReady polls the health check until it passes or ctx ends
func (l *launcher) waitReady(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if l.healthy(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("server did not become healthy within %v", l.timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ensure starts the server unless it is already answering
func (l *launcher) ensure(ctx context.Context) error {
	if l.healthy(ctx) {
		return nil
	}

	fmt.Fprintln(os.Stderr, "Server not running, starting...")
	if err := l.spawn(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.waitReady(ctx); err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "Server started")
	return nil
}
