package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/wpdl/internal/api"
	"github.com/matheus3301/wpdl/internal/session"
	"github.com/matheus3301/wpdl/internal/tui"
)

func main() {
	sessionFlag := flag.String("session", "", "session to activate when starting the daemon")
	flag.Parse()

	socketPath := session.DefaultLayout().SocketPath()

	// Probe daemon health; auto-start if needed.
	if !pingDaemon(socketPath) {
		fmt.Fprintln(os.Stderr, "daemon not running, starting...")
		if err := startDaemon(*sessionFlag); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		if !waitForDaemon(socketPath, 10*time.Second) {
			fmt.Fprintf(os.Stderr, "daemon did not become ready\n")
			os.Exit(1)
		}
	}

	c, err := api.Dial(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to daemon: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if *sessionFlag != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.SelectSession(ctx, *sessionFlag)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "select session: %v\n", err)
			os.Exit(1)
		}
	}

	app := tui.NewApp(c)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// pingDaemon checks if a daemon is running and responsive on the socket.
func pingDaemon(socketPath string) bool {
	c, err := api.Dial(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = c.Status(ctx)
	return err == nil
}

func startDaemon(sessionID string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	wpdld := filepath.Join(filepath.Dir(executable), "wpdld")
	if _, err := os.Stat(wpdld); err != nil {
		wpdld = "wpdld"
	}

	var args []string
	if sessionID != "" {
		args = append(args, "--session", sessionID)
	}
	cmd := exec.Command(wpdld, args...)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

// waitForDaemon polls until the daemon answers a status call.
func waitForDaemon(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pingDaemon(socketPath) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
