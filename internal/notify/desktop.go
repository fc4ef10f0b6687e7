package notify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Runner executes a command. Tests replace it to capture invocations.
type Runner func(ctx context.Context, name string, args ...string) error

// Desktop shows native notifications: osascript on macOS, notify-send
// elsewhere.
type Desktop struct {
	goos    string
	timeout time.Duration
	run     Runner
}

func NewDesktop() *Desktop {
	return &Desktop{goos: runtime.GOOS, timeout: defaultTimeout, run: execRunner}
}

func (d *Desktop) Show(ctx context.Context, title, body string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	name, args := d.command(title, body)
	if err := d.run(ctx, name, args...); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s timeout", name)
		}
		return err
	}
	return nil
}

func (d *Desktop) command(title, body string) (string, []string) {
	if d.goos == "darwin" {
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeString(body), escapeString(title))
		return "osascript", []string{"-e", script}
	}
	return "notify-send", []string{"--app-name=trashcal", title, body}
}

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s error: %w, stderr: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// escapeString escapes a value for an AppleScript string literal.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
