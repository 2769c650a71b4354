package adb

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/httprunner/adbpair/pkg/pairing"
)

// Runner invokes the adb binary and captures its output line by line.
type Runner struct {
	path string
}

// NewRunner resolves the adb binary and returns a Runner for it.
func NewRunner(explicitPath string) (*Runner, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return nil, err
	}
	return &Runner{path: path}, nil
}

// Path returns the adb binary used by the runner.
func (r *Runner) Path() string { return r.path }

// ResolvePath picks the adb binary: the explicit path, then adb on PATH, then
// the platform-tools of ANDROID_HOME or ANDROID_SDK_ROOT.
func ResolvePath(explicitPath string) (string, error) {
	if p := strings.TrimSpace(explicitPath); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", errors.Wrapf(err, "adb binary %s", p)
		}
		return p, nil
	}
	if p, err := exec.LookPath(adbBinaryName()); err == nil {
		return p, nil
	}
	for _, env := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT"} {
		root := strings.TrimSpace(os.Getenv(env))
		if root == "" {
			continue
		}
		candidate := filepath.Join(root, "platform-tools", adbBinaryName())
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", errors.New("adb binary not found in PATH, ANDROID_HOME or ANDROID_SDK_ROOT")
}

func adbBinaryName() string {
	if runtime.GOOS == "windows" {
		return "adb.exe"
	}
	return "adb"
}

// ExecuteCommand runs `adb <args...>` feeding stdin. A non-zero exit is reported
// through the result; only a failure to start adb is returned as error.
func (r *Runner) ExecuteCommand(ctx context.Context, args []string, stdin string) (*pairing.CommandResult, error) {
	cmd := exec.CommandContext(ctx, r.path, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &pairing.CommandResult{
		Stdout: splitLines(stdout.Bytes()),
		Stderr: splitLines(stderr.Bytes()),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			return nil, errors.Wrapf(err, "run %s %s", r.path, strings.Join(args, " "))
		}
		result.ExitCode = exitErr.ExitCode()
	}
	log.Debug().
		Strs("args", args).
		Int("exit_code", result.ExitCode).
		Int("stdout_lines", len(result.Stdout)).
		Int("stderr_lines", len(result.Stderr)).
		Msg("adb command finished")
	return result, nil
}

func splitLines(data []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	return lines
}
