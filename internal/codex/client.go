// Package codex wraps the external codex CLI behind a fixed JSON contract.
// Every invocation is an isolated subprocess with a bounded timeout; failures
// of any kind come back as typed results, never as panics or escaping errors.
package codex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/ponpaku/ai-kakeibo-2/internal/common"
)

// Default invocation parameters. Receipt OCR reads an image and gets the long
// timeout; single-item classification gets the short one.
const (
	DefaultBinPath         = "codex"
	DefaultOCRTimeout      = 180 * time.Second
	DefaultClassifyTimeout = 60 * time.Second
)

// Config holds process-level client settings. Per-call parameters (model,
// sandbox mode, prompt overrides) travel in Options.
type Config struct {
	BinPath         string
	OCRTimeout      time.Duration
	ClassifyTimeout time.Duration
}

// Options carries the runtime-tunable invocation parameters, usually sourced
// from the engine settings row.
type Options struct {
	Model         string
	SandboxMode   string
	SystemPrompt  string
	SkipRepoCheck bool
}

// runner executes one subprocess and returns its stdout. Swappable in tests.
type runner func(ctx context.Context, name string, args []string) ([]byte, error)

// Client invokes the codex CLI.
type Client struct {
	run runner
	cfg Config
}

// NewClient creates a codex client, filling unset config with defaults.
func NewClient(cfg Config) *Client {
	if cfg.BinPath == "" {
		cfg.BinPath = DefaultBinPath
	}
	if cfg.OCRTimeout <= 0 {
		cfg.OCRTimeout = DefaultOCRTimeout
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = DefaultClassifyTimeout
	}
	return &Client{cfg: cfg, run: execRunner}
}

// execRunner runs the command and captures stdout, folding stderr into the
// error for diagnostics.
func execRunner(ctx context.Context, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, stderr.String())
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// invoke runs one bounded subprocess call, distinguishing timeouts in the
// returned error message.
func (c *Client) invoke(ctx context.Context, timeout time.Duration, args []string) ([]byte, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := c.run(cmdCtx, c.cfg.BinPath, args)
	if err != nil {
		if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", common.ErrEngineTimeout, timeout)
		}
		return nil, fmt.Errorf("codex exec failed: %w", err)
	}
	return out, nil
}

// baseArgs builds the flags shared by every codex exec invocation.
func baseArgs(opts Options) []string {
	args := []string{"exec"}
	if opts.SkipRepoCheck {
		args = append(args, "--skip-git-repo-check")
	}
	if opts.SandboxMode != "" {
		args = append(args, "--sandbox", opts.SandboxMode)
	}
	if opts.Model != "" {
		args = append(args, "-m", opts.Model)
	}
	return args
}
