package cargo

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"cratewalk/internal/logging"
	"cratewalk/internal/manifest"
)

var commandContext = exec.CommandContext

// Runner abstracts cargo invocation for testability.
type Runner interface {
	// Run executes binary with args in dir and returns captured stdout and
	// stderr. A non-zero exit is returned as err with the output still
	// populated.
	Run(ctx context.Context, dir, binary string, args []string) (stdout, stderr string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir, binary string, args []string) (string, string, error) {
	cmd := commandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

// Option configures the client.
type Option func(*Client)

// WithBinary overrides the default cargo binary name.
func WithBinary(binary string) Option {
	return func(c *Client) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithRunner injects a custom runner (primarily for tests).
func WithRunner(runner Runner) Option {
	return func(c *Client) {
		if runner != nil {
			c.runner = runner
		}
	}
}

// WithRegistry targets an alternate registry instead of crates.io.
func WithRegistry(registry string) Option {
	return func(c *Client) {
		c.registry = registry
	}
}

// WithToken supplies the registry token passed to cargo publish.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithLogger attaches a logger; the default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client invokes the cargo CLI.
type Client struct {
	binary   string
	registry string
	token    string
	runner   Runner
	logger   *slog.Logger
}

// New constructs a cargo client using defaults.
func New(opts ...Option) *Client {
	client := &Client{
		binary: "cargo",
		runner: execRunner{},
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Publish runs cargo publish for pkg in its package directory. A registry
// response saying the exact version already exists counts as success: the
// desired end state is reached either way, which is what makes retrying a
// possibly-interrupted publish safe.
func (c *Client) Publish(ctx context.Context, pkg manifest.Package, dryRun bool) error {
	args := []string{"publish"}
	if dryRun {
		args = append(args, "--dry-run")
	}
	if c.token != "" {
		args = append(args, "--token", c.token)
	}
	if c.registry != "" {
		args = append(args, "--registry", c.registry)
	}

	c.logger.Info("invoking cargo publish", "package", pkg.Name, "version", pkg.Version, "dry_run", dryRun)
	stdout, stderr, err := c.runner.Run(ctx, pkg.Dir, c.binary, args)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if alreadyPublished(stderr) {
		c.logger.Info("registry already has this version", "package", pkg.Name, "version", pkg.Version)
		return nil
	}

	detail := strings.TrimSpace(stderr)
	if detail == "" {
		detail = strings.TrimSpace(stdout)
	}
	return fmt.Errorf("cargo publish %s@%s: %s: %w", pkg.Name, pkg.Version, detail, err)
}

// IsPublished queries the registry for name@version via cargo search.
func (c *Client) IsPublished(ctx context.Context, name, version string) (bool, error) {
	args := []string{"search", name, "--limit", "1"}
	if c.registry != "" {
		args = append(args, "--registry", c.registry)
	}

	stdout, stderr, err := c.runner.Run(ctx, "", c.binary, args)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("cargo search %s: %s: %w", name, strings.TrimSpace(stderr), err)
	}

	return searchListsVersion(stdout, name, version), nil
}

// alreadyPublished matches the registry's duplicate-version responses.
func alreadyPublished(stderr string) bool {
	if strings.Contains(stderr, "already exists on crates.io index") {
		return true
	}
	return strings.Contains(stderr, "crate version") && strings.Contains(stderr, "is already uploaded")
}

// searchListsVersion scans cargo search output for an exact name and version
// match. Lines look like:
//
//	utils = "0.1.0"    # helper crate
func searchListsVersion(stdout, name, version string) bool {
	for _, line := range strings.Split(stdout, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), name)
		if !ok {
			continue
		}
		rest = strings.TrimSpace(rest)
		rest, ok = strings.CutPrefix(rest, "=")
		if !ok {
			continue
		}
		rest = strings.TrimSpace(rest)
		if quoted := fmt.Sprintf("%q", version); strings.HasPrefix(rest, quoted) {
			return true
		}
	}
	return false
}
