package inspect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// runner executes one docker CLI invocation and returns its stdout.
type runner func(ctx context.Context, args ...string) ([]byte, error)

// CLI inspects containers by shelling out to the docker command line
// client. It is the fallback for hosts where the Engine API is not
// reachable but a docker binary is on PATH.
type CLI struct {
	binary string
	run    runner
}

// CLIOption configures a CLI source.
type CLIOption func(*CLI)

// WithBinary sets the docker binary to invoke. Defaults to "docker"
// (found via PATH).
func WithBinary(path string) CLIOption {
	return func(c *CLI) { c.binary = path }
}

// NewCLI creates a subprocess-based inspection source.
func NewCLI(opts ...CLIOption) *CLI {
	c := &CLI{binary: "docker"}
	for _, opt := range opts {
		opt(c)
	}
	if c.run == nil {
		c.run = c.exec
	}
	return c
}

// Inspect implements Source.
func (c *CLI) Inspect(ctx context.Context, id string) ([]Record, error) {
	if id != "" {
		rec, err := c.inspectOne(ctx, id)
		if err != nil {
			return nil, err
		}
		return []Record{rec}, nil
	}

	out, err := c.run(ctx, "ps", "-q")
	if err != nil {
		return nil, &BackendError{Err: err}
	}

	ids := strings.Fields(string(out))
	records := make([]Record, 0, len(ids))
	for _, cid := range ids {
		rec, err := c.inspectOne(ctx, cid)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	slog.Debug("Inspected running containers.", "count", len(records))
	return records, nil
}

func (c *CLI) inspectOne(ctx context.Context, id string) (Record, error) {
	out, err := c.run(ctx, "inspect", "--type", "container", id)
	if err != nil {
		// The docker CLI reports a missing container as "No such object"
		// (older versions say "No such container") on stderr.
		if strings.Contains(err.Error(), "No such") {
			return Record{}, &NotFoundError{ID: id}
		}
		return Record{}, &BackendError{Err: err}
	}

	var records []Record
	if err := json.Unmarshal(out, &records); err != nil {
		return Record{}, &MalformedOutputError{Err: err}
	}
	if len(records) == 0 {
		return Record{}, &NotFoundError{ID: id}
	}
	return records[0], nil
}

func (c *CLI) exec(ctx context.Context, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("Running docker CLI.", "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", c.binary, args[0], err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", c.binary, args[0], err)
	}
	return stdout.Bytes(), nil
}
