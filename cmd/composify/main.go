package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"composify/cmd/composify/ui"
	"composify/internal/compose"
	"composify/internal/inspect"
	"composify/internal/logging"

	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorMsg("%v", err))
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		opts  runOptions
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "composify [container]",
		Short: "Generate a Docker Compose file from running containers",
		Long: "Inspects one running Docker container (or all of them) and writes an\n" +
			"equivalent docker-compose service definition, optionally merging the\n" +
			"result into an existing compose file.",
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.container = args[0]
			}
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "Output file for the compose definition ('-' for stdout)")
	cmd.Flags().BoolVar(&opts.includePathEnv, "include-path-env", false, "Keep the PATH environment variable in generated services")
	cmd.Flags().StringVar(&opts.addTo, "add-to", "", "Existing compose file to add the new services to")
	cmd.Flags().StringVar(&opts.backend, "backend", "auto", "Inspection backend: auto, api or cli")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return cmd
}

type runOptions struct {
	container      string
	output         string
	includePathEnv bool
	addTo          string
	backend        string
}

func run(ctx context.Context, opts runOptions) error {
	src, err := newSource(ctx, opts.backend)
	if err != nil {
		return err
	}

	records, err := src.Inspect(ctx, opts.container)
	if err != nil {
		return err
	}

	doc := compose.NewDocument()
	merge := false
	if opts.addTo != "" {
		if doc, err = compose.Load(opts.addTo); err != nil {
			return err
		}
		merge = true
	}

	for _, rec := range records {
		name, svc, err := compose.FromInspect(rec, opts.includePathEnv)
		if err != nil {
			return err
		}
		if merge {
			err = doc.Add(name, svc)
		} else {
			err = doc.Set(name, svc)
		}
		if err != nil {
			return err
		}
	}

	if err := doc.Write(opts.output); err != nil {
		return err
	}

	dest := opts.output
	if dest == "-" {
		dest = "stdout"
	}
	fmt.Fprintln(os.Stderr, ui.SuccessMsg("wrote %d service(s) to %s", len(records), ui.Accent(dest)))
	return nil
}

// newSource picks the inspection backend. "auto" prefers the Engine API
// and falls back to the docker CLI when the daemon API is unreachable.
func newSource(ctx context.Context, backend string) (inspect.Source, error) {
	switch backend {
	case "api":
		return inspect.NewAPI(ctx)
	case "cli":
		return inspect.NewCLI(), nil
	case "auto":
		api, err := inspect.NewAPI(ctx)
		if err != nil {
			slog.Debug("Engine API unavailable, using docker CLI.", "err", err)
			return inspect.NewCLI(), nil
		}
		return api, nil
	default:
		return nil, fmt.Errorf("invalid backend %q (expected auto, api or cli)", backend)
	}
}
