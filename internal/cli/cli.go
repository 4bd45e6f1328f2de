package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/specialistvlad/healthmesh/internal/app"
	"github.com/specialistvlad/healthmesh/internal/config"
	"github.com/specialistvlad/healthmesh/internal/pollnow"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Execute runs the command line in args against outW.
func Execute(ctx context.Context, args []string, outW io.Writer) error {
	root := NewRootCommand(outW)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. Every call returns an independent
// tree so tests can run in parallel.
func NewRootCommand(outW io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "healthmesh",
		Short: "Live health-mesh reconciliation service",
		Long: `healthmesh consumes the upstream health stream, keeps an incremental
index of instances and services, and pushes graph deltas to browser widgets
over socket.io.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(outW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Message: err.Error()}
	})

	root.PersistentFlags().String("config", "", "Path to an HCL configuration file.")
	root.PersistentFlags().String("log-level", "", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	root.PersistentFlags().String("log-format", "", "Log output format: 'text' or 'json'.")

	root.AddCommand(newServeCommand(outW), newPollNowCommand(outW), newVersionCommand(outW))
	return root
}

func newServeCommand(outW io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the service",
		Long: `Run the service until interrupted.

Examples:
  # Discover the stream URL from the default endpoint
  healthmesh serve

  # Dial a fixed stream and draw one node per instance
  healthmesh serve --source-url=ws://localhost:8080/api/ws --view=nodes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, map[string]string{
				"source.url":     "source-url",
				"listen.address": "listen",
				"view.mode":      "view",
			})
			if err != nil {
				return err
			}
			a := app.New(outW, cfg)
			defer a.Close()
			return a.Run(cmd.Context())
		},
	}
	cmd.Flags().String("source-url", "", "Stream URL. Discovered from source.ws_url_endpoint when empty.")
	cmd.Flags().String("listen", "", "HTTP listen address.")
	cmd.Flags().String("view", "", "Projection to draw: 'services' or 'nodes'.")
	return cmd
}

func newPollNowCommand(outW io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll-now ID",
		Short: "Ask the agents to poll one node immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, map[string]string{"agents.base_url": "agents-url"})
			if err != nil {
				return err
			}
			client := pollnow.New(pollnow.Options{BaseURL: cfg.Agents.BaseURL, Timeout: cfg.Agents.Timeout})
			defer client.Close()

			id := args[0]
			if err := client.PollNow(cmd.Context(), id); err != nil {
				if errors.Is(err, pollnow.ErrUnknownNode) {
					return &ExitError{Code: 3, Message: err.Error()}
				}
				return err
			}
			fmt.Fprintf(outW, "Poll requested for %s.\n", id)
			return nil
		},
	}
	cmd.Flags().String("agents-url", "", "Base URL of the agents API.")
	return cmd
}

func newVersionCommand(outW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(outW, "healthmesh %s\n", Version)
		},
	}
}

// loadConfig layers flags over the environment, the config file and the
// defaults. flags maps config keys to the local flag names that override them.
func loadConfig(cmd *cobra.Command, flags map[string]string) (*config.Config, error) {
	v := config.NewViper()
	bind := func(key string, f *pflag.Flag) error {
		if f == nil {
			return fmt.Errorf("flag for %s is not defined", key)
		}
		return v.BindPFlag(key, f)
	}
	persistent := cmd.Root().PersistentFlags()
	if err := errors.Join(
		bind("log.level", persistent.Lookup("log-level")),
		bind("log.format", persistent.Lookup("log-format")),
	); err != nil {
		return nil, err
	}
	for key, name := range flags {
		if err := bind(key, cmd.Flags().Lookup(name)); err != nil {
			return nil, err
		}
	}

	path, err := persistent.GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(v, path)
	if errors.Is(err, config.ErrInvalid) {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, err
}
