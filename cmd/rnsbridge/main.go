// rnsbridge exposes a mesh networking stack to a host process through a
// line-oriented JSON protocol: commands on stdin, events on stdout,
// diagnostics on stderr.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meshbridge/rnsbridge-go/internal/bridge"
	stack "github.com/meshbridge/rnsbridge-go/internal/meshstack"
)

func newRootCommand() *cobra.Command {
	var (
		configDir    string
		identityPath string
	)

	cmd := &cobra.Command{
		Use:           "rnsbridge [port]",
		Short:         "Mesh network stack bridge speaking JSON over stdio",
		Long: `rnsbridge bridges a host process to the mesh networking stack.
It reads JSON commands from stdin (one object per line) and writes JSON
events to stdout. Diagnostics go to stderr and are never part of the
protocol. With no pre-existing configuration, a minimal working config is
synthesized on first start.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The positional port argument is accepted only for invocation
			// compatibility with older supervisors and is otherwise unused.
			opts, err := bridge.LoadOptions()
			if err != nil {
				return fmt.Errorf("load options: %w", err)
			}
			if configDir != "" {
				opts.ConfigDir = configDir
			}
			if identityPath != "" {
				opts.IdentityPath = identityPath
			}
			opts.Resolve()
			if err := opts.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b := bridge.New(opts, stack.New(), os.Stdin, os.Stdout)
			return b.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&configDir, "config", "", "Path to the stack config directory")
	cmd.Flags().StringVar(&identityPath, "identity", "", "Path to the identity file")

	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
