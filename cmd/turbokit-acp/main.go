package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lnittman/turbokit-acp/acp"
	"github.com/lnittman/turbokit-acp/agent"
	"github.com/lnittman/turbokit-acp/config"
	"github.com/lnittman/turbokit-acp/session"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand creates the root command. Running it starts the ACP server
// on stdio and blocks until the peer closes the stream.
func newRootCommand() *cobra.Command {
	var traceFlag bool

	rootCmd := &cobra.Command{
		Use:   "turbokit-acp",
		Short: "ACP server connecting AI coding agents to a local project",
		Long: `turbokit-acp speaks the Agent Client Protocol over stdio. Point an
ACP-compliant client at this binary and it will negotiate capabilities, manage
sessions, stream response chunks, and scaffold new projects on request.

Stdout carries nothing but protocol frames; diagnostics go to a trace file
when --trace is set.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(traceFlag)
		},
	}

	rootCmd.Flags().BoolVar(&traceFlag, "trace", false, "Append protocol diagnostics to acp.trace")
	return rootCmd
}

func runServe(traceEnabled bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	ag := agent.New(cfg, session.NewStore())

	// Interrupt and terminate exit immediately; there is no draining of
	// in-flight sessions.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		os.Exit(0)
	}()

	in := bufio.NewReader(os.Stdin)
	out := bufio.NewWriter(os.Stdout)
	return acp.Run(context.Background(), ag, in, out, traceEnabled)
}
