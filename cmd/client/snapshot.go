package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vecring/vecring/pkg/cli"
	"github.com/vecring/vecring/pkg/rpc"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Trigger a snapshot on the target backend or router",
	Long: `snapshot asks the target to publish a point-in-time image of its
index to disk (and to its archive store, if one is configured).

When pointed at a router, the snapshot request is broadcast to every node
on the ring, best-effort.`,
	RunE: runSnapshot,
}

func init() {
	registerEndpointFlags(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	target, err := resolveURL()
	if err != nil {
		return err
	}

	client, err := rpc.Dial(target)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", target, err)
	}
	defer client.Close()

	if err := client.Snapshot(context.Background()); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	cli.PrintSuccess("snapshot complete")
	return nil
}
