package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vecring/vecring/pkg/cli"
	"github.com/vecring/vecring/pkg/rpc"
)

var (
	putID     uint32
	putVector string
	putFile   string
)

var putCmd = &cobra.Command{
	Use:   "put",
	Short: "Insert or overwrite a vector by id",
	Long: `put sends one vector to the backend or router, identified by an
integer id. Inserting an id that already exists overwrites its vector.

Examples:
  client --url ws://localhost:8080/rpc put --id 1 --vector 0.1,0.2,0.3
  client --context prod put --file put-request.yaml`,
	RunE: runPut,
}

// putRequestFile is the shape accepted by --file.
type putRequestFile struct {
	ID     uint32    `yaml:"id" json:"id"`
	Vector []float32 `yaml:"vector" json:"vector"`
}

func init() {
	registerEndpointFlags(putCmd)
	putCmd.Flags().Uint32Var(&putID, "id", 0, "vector id")
	putCmd.Flags().StringVar(&putVector, "vector", "", "comma-separated vector components, e.g. 0.1,0.2,0.3")
	putCmd.Flags().StringVarP(&putFile, "file", "f", "", "load the put request from a YAML/JSON file instead of --id/--vector (\"-\" reads from stdin)")
}

func runPut(cmd *cobra.Command, args []string) error {
	id, vector, err := loadPutRequest()
	if err != nil {
		return err
	}

	target, err := resolveURL()
	if err != nil {
		return err
	}

	client, err := rpc.Dial(target)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", target, err)
	}
	defer client.Close()

	if err := client.Put(context.Background(), id, vector); err != nil {
		return fmt.Errorf("put: %w", err)
	}

	cli.PrintSuccess("put id=%d (%d dimensions)", id, len(vector))
	return nil
}

func loadPutRequest() (uint32, []float32, error) {
	if putFile != "" {
		var req putRequestFile
		var err error
		if putFile == "-" {
			err = cli.LoadRequestFromStdin(&req)
		} else {
			err = cli.LoadRequest(putFile, &req)
		}
		if err != nil {
			return 0, nil, err
		}
		if len(req.Vector) == 0 {
			return 0, nil, fmt.Errorf("file %s: vector must not be empty", putFile)
		}
		return req.ID, req.Vector, nil
	}

	vector, err := parseVector(putVector)
	if err != nil {
		return 0, nil, err
	}
	return putID, vector, nil
}
