package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vecring/vecring/pkg/cli"
	"github.com/vecring/vecring/pkg/hnsw"
	"github.com/vecring/vecring/pkg/rpc"
)

var (
	searchVector string
	searchK      uint32
	searchFile   string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find the k nearest neighbors of a query vector",
	Long: `search sends a query vector to the backend or router and prints
the k nearest results, ordered by ascending distance.

Examples:
  client --url ws://localhost:8080/rpc search --vector 0.1,0.2,0.3 --k 5
  client --context prod search --file search-request.yaml --format json`,
	RunE: runSearch,
}

// searchRequestFile is the shape accepted by --file.
type searchRequestFile struct {
	Vector []float32 `yaml:"vector" json:"vector"`
	K      uint32    `yaml:"k" json:"k"`
}

func init() {
	registerEndpointFlags(searchCmd)
	searchCmd.Flags().StringVar(&searchVector, "vector", "", "comma-separated query vector components")
	searchCmd.Flags().Uint32Var(&searchK, "k", 10, "number of nearest neighbors to return")
	searchCmd.Flags().StringVarP(&searchFile, "file", "f", "", "load the search request from a YAML/JSON file instead of --vector/--k (\"-\" reads from stdin)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	vector, k, err := loadSearchRequest()
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

	start := time.Now()
	results, err := client.Search(context.Background(), vector, k)
	elapsed := time.Since(start)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	return printSearchResults(results, elapsed)
}

func loadSearchRequest() ([]float32, uint32, error) {
	if searchFile != "" {
		var req searchRequestFile
		var err error
		if searchFile == "-" {
			err = cli.LoadRequestFromStdin(&req)
		} else {
			err = cli.LoadRequest(searchFile, &req)
		}
		if err != nil {
			return nil, 0, err
		}
		if len(req.Vector) == 0 {
			return nil, 0, fmt.Errorf("file %s: vector must not be empty", searchFile)
		}
		k := req.K
		if k == 0 {
			k = searchK
		}
		return req.Vector, k, nil
	}

	vector, err := parseVector(searchVector)
	if err != nil {
		return nil, 0, err
	}
	return vector, searchK, nil
}

// searchResultsTable adapts a slice of search results to cli.Tabular, so
// the table branch of Output can render it without a type switch.
type searchResultsTable []hnsw.Result

func (rs searchResultsTable) TableRows() (headers []string, rows [][]string) {
	headers = []string{"RANK", "ID", "DISTANCE"}
	rows = make([][]string, len(rs))
	for i, r := range rs {
		rows[i] = []string{fmt.Sprintf("%d", i+1), fmt.Sprintf("%d", r.ID), fmt.Sprintf("%.6f", r.Distance)}
	}
	return headers, rows
}

func printSearchResults(results []hnsw.Result, elapsed time.Duration) error {
	opts := structuredOutputOptions()
	if outFormat == "table" {
		opts.Format = cli.FormatTable
	}

	if err := cli.Output(searchResultsTable(results), opts); err != nil {
		return err
	}

	if outFormat == "table" && outFile == "" {
		fmt.Printf("\n%d results in %s\n", len(results), cli.FormatDuration(int(elapsed.Milliseconds())))
	}
	return nil
}
