package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vecring/vecring/pkg/cli"
)

const appName = "client"

var (
	url       string
	ctxName   string
	outFormat string
	outFile   string
)

func registerEndpointFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&url, "url", "", "websocket URL of the backend or router (e.g. ws://host:port/rpc)")
	cmd.Flags().StringVar(&ctxName, "context", "", "named endpoint saved via 'client config add-context' (defaults to the current context)")
	cmd.Flags().StringVar(&outFormat, "format", "table", "output format: table, yaml, json")
	cmd.Flags().StringVar(&outFile, "output", "", "write output to a file instead of stdout")
}

// resolveURL returns the websocket URL to dial: --url if given, else the
// named or current context's BaseURL from the saved config.
func resolveURL() (string, error) {
	if url != "" {
		return url, nil
	}

	cfg, err := cli.LoadConfig(appName)
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}

	ctx, err := cfg.ResolveContext(ctxName)
	if err != nil {
		return "", fmt.Errorf("no --url given and no context resolved: %w", err)
	}
	if ctx.BaseURL == "" {
		return "", fmt.Errorf("context %q has no base_url set", ctx.Name)
	}
	return ctx.BaseURL, nil
}

// structuredOutputOptions builds cli.OutputOptions for the yaml/json
// formats. Callers that also support table output set Format to
// cli.FormatTable themselves when outFormat == "table"; cli.Output
// dispatches that to a result's Tabular implementation.
func structuredOutputOptions() cli.OutputOptions {
	format := cli.FormatYAML
	if outFormat == "json" {
		format = cli.FormatJSON
	}
	return cli.OutputOptions{Format: format, File: outFile}
}
