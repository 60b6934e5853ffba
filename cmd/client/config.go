package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vecring/vecring/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage saved endpoints",
	Long: `config manages named endpoints (contexts) so repeated invocations
of put/search/snapshot don't need to repeat --url.

Examples:
  client config add-context prod --url ws://vecring-prod:8080/rpc
  client config use-context prod
  client search --context prod --vector 0.1,0.2,0.3`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Save a named endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig(appName)
		if err != nil {
			return err
		}
		baseURL, _ := cmd.Flags().GetString("url")
		if baseURL == "" {
			return fmt.Errorf("--url is required")
		}
		return cfg.AddContext(args[0], &cli.Context{BaseURL: baseURL})
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the default context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig(appName)
		if err != nil {
			return err
		}
		return cfg.UseContext(args[0])
	},
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"ls"},
	Short:   "List saved endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig(appName)
		if err != nil {
			return err
		}

		names := cfg.ListContexts()
		if len(names) == 0 {
			fmt.Println("No contexts configured. Create one with: client config add-context <name> --url ws://host:port/rpc")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tURL")
		for _, name := range names {
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			ctx, _ := cfg.GetContext(name)
			fmt.Fprintf(w, "%s\t%s\t%s\n", current, name, ctx.BaseURL)
		}
		return w.Flush()
	},
}

func init() {
	configAddContextCmd.Flags().String("url", "", "websocket URL of the endpoint")
	configCmd.AddCommand(configAddContextCmd, configUseContextCmd, configListContextsCmd)
}
