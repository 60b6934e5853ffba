// Command router serves the replication/fan-out layer in front of a fixed
// set of backend nodes: quorum writes and merged broadcast search, over
// the same RPC websocket protocol the backend speaks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/vecring/vecring/pkg/ring"
	"github.com/vecring/vecring/pkg/router"
	"github.com/vecring/vecring/pkg/rpc"
)

var (
	configPath string
	listenAddr string
)

var rootCmd = &cobra.Command{
	Use:   "router",
	Short: "Run the vecring replication/fan-out router",
	Long: `router loads a boot-time ring of backend node addresses plus the
replication factor R and write quorum W from a YAML config file, and
serves the same RPC protocol backend nodes do — Put fans out to R nodes
on the ring and waits for W acks, Search broadcasts to every node and
merges the results.`,
	RunE: runRouter,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "ring.yaml", "path to the ring/replication config YAML file")
	rootCmd.Flags().StringVar(&listenAddr, "listen", ":9090", "address to listen on")
}

// ringConfig is the on-disk shape of --config.
type ringConfig struct {
	Nodes        []string `yaml:"nodes"`
	R            int      `yaml:"r"`
	W            int      `yaml:"w"`
	VirtualNodes int      `yaml:"virtual_nodes,omitempty"`
}

func loadRingConfig(path string) (*ringConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg ringConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("config %s: nodes must not be empty", path)
	}
	if cfg.R <= 0 {
		cfg.R = len(cfg.Nodes)
	}
	if cfg.W <= 0 {
		cfg.W = 1
	}
	return &cfg, nil
}

// dialNode adapts rpc.Dial (ws://addr/rpc) to router.Dialer, and adapts the
// resulting *rpc.Client (hnsw-typed Search) to router.NodeClient.
func dialNode(addr string) (router.NodeClient, error) {
	client, err := rpc.Dial("ws://" + addr + "/rpc")
	if err != nil {
		return nil, err
	}
	return client, nil
}

func runRouter(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := loadRingConfig(configPath)
	if err != nil {
		return err
	}

	rt := router.New(router.Config{
		Ring:   ring.New(cfg.Nodes, cfg.VirtualNodes),
		R:      cfg.R,
		W:      cfg.W,
		Dial:   dialNode,
		Logger: logger,
	})

	srv := rpc.NewServer(rt, logger)
	httpSrv := &http.Server{Addr: listenAddr, Handler: srv}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("router listening", "addr", listenAddr, "nodes", cfg.Nodes, "r", cfg.R, "w", cfg.W)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
