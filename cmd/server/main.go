// Command server boots one backend node: an HNSW index durable behind a
// write-ahead log, exposed over the RPC websocket endpoint a router or
// client dials directly.
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

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/vecring/vecring/pkg/backend"
	"github.com/vecring/vecring/pkg/rpc"
	"github.com/vecring/vecring/pkg/storage"
)

var (
	port          int
	snapshotDir   string
	archiveBucket string
	archivePrefix string
	indexM        int
	indexEfConstr int
	listenAddr    string
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Run one vecring backend node",
	Long: `server boots a single backend node: an HNSW index made durable by
a write-ahead log, listening for RPC requests over a websocket endpoint.

On startup it recovers from vectors_<port>.snap and vectors_<port>.wal in
--snapshot-dir, if present, replaying any WAL records newer than the
snapshot's recorded sequence number.`,
	RunE: runServer,
}

func init() {
	rootCmd.Flags().IntVar(&port, "port", 8080, "port to listen on and to derive the WAL/snapshot filenames from")
	rootCmd.Flags().StringVar(&snapshotDir, "snapshot-dir", ".", "directory holding the WAL and snapshot files")
	rootCmd.Flags().StringVar(&archiveBucket, "archive-s3-bucket", "", "optional S3 bucket to archive snapshots to")
	rootCmd.Flags().StringVar(&archivePrefix, "archive-s3-prefix", "", "key prefix within --archive-s3-bucket")
	rootCmd.Flags().IntVar(&indexM, "m", 16, "HNSW M parameter for a freshly created index")
	rootCmd.Flags().IntVar(&indexEfConstr, "ef-construction", 200, "HNSW ef_construction parameter for a freshly created index")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "address to listen on; defaults to :<port>")
}

func runServer(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	var archive storage.FileStore
	if archiveBucket != "" {
		awsCfg, err := config.LoadDefaultConfig(cmd.Context())
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		archive = storage.NewS3(s3.NewFromConfig(awsCfg), archiveBucket, archivePrefix)
	}

	b, err := backend.Open(backend.Config{
		Port:           port,
		Dir:            snapshotDir,
		M:              indexM,
		EfConstruction: indexEfConstr,
		Archive:        archive,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("opening backend: %w", err)
	}
	defer b.Close()

	addr := listenAddr
	if addr == "" {
		addr = fmt.Sprintf(":%d", port)
	}

	srv := rpc.NewServer(b, logger)
	httpSrv := &http.Server{Addr: addr, Handler: srv}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "port", port, "dir", snapshotDir)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
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
