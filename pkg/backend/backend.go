// Package backend glues a write-ahead log and an HNSW index into one
// durable node: Put appends to the log before mutating the graph, Search
// reads the graph directly, and Snapshot publishes a point-in-time image
// of it.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vecring/vecring/pkg/cli"
	"github.com/vecring/vecring/pkg/hnsw"
	"github.com/vecring/vecring/pkg/storage"
	"github.com/vecring/vecring/pkg/wal"
)

// Sentinel errors identifying the error kinds a Backend can surface.
var (
	// ErrEmptyVector is returned by Put or Search when given a zero-length
	// vector.
	ErrEmptyVector = errors.New("backend: empty vector")

	// ErrDurability wraps any failure to append, flush, or fsync a WAL
	// record. A Put that fails this way makes no change to the index.
	ErrDurability = errors.New("backend: durability failure")
)

// Config configures a new [Backend].
type Config struct {
	// Port names this backend's on-disk files: vectors_<port>.wal and
	// vectors_<port>.snap, per the CLI contract.
	Port int

	// Dir is the directory holding the WAL and snapshot files. Defaults
	// to the current working directory.
	Dir string

	// M and EfConstruction configure a freshly created index. Ignored if
	// recovery loads an existing snapshot (the snapshot carries its own
	// config).
	M              int
	EfConstruction int

	// Archive, if set, receives a copy of every completed snapshot for
	// off-box durability. Optional.
	Archive storage.FileStore

	// Logger defaults to slog.Default() if nil.
	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Dir == "" {
		c.Dir = "."
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Backend is one durable node: an HNSW index guarded by a WAL.
//
// All methods are safe for concurrent use. putMu spans each Put's WAL
// append and index insert as a single unit, so appliedSeq — the
// sequence number Snapshot reads — only ever advances once the
// corresponding vector is visible in the index. Without that, a
// Snapshot could observe wal.Writer's next-seq counter (bumped by
// Append before Insert runs) ahead of the index it is about to save,
// and record a lastSeq that recovery would treat as "already
// reflected" for a Put that in fact never made it into the snapshot.
type Backend struct {
	idx      *hnsw.Index
	wal      *wal.Writer
	walPath  string
	snapPath string
	archive  storage.FileStore
	logger   *slog.Logger

	putMu      sync.Mutex // spans WAL append + index insert for one Put
	appliedSeq uint64     // highest WAL seq fully reflected in idx, guarded by putMu

	snapMu sync.Mutex // serializes Snapshot calls against each other
}

// Open recovers a Backend from its on-disk files (if present) and leaves
// it ready to serve Put/Search/Snapshot.
//
// Recovery: if a snapshot file exists, load it to establish the index and
// the last WAL sequence number it reflects; otherwise start from an empty
// index at sequence 0. Either way, the WAL is then replayed in full, and
// every record with a sequence number greater than that cutoff is applied
// to the index in order. This bounds recovery time by WAL-since-snapshot
// rather than full WAL history.
func Open(cfg Config) (*Backend, error) {
	cfg.setDefaults()

	walPath := filepath.Join(cfg.Dir, fmt.Sprintf("vectors_%d.wal", cfg.Port))
	snapPath := filepath.Join(cfg.Dir, fmt.Sprintf("vectors_%d.snap", cfg.Port))

	idx, lastSeq, err := loadOrCreateIndex(snapPath, cfg)
	if err != nil {
		return nil, err
	}

	records, err := wal.ReadAll(walPath)
	if err != nil {
		return nil, fmt.Errorf("backend: replay wal: %w", err)
	}

	applied := 0
	appliedSeq := lastSeq
	for _, rec := range records {
		if rec.Seq <= lastSeq {
			continue
		}
		idx.Insert(rec.ID, rec.Vector)
		appliedSeq = rec.Seq
		applied++
	}
	if applied > 0 {
		cfg.Logger.Info("wal replay complete", "port", cfg.Port, "records_applied", applied)
	}

	nextSeq := lastSeq + 1
	if n := len(records); n > 0 && records[n-1].Seq >= nextSeq {
		nextSeq = records[n-1].Seq + 1
	}
	w, err := wal.Open(walPath, nextSeq)
	if err != nil {
		return nil, fmt.Errorf("backend: open wal: %w", err)
	}

	return &Backend{
		idx:        idx,
		wal:        w,
		walPath:    walPath,
		snapPath:   snapPath,
		archive:    cfg.Archive,
		logger:     cfg.Logger,
		appliedSeq: appliedSeq,
	}, nil
}

func loadOrCreateIndex(snapPath string, cfg Config) (*hnsw.Index, uint64, error) {
	f, err := os.Open(snapPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return hnsw.New(hnsw.Config{M: cfg.M, EfConstruction: cfg.EfConstruction}), 0, nil
		}
		return nil, 0, fmt.Errorf("backend: open snapshot: %w", err)
	}
	defer f.Close()

	idx, lastSeq, err := hnsw.Load(f)
	if err != nil {
		return nil, 0, fmt.Errorf("backend: load snapshot: %w", err)
	}
	cfg.Logger.Info("recovered snapshot", "port", cfg.Port, "path", snapPath, "last_seq", lastSeq)
	return idx, lastSeq, nil
}

// Put appends the mutation to the WAL, then inserts into the index.
// Returns ErrEmptyVector if vector is empty, or a wrapped ErrDurability
// if the WAL append fails — in either case the index is left unchanged.
//
// The append and the insert happen under the same lock that Snapshot
// reads appliedSeq through, so a concurrent Snapshot can never observe
// a sequence number as "applied" before the corresponding vector is
// actually visible in the index.
func (b *Backend) Put(id uint32, vector []float32) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}

	b.putMu.Lock()
	defer b.putMu.Unlock()

	rec, err := b.wal.Append(wal.OpPut, id, vector)
	if err != nil {
		b.logger.Error("wal append failed", "id", id, "error", err)
		return fmt.Errorf("%w: %v", ErrDurability, err)
	}

	b.idx.Insert(id, vector)
	b.appliedSeq = rec.Seq
	b.logger.Debug("put", "id", id, "dim", len(vector))
	return nil
}

// Search returns up to k nearest vectors to query. Returns ErrEmptyVector
// if query is empty.
func (b *Backend) Search(query []float32, k uint32) ([]hnsw.Result, error) {
	if len(query) == 0 {
		return nil, ErrEmptyVector
	}
	results := b.idx.Search(query, int(k))
	b.logger.Debug("search", "k", k, "results", len(results))
	return results, nil
}

// Snapshot writes a point-in-time image of the index to a temp file and
// renames it over the snapshot path, so a crash mid-write never leaves a
// truncated snapshot in place. If an archive store is configured, the
// finished snapshot bytes are also uploaded there.
func (b *Backend) Snapshot(ctx context.Context) error {
	b.snapMu.Lock()
	defer b.snapMu.Unlock()

	b.putMu.Lock()
	lastSeq := b.appliedSeq
	b.putMu.Unlock()

	var buf bytes.Buffer
	if err := b.idx.Save(&buf, lastSeq); err != nil {
		return fmt.Errorf("backend: encode snapshot: %w", err)
	}

	tmp := b.snapPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("backend: write snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, b.snapPath); err != nil {
		return fmt.Errorf("backend: publish snapshot: %w", err)
	}
	b.logger.Info("snapshot complete", "path", b.snapPath, "bytes", buf.Len(), "size", cli.FormatBytesInt(buf.Len()))

	if b.archive != nil {
		w, err := b.archive.Write(ctx, filepath.Base(b.snapPath))
		if err != nil {
			return fmt.Errorf("backend: open archive writer: %w", err)
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			_ = w.Close()
			return fmt.Errorf("backend: archive snapshot: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("backend: finalize archived snapshot: %w", err)
		}
		b.logger.Info("snapshot archived", "path", filepath.Base(b.snapPath))
	}

	return nil
}

// Close closes the backend's WAL file.
func (b *Backend) Close() error {
	return b.wal.Close()
}
