package hnsw

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Binary format version and magic bytes for snapshot serialization.
var snapshotMagic = [4]byte{'H', 'N', 'S', 'W'}

const snapshotVersion uint32 = 1

// Save serializes the index to w in a compact binary format, along with
// lastSeq: the write-ahead-log sequence number reflected by this snapshot.
// On load, a caller replays only WAL records with a higher sequence number.
//
// Format overview:
//
//	[4B magic "HNSW"] [4B version]
//	[4B M] [4B efConstruction]
//	[4B nodeCount] [1B hasEntry] [4B entryPoint] [4B maxLayer] [8B lastSeq]
//	For each node:
//	  [4B id] [4B vecLen] [vecLen × 4B float32]
//	  [4B level+1]
//	  For each layer 0..level:
//	    [4B numFriends] [numFriends × 4B friend ids]
func (h *Index) Save(w io.Writer, lastSeq uint64) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	bw := bufio.NewWriter(w)
	le := binary.LittleEndian
	write := func(v any) error { return binary.Write(bw, le, v) }

	if _, err := bw.Write(snapshotMagic[:]); err != nil {
		return fmt.Errorf("hnsw: save magic: %w", err)
	}
	if err := write(snapshotVersion); err != nil {
		return fmt.Errorf("hnsw: save version: %w", err)
	}

	for _, v := range []uint32{uint32(h.cfg.M), uint32(h.cfg.EfConstruction)} {
		if err := write(v); err != nil {
			return fmt.Errorf("hnsw: save config: %w", err)
		}
	}

	if err := write(uint32(len(h.nodes))); err != nil {
		return err
	}
	hasEntry := uint8(0)
	if h.hasEntry {
		hasEntry = 1
	}
	if err := write(hasEntry); err != nil {
		return err
	}
	if err := write(h.entryPoint); err != nil {
		return err
	}
	if err := write(uint32(h.maxLayer)); err != nil {
		return err
	}
	if err := write(lastSeq); err != nil {
		return err
	}

	for id, nd := range h.nodes {
		if err := write(id); err != nil {
			return err
		}
		if err := write(uint32(len(nd.vector))); err != nil {
			return err
		}
		for _, v := range nd.vector {
			if err := write(v); err != nil {
				return err
			}
		}
		if err := write(uint32(len(nd.friends))); err != nil {
			return err
		}
		for _, friends := range nd.friends {
			if err := write(uint32(len(friends))); err != nil {
				return err
			}
			for _, f := range friends {
				if err := write(f); err != nil {
					return err
				}
			}
		}
	}

	return bw.Flush()
}

// Load deserializes an index previously written by [Index.Save], returning
// it alongside the write-ahead-log sequence number it reflects. The returned
// index is ready for immediate use.
func Load(r io.Reader) (*Index, uint64, error) {
	br := bufio.NewReader(r)
	le := binary.LittleEndian
	read := func(v any) error { return binary.Read(br, le, v) }

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, 0, fmt.Errorf("hnsw: load magic: %w", err)
	}
	if magic != snapshotMagic {
		return nil, 0, fmt.Errorf("hnsw: invalid magic %q", magic[:])
	}

	var version uint32
	if err := read(&version); err != nil {
		return nil, 0, fmt.Errorf("hnsw: load version: %w", err)
	}
	if version != snapshotVersion {
		return nil, 0, fmt.Errorf("hnsw: unsupported snapshot version %d (want %d)", version, snapshotVersion)
	}

	var m, efC uint32
	if err := read(&m); err != nil {
		return nil, 0, err
	}
	if err := read(&efC); err != nil {
		return nil, 0, err
	}

	var nodeCount, maxLayer uint32
	var hasEntryByte uint8
	var entryPoint uint32
	var lastSeq uint64
	if err := read(&nodeCount); err != nil {
		return nil, 0, err
	}
	if err := read(&hasEntryByte); err != nil {
		return nil, 0, err
	}
	if err := read(&entryPoint); err != nil {
		return nil, 0, err
	}
	if err := read(&maxLayer); err != nil {
		return nil, 0, err
	}
	if err := read(&lastSeq); err != nil {
		return nil, 0, err
	}

	nodes := make(map[uint32]*node, nodeCount)
	for i := uint32(0); i < nodeCount; i++ {
		var id uint32
		if err := read(&id); err != nil {
			return nil, 0, fmt.Errorf("hnsw: load node %d id: %w", i, err)
		}

		var vecLen uint32
		if err := read(&vecLen); err != nil {
			return nil, 0, fmt.Errorf("hnsw: load node %d vector length: %w", i, err)
		}
		vec := make([]float32, vecLen)
		for j := range vec {
			if err := read(&vec[j]); err != nil {
				return nil, 0, fmt.Errorf("hnsw: load node %d vector: %w", i, err)
			}
		}

		var numLayers uint32
		if err := read(&numLayers); err != nil {
			return nil, 0, fmt.Errorf("hnsw: load node %d layer count: %w", i, err)
		}
		friends := make([][]uint32, numLayers)
		for lev := range friends {
			var nf uint32
			if err := read(&nf); err != nil {
				return nil, 0, fmt.Errorf("hnsw: load node %d layer %d: %w", i, lev, err)
			}
			if nf > 0 {
				friends[lev] = make([]uint32, nf)
				for k := range friends[lev] {
					if err := read(&friends[lev][k]); err != nil {
						return nil, 0, fmt.Errorf("hnsw: load node %d layer %d friend: %w", i, lev, err)
					}
				}
			}
		}

		nodes[id] = &node{vector: vec, friends: friends}
	}

	cfg := Config{M: int(m), EfConstruction: int(efC)}
	cfg.setDefaults()

	idx := &Index{
		cfg:        cfg,
		nodes:      nodes,
		entryPoint: entryPoint,
		hasEntry:   hasEntryByte != 0,
		maxLayer:   int(maxLayer),
		levelMul:   1.0 / math.Log(float64(cfg.M)),
	}
	return idx, lastSeq, nil
}
