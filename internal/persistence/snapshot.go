package persistence

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/tak458/trading-sim-sub000/internal/config"
	"github.com/tak458/trading-sim-sub000/internal/engine"
	"github.com/tak458/trading-sim-sub000/internal/village"
)

const snapshotVersion = 1

// Header identifies a snapshot file. It rides as a JSON line ahead of
// the gob payload so tools can sniff a file without decoding it.
type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Tick    uint64 `json:"tick"`
}

// Snapshot is a complete, portable capture of a run: enough to rebuild
// the world (seed and dimensions), the balance parameters in force,
// and the full settlement and event state.
type Snapshot struct {
	Header

	Seed   int64
	Width  int
	Height int

	Params      config.Params
	Settlements []*village.Settlement
	Events      []engine.Event
}

// Capture assembles a snapshot of the running simulation.
func Capture(sim *engine.Simulation, runID string, seed int64) Snapshot {
	snap := Snapshot{
		Header:      Header{Version: snapshotVersion, RunID: runID, Tick: sim.CurrentTick()},
		Seed:        seed,
		Params:      sim.Params,
		Settlements: sim.Settlements,
		Events:      sim.Events,
	}
	if sim.Tiles != nil {
		snap.Width = sim.Tiles.Width
		snap.Height = sim.Tiles.Height
	}
	return snap
}

// WriteSnapshot writes a zstd-compressed snapshot file at path,
// creating parent directories as needed.
func WriteSnapshot(path string, snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// ReadSnapshot reads a snapshot file written by WriteSnapshot.
func ReadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Skip the header line; the gob payload carries the header too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
