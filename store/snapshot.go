package store

import (
	"bytes"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pierrec/lz4/v4"
	"lukechampine.com/blake3"

	"github.com/jpenner/bastion/bastion-core/attack"
	"github.com/jpenner/bastion/bastion-core/empire"
)

// Snapshot is the full rehydratable world state. Battles are intentionally
// absent: an attack persisted in IN_BATTLE restarts its battle from scratch
// on the first post-restore step.
type Snapshot struct {
	Empires []*empire.Empire `json:"empires"`
	Attacks []attack.Attack  `json:"attacks"`
	SavedAt time.Time        `json:"saved_at"`
}

var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

func compressLZ4(src []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)
	zw := lz4.NewWriter(buf)
	if _, err := zw.Write(src); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func decompressLZ4(src []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)
	zr := lz4.NewReader(bytes.NewReader(src))
	if _, err := io.Copy(buf, zr); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func hashBLAKE3(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// chainHash links a snapshot blob to its predecessor.
func chainHash(prevHash string, blob []byte) string {
	return hashBLAKE3(append([]byte(prevHash), blob...))
}

const genesisHash = "genesis"

// SaveSnapshot appends a snapshot to the hash chain.
func (s *Store) SaveSnapshot(snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	blob, err := compressLZ4(raw)
	if err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}

	prev := genesisHash
	err = s.db.QueryRow("SELECT final_hash FROM snapshots ORDER BY id DESC LIMIT 1").Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read chain head: %w", err)
	}

	final := chainHash(prev, blob)
	_, err = s.db.Exec(
		"INSERT INTO snapshots (created_at, prev_hash, final_hash, state_blob) VALUES (?, ?, ?, ?)",
		time.Now().Unix(), prev, final, blob,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	slog.Info("snapshot saved", "bytes", len(blob), "empires", len(snap.Empires), "attacks", len(snap.Attacks))
	return nil
}

// LoadLatest returns the newest snapshot, verifying its chain hash. Returns
// (nil, nil) when no snapshot exists yet.
func (s *Store) LoadLatest() (*Snapshot, error) {
	var prev, final string
	var blob []byte
	err := s.db.QueryRow(
		"SELECT prev_hash, final_hash, state_blob FROM snapshots ORDER BY id DESC LIMIT 1",
	).Scan(&prev, &final, &blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if got := chainHash(prev, blob); got != final {
		return nil, fmt.Errorf("snapshot hash mismatch: stored %s computed %s", final, got)
	}

	raw, err := decompressLZ4(blob)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// VerifyChain walks every snapshot and checks the links. Returns the chain
// length.
func (s *Store) VerifyChain() (int, error) {
	rows, err := s.db.Query("SELECT prev_hash, final_hash, state_blob FROM snapshots ORDER BY id ASC")
	if err != nil {
		return 0, fmt.Errorf("read chain: %w", err)
	}
	defer rows.Close()

	expectedPrev := genesisHash
	n := 0
	for rows.Next() {
		var prev, final string
		var blob []byte
		if err := rows.Scan(&prev, &final, &blob); err != nil {
			return n, fmt.Errorf("scan snapshot %d: %w", n, err)
		}
		if prev != expectedPrev {
			return n, fmt.Errorf("snapshot %d: broken link: prev %s, expected %s", n, prev, expectedPrev)
		}
		if got := chainHash(prev, blob); got != final {
			return n, fmt.Errorf("snapshot %d: hash mismatch", n)
		}
		expectedPrev = final
		n++
	}
	return n, rows.Err()
}
