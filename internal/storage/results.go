package storage

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/blake2b"

	"github.com/coffersTech/nanorule/internal/engine"
)

// Bucket keys
var (
	bucketReports = []byte("reports")
	bucketIndex   = []byte("index")
)

// ReportMeta is the small index record kept next to every stored report.
type ReportMeta struct {
	FileID         string    `json:"file_id"`
	Digest         string    `json:"digest"`
	RulesetVersion uint64    `json:"ruleset_version"`
	AnalyzedAt     time.Time `json:"analyzed_at"`
	TotalIssues    int       `json:"total_issues"`
	HighSeverity   int       `json:"high_severity"`
}

// ResultStore persists analysis reports in bbolt. Report bodies are
// zstd-compressed JSON.
type ResultStore struct {
	db      *bolt.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// OpenResultStore opens or creates the database at path.
func OpenResultStore(path string) (*ResultStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketReports, bucketIndex} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &ResultStore{db: db, encoder: enc, decoder: dec}, nil
}

// Close releases the database.
func (s *ResultStore) Close() error {
	s.decoder.Close()
	if err := s.encoder.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

// Put stores r under its file ID, replacing any previous report.
func (s *ResultStore) Put(r *engine.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	meta, err := json.Marshal(ReportMeta{
		FileID:         r.FileID,
		Digest:         r.Digest,
		RulesetVersion: r.RulesetVersion,
		AnalyzedAt:     r.AnalyzedAt,
		TotalIssues:    r.Summary.TotalIssues,
		HighSeverity:   r.Summary.HighSeverity,
	})
	if err != nil {
		return fmt.Errorf("encode report meta: %w", err)
	}
	compressed := s.encoder.EncodeAll(body, nil)

	return s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(r.FileID)
		if err := tx.Bucket(bucketReports).Put(key, compressed); err != nil {
			return err
		}
		return tx.Bucket(bucketIndex).Put(key, meta)
	})
}

// Get returns the report of fileID, or nil when there is none.
func (s *ResultStore) Get(fileID string) (*engine.Report, error) {
	var compressed []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketReports).Get([]byte(fileID)); v != nil {
			// bbolt memory is only valid inside the transaction
			compressed = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || compressed == nil {
		return nil, err
	}

	body, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress report %s: %w", fileID, err)
	}
	var r engine.Report
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", fileID, err)
	}
	return &r, nil
}

// Meta returns the index record of fileID, or nil when there is none.
func (s *ResultStore) Meta(fileID string) (*ReportMeta, error) {
	var meta *ReportMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketIndex).Get([]byte(fileID))
		if v == nil {
			return nil
		}
		meta = &ReportMeta{}
		return json.Unmarshal(v, meta)
	})
	return meta, err
}

// Delete removes the report of fileID.
func (s *ResultStore) Delete(fileID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(fileID)
		if err := tx.Bucket(bucketReports).Delete(key); err != nil {
			return err
		}
		return tx.Bucket(bucketIndex).Delete(key)
	})
}

// List returns the index records of all stored reports, newest first.
func (s *ResultStore) List() ([]ReportMeta, error) {
	var out []ReportMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIndex).ForEach(func(_, v []byte) error {
			var meta ReportMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			out = append(out, meta)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AnalyzedAt.After(out[j].AnalyzedAt)
	})
	return out, nil
}

// PurgeOlderThan deletes reports analyzed before cutoff and returns their
// file IDs.
func (s *ResultStore) PurgeOlderThan(cutoff time.Time) ([]string, error) {
	var purged []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(bucketIndex)
		var stale [][]byte
		if err := index.ForEach(func(k, v []byte) error {
			var meta ReportMeta
			if err := json.Unmarshal(v, &meta); err != nil || meta.AnalyzedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := index.Delete(k); err != nil {
				return err
			}
			if err := tx.Bucket(bucketReports).Delete(k); err != nil {
				return err
			}
			purged = append(purged, string(k))
		}
		return nil
	})
	return purged, err
}

// Digest returns the hex BLAKE2b-256 hash of content.
func Digest(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
