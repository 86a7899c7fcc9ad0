// Package clientstore remembers which client software each player last
// connected with and which protocol extensions it negotiated.
package clientstore

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	bbolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned by Get for players with no record.
var ErrNotFound = errors.New("clientstore: not found")

// Record describes a player's most recent client.
type Record struct {
	Player     string
	AppName    string           // "" for vanilla clients
	CPE        bool             // client asked for extension negotiation
	Extensions map[string]int32 // matched extensions and versions
	Address    string
	Transport  string // "tcp" or "ws"
	FirstSeen  time.Time
	LastSeen   time.Time
	Visits     int
}

// Store wraps a bbolt database of client records.
type Store struct {
	bolt *bbolt.DB
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("clientstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketClients); err != nil {
			return err
		}
		if v := meta.Get(keySchema); v != nil && keyToInt(v) != schemaVersion {
			return fmt.Errorf("schema version %d, want %d", keyToInt(v), schemaVersion)
		}
		return meta.Put(keySchema, intToKey(schemaVersion))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("clientstore: create buckets: %w", err)
	}

	return &Store{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// Touch records a connection from rec.Player. FirstSeen and Visits carry
// over from any earlier record; LastSeen is set to now when zero.
func (s *Store) Touch(rec Record) (*Record, error) {
	if rec.Player == "" {
		return nil, errors.New("clientstore: empty player name")
	}
	if rec.LastSeen.IsZero() {
		rec.LastSeen = time.Now().UTC()
	}
	out := rec
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketClients)
		k := playerKey(rec.Player)
		out.FirstSeen = rec.LastSeen
		out.Visits = 1
		if data := b.Get(k); data != nil {
			prev, err := decodeRecord(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", rec.Player, err)
			}
			out.FirstSeen = prev.FirstSeen
			out.Visits = prev.Visits + 1
		}
		data, err := encodeRecord(&out)
		if err != nil {
			return fmt.Errorf("encode %s: %w", rec.Player, err)
		}
		return b.Put(k, data)
	})
	if err != nil {
		return nil, fmt.Errorf("clientstore: %w", err)
	}
	return &out, nil
}

// Get returns the record for player, or ErrNotFound.
func (s *Store) Get(player string) (*Record, error) {
	var rec *Record
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketClients).Get(playerKey(player))
		if data == nil {
			return ErrNotFound
		}
		var err error
		rec, err = decodeRecord(data)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("clientstore: get %s: %w", player, err)
	}
	return rec, nil
}

// Delete removes player's record.
func (s *Store) Delete(player string) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketClients).Delete(playerKey(player))
	})
}

// List returns every record, ordered by player name.
func (s *Store) List() ([]*Record, error) {
	var out []*Record
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketClients).ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("clientstore: list: %w", err)
	}
	slices.SortFunc(out, func(a, b *Record) int {
		return strings.Compare(strings.ToLower(a.Player), strings.ToLower(b.Player))
	})
	return out, nil
}

// AppCounts tallies records by client software. Vanilla clients are counted
// under "(vanilla)".
func (s *Store) AppCounts() (map[string]int, error) {
	recs, err := s.List()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, r := range recs {
		app := r.AppName
		if app == "" {
			app = "(vanilla)"
		}
		counts[app]++
	}
	return counts, nil
}

// Backup creates a hot snapshot of the bbolt database using tx.WriteTo().
func (s *Store) Backup(path string) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("clientstore: create backup %s: %w", path, err)
		}
		if _, err := tx.WriteTo(f); err != nil {
			f.Close()
			return fmt.Errorf("clientstore: write backup: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("clientstore: close backup %s: %w", path, err)
		}
		log.Info().Str("path", path).Msg("clientstore: backup written")
		return nil
	})
}
