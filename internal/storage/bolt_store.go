// Package storage keeps a history of finished runs in a bbolt file.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"sockbench/internal/runner"
	"sockbench/internal/stats"
)

const (
	BucketRuns = "runs"
)

var ErrNotFound = errors.New("run not found")

var errStop = errors.New("stop")

// Record is one finished run.
type Record struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Config    runner.Config `json:"config"`
	Summary   stats.Summary `json:"summary"`
}

// NewRecord stamps a summary with a fresh ID and the current time.
func NewRecord(cfg runner.Config, summary stats.Summary) Record {
	return Record{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Config:    cfg,
		Summary:   summary,
	}
}

type Store struct {
	db   *bbolt.DB
	path string
}

// DefaultPath is $HOME/.sockbench/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sockbench", "history.db"), nil
}

// Open opens or creates the history file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	return s.db.Close()
}

// key orders records by time; the ID suffix keeps keys unique.
func key(r Record) []byte {
	return []byte(fmt.Sprintf("%020d-%s", r.Timestamp.UnixNano(), r.ID))
}

func (s *Store) Save(r Record) error {
	if r.ID == "" {
		return errors.New("record has no id")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketRuns)).Put(key(r), data)
	})
}

// List returns every record, newest first. Undecodable entries are skipped.
func (s *Store) List() ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var r Record
			if err := json.Unmarshal(v, &r); err == nil {
				records = append(records, r)
			}
		}
		return nil
	})
	return records, err
}

// Get looks a record up by ID or by a unique ID prefix.
func (s *Store) Get(id string) (Record, error) {
	var found []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketRuns)).ForEach(func(_, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return nil
			}
			if r.ID == id {
				found = []Record{r}
				return errStop
			}
			if id != "" && len(r.ID) > len(id) && r.ID[:len(id)] == id {
				found = append(found, r)
			}
			return nil
		})
	})
	if err != nil && !errors.Is(err, errStop) {
		return Record{}, err
	}

	switch len(found) {
	case 0:
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return found[0], nil
	default:
		return Record{}, fmt.Errorf("ambiguous run id %q matches %d runs", id, len(found))
	}
}
