package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/glog"
)

const JournalFileName = "journal.jsonl"

// JournalEntry records how one network operation ended.
type JournalEntry struct {
	Timestamp string `json:"timestamp"`
	Operation string `json:"operation"`
	Outcome   string `json:"outcome"`
	Attempts  int    `json:"attempts"`
}

// Journal is an append-only JSON lines log of operation outcomes.
type Journal struct {
	mu       sync.Mutex
	filePath string
}

func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &Journal{filePath: filepath.Join(dir, JournalFileName)}, nil
}

func (j *Journal) Log(entry JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	f, err := os.OpenFile(j.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	return nil
}

// RecordOutcome logs an operation outcome. Write failures are only logged.
func (j *Journal) RecordOutcome(operation, outcome string, attempts int) {
	err := j.Log(JournalEntry{Operation: operation, Outcome: outcome, Attempts: attempts})
	if err != nil {
		glog.Warningf("storage: journal: %v", err)
	}
}

// ReadAll returns the logged entries up to the first one that fails to
// decode.
func (j *Journal) ReadAll() ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []JournalEntry{}, nil
		}
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	entries := []JournalEntry{}
	dec := json.NewDecoder(f)
	for dec.More() {
		var entry JournalEntry
		if err := dec.Decode(&entry); err != nil {
			glog.Warningf("storage: journal: stopping at undecodable entry: %v", err)
			break
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
