// Package audit keeps a hash-chained JSONL trail of integrity events so a
// reviewer can tell whether a termination record was edited after the fact.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"k8s.io/utils/clock"
)

// EventType names an audited event.
type EventType string

const (
	EventSessionWarned     EventType = "session.warned"
	EventSessionTerminated EventType = "session.terminated"
	EventFlowReset         EventType = "flow.reset"
)

// ErrChainBroken is returned by Verify when a record's hashes do not line up.
var ErrChainBroken = errors.New("audit chain broken")

// Record is one line of the trail.
type Record struct {
	Timestamp  string         `json:"timestamp"`
	Event      EventType      `json:"event"`
	SessionID  string         `json:"session_id,omitempty"`
	UserID     string         `json:"user_id"`
	Round      string         `json:"round,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	PrevHash   string         `json:"prev_hash"`
	RecordHash string         `json:"record_hash"`
}

// FileAppender appends records to a JSONL file.
type FileAppender struct {
	path  string
	clock clock.PassiveClock
	mu    sync.Mutex
}

// NewFileAppender creates a new FileAppender.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path, clock: clock.RealClock{}}
}

// WithClock replaces the timestamp source.
func (a *FileAppender) WithClock(c clock.PassiveClock) *FileAppender {
	a.clock = c
	return a
}

// Path returns the trail location.
func (a *FileAppender) Path() string {
	return a.path
}

// Append chains rec onto the trail. Timestamp and hashes are filled in.
func (a *FileAppender) Append(rec Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return fmt.Errorf("lock audit log: %w", err)
	}
	defer unlockFile(file)

	prev, err := lastHash(file)
	if err != nil {
		return err
	}

	rec.Timestamp = a.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	rec.PrevHash = prev
	rec.RecordHash = ""
	if rec.RecordHash, err = hashRecord(rec); err != nil {
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	if _, err := file.Seek(0, 2); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return file.Sync()
}

func lastHash(file *os.File) (string, error) {
	if _, err := file.Seek(0, 0); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}
	var last string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		last = rec.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan audit log: %w", err)
	}
	return last, nil
}

// Verify walks the trail and returns the number of intact records. A missing
// file is an empty trail.
func (a *FileAppender) Verify() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var (
		prev string
		n    int
	)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return n, fmt.Errorf("%w: line %d unreadable", ErrChainBroken, n+1)
		}
		if rec.PrevHash != prev {
			return n, fmt.Errorf("%w: line %d does not follow line %d", ErrChainBroken, n+1, n)
		}
		want, err := hashRecord(rec)
		if err != nil {
			return n, err
		}
		if rec.RecordHash != want {
			return n, fmt.Errorf("%w: line %d was modified", ErrChainBroken, n+1)
		}
		prev = rec.RecordHash
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("scan audit log: %w", err)
	}
	return n, nil
}

// hashRecord hashes rec without its own hash. Round-tripping through a
// generic map gives sorted keys, so details hash the same however they
// were built.
func hashRecord(rec Record) (string, error) {
	rec.RecordHash = ""
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal audit record: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("canonicalize audit record: %w", err)
	}
	delete(generic, "record_hash")
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("canonicalize audit record: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
