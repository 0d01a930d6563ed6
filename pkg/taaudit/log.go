package taaudit

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"github.com/trusted-autonomy/ta/pkg/tahash"
)

// Log is an append-only, hash-chained JSONL audit log. Exactly one writer
// per path is supported; Log serializes its own Append calls with a mutex,
// but two *Log instances opened on the same path are not coordinated.
type Log struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	lastHash *string
	logger   *slog.Logger
}

// Open opens path for append, creating it if absent, and recovers the hash
// of the last non-empty line to seed the chain.
func Open(path string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &OpenFailed{Path: path, Err: err}
	}

	seed, err := readLastHash(path)
	if err != nil {
		f.Close()
		return nil, &OpenFailed{Path: path, Err: err}
	}

	return &Log{
		path:     path,
		file:     f,
		lastHash: seed,
		logger:   logger.With("component", "audit_log", "path", path),
	}, nil
}

// Close releases the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Append sets event.PreviousHash to the current chain seed, serializes the
// event as one JSON line, hashes the exact bytes written, flushes, and
// advances the seed.
func (l *Log) Append(event Event) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	event.PreviousHash = l.lastHash

	line, err := json.Marshal(event)
	if err != nil {
		return Event{}, &SerializationError{Err: err}
	}
	line = append(line, '\n')

	if _, err := l.file.Write(line); err != nil {
		return Event{}, &WriteFailed{Err: err}
	}
	if err := l.file.Sync(); err != nil {
		return Event{}, &WriteFailed{Err: err}
	}

	newHash := tahash.Bytes(line[:len(line)-1]) // hash the raw line, no trailing newline
	l.lastHash = &newHash

	l.logger.Debug("audit event appended", "event_id", event.EventID, "action", event.Action)

	return event, nil
}

// ReadAll returns every event in the log in append order. A serialization
// failure on any line aborts the read: a structurally broken log cannot be
// trusted past the break.
func ReadAll(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &OpenFailed{Path: path, Err: err}
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, &SerializationError{Line: lineNo, Err: err}
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, &OpenFailed{Path: path, Err: err}
	}
	return events, nil
}

// VerifyChain rehashes each line of the log and checks that the next
// record's PreviousHash equals the hash of the current raw line. It reports
// the first break it finds, if any.
func VerifyChain(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &OpenFailed{Path: path, Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var prevHash *string
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return &SerializationError{Line: lineNo, Err: err}
		}

		expected := ""
		if ev.PreviousHash != nil {
			expected = *ev.PreviousHash
		}
		actual := ""
		if prevHash != nil {
			actual = *prevHash
		}
		if expected != actual {
			return &IntegrityViolation{Line: lineNo, Expected: actual, Actual: expected}
		}

		hash := tahash.Bytes(raw)
		prevHash = &hash
	}
	if err := scanner.Err(); err != nil {
		return &OpenFailed{Path: path, Err: err}
	}
	return nil
}

// readLastHash scans path and returns the SHA-256 of the last non-empty
// line's raw bytes, or nil if the log is empty or absent.
func readLastHash(path string) (*string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var last *string
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		h := tahash.Bytes(raw)
		last = &h
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return last, nil
}
