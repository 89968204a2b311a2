package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"fyBorrow/internal/borrow"
)

// Entry is one recorded flow transition.
type Entry struct {
	Time       time.Time `json:"time"`
	Submission uint64    `json:"submission"`
	Step       string    `json:"step"`
	TxRef      string    `json:"tx_ref,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Journal appends flow transitions to a JSONL file.
type Journal struct {
	path   string
	logger *zap.Logger
	now    func() time.Time
	mu     sync.Mutex
}

func New(path string, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{path: path, logger: logger, now: time.Now}
}

// ObserveTransition records state. Write failures are logged, never returned,
// so a broken journal cannot fail a borrow.
func (j *Journal) ObserveTransition(submission uint64, state borrow.FlowState) {
	entry := Entry{
		Time:       j.now().UTC(),
		Submission: submission,
		Step:       string(state.Step),
		TxRef:      state.LastTxRef,
		Error:      state.LastError,
	}
	if err := j.Append(entry); err != nil {
		j.logger.Warn("journal write failed", zap.String("path", j.path), zap.Error(err))
	}
}

// Append writes entries as JSON lines.
func (j *Journal) Append(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal journal entry: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write journal entry: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}

// ReadAll loads every entry. A missing journal is empty.
func ReadAll(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}
