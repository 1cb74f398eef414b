// Package store implements the append-only per-context message log
// plus the whole-file metadata and summary records. Whole-file writes
// use write(tmp)+rename(final) atomicity; appends are guarded by
// per-context advisory file locks so concurrent writers cannot
// interleave.
package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"ctxmemoryd/internal/ctxerr"
	"ctxmemoryd/internal/logging"
	"ctxmemoryd/internal/model"
)

const lockAcquireTimeout = 5 * time.Second

// MessageStore persists messages, metadata, and summaries as three
// files per context under a single base directory.
type MessageStore struct {
	baseDir string
}

// New returns a MessageStore rooted at baseDir. The directory must
// already exist; config.Load creates it.
func New(baseDir string) *MessageStore {
	return &MessageStore{baseDir: baseDir}
}

func (s *MessageStore) messagesPath(contextID string) string {
	return filepath.Join(s.baseDir, sanitizeID(contextID)+".messages.jsonl")
}

func (s *MessageStore) metadataPath(contextID string) string {
	return filepath.Join(s.baseDir, sanitizeID(contextID)+".metadata.json")
}

func (s *MessageStore) summaryPath(contextID string) string {
	return filepath.Join(s.baseDir, sanitizeID(contextID)+".summary.json")
}

func (s *MessageStore) lockPath(contextID string) string {
	return filepath.Join(s.baseDir, sanitizeID(contextID)+".lock")
}

// Append writes msg as one JSON-Lines record, flushed before return.
// Concurrent appenders to the same context serialize behind an
// advisory file lock so multiple process instances pointed at the
// same base directory cannot interleave writes.
func (s *MessageStore) Append(ctx context.Context, msg model.Message) error {
	lock := flock.New(s.lockPath(msg.ContextID))
	lctx, cancel := context.WithTimeout(ctx, lockAcquireTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(lctx, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("%w: acquire message lock: %v", ctxerr.IoError, err)
	}
	if !locked {
		return fmt.Errorf("%w: timed out acquiring message lock for %q", ctxerr.Timeout, msg.ContextID)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logging.Log.WithError(err).Warn("failed to release message lock")
		}
	}()

	f, err := os.OpenFile(s.messagesPath(msg.ContextID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open message log: %v", ctxerr.IoError, err)
	}
	defer f.Close()

	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("%w: write message: %v", ctxerr.IoError, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: sync message log: %v", ctxerr.IoError, err)
	}
	return nil
}

// LoadMessages reads all well-formed records from a context's
// message log in order. A final line that is not valid JSON (a
// partial write from a crash mid-append) is discarded with a warning;
// earlier malformed lines are impossible by construction since every
// completed write ends in a newline.
func (s *MessageStore) LoadMessages(contextID string) ([]model.Message, error) {
	f, err := os.Open(s.messagesPath(contextID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open message log: %v", ctxerr.IoError, err)
	}
	defer f.Close()

	var out []model.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg model.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			logging.Log.WithField("contextId", contextID).Warn("discarding unparseable trailing message line")
			continue
		}
		out = append(out, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan message log: %v", ctxerr.IoError, err)
	}
	return out, nil
}

// LoadMetadata returns nil, nil when no metadata file exists yet.
func (s *MessageStore) LoadMetadata(contextID string) (*model.Metadata, error) {
	data, err := os.ReadFile(s.metadataPath(contextID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read metadata: %v", ctxerr.IoError, err)
	}
	var meta model.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: parse metadata: %v", ctxerr.IndexCorrupt, err)
	}
	return &meta, nil
}

// SaveMetadata writes meta with write-temp-then-rename atomicity.
func (s *MessageStore) SaveMetadata(meta model.Metadata) error {
	return atomicWriteJSON(s.metadataPath(meta.ContextID), meta)
}

// LoadSummary returns nil, nil when no summary exists yet.
func (s *MessageStore) LoadSummary(contextID string) (*model.Summary, error) {
	data, err := os.ReadFile(s.summaryPath(contextID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read summary: %v", ctxerr.IoError, err)
	}
	var sum model.Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, fmt.Errorf("%w: parse summary: %v", ctxerr.IndexCorrupt, err)
	}
	return &sum, nil
}

// SaveSummary writes sum with write-temp-then-rename atomicity.
func (s *MessageStore) SaveSummary(sum model.Summary) error {
	return atomicWriteJSON(s.summaryPath(sum.ContextID), sum)
}

// Delete removes all three files for a context. Metadata is removed
// last so a crash mid-delete leaves metadata pointing at a context
// whose messages are already gone rather than the reverse, which
// LoadMessages already tolerates by returning an empty slice.
func (s *MessageStore) Delete(contextID string) (bool, error) {
	existed := false
	for _, p := range []string{s.messagesPath(contextID), s.summaryPath(contextID)} {
		if err := os.Remove(p); err == nil {
			existed = true
		} else if !os.IsNotExist(err) {
			return existed, fmt.Errorf("%w: delete %s: %v", ctxerr.IoError, p, err)
		}
	}
	if err := os.Remove(s.metadataPath(contextID)); err == nil {
		existed = true
	} else if !os.IsNotExist(err) {
		return existed, fmt.Errorf("%w: delete metadata: %v", ctxerr.IoError, err)
	}
	_ = os.Remove(s.lockPath(contextID))
	return existed, nil
}

func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write temp file: %v", ctxerr.IoError, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: rename temp file: %v", ctxerr.IoError, err)
	}
	return nil
}
