package offline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spec-kit/scan-service/internal/domain"
)

// Entry is one buffered scan: the original inputs plus the provisional
// outcome shown to the operator. Serialized one JSON object per line.
type Entry struct {
	CredentialID       string             `json:"credential_id"`
	TargetID           string             `json:"target_id"`
	ScanType           domain.ScanType    `json:"scan_type"`
	DeviceID           string             `json:"device_id"`
	LocalSequence      int64              `json:"local_sequence"`
	CapturedAt         time.Time          `json:"captured_at"`
	ProvisionalOutcome domain.ScanOutcome `json:"provisional_outcome"`
	ProvisionalReason  *string            `json:"provisional_reason,omitempty"`
}

// Input returns the scan input to replay at reconciliation.
func (e Entry) Input() domain.ScanInput {
	return domain.ScanInput{
		CredentialID:  e.CredentialID,
		TargetID:      e.TargetID,
		ScanType:      e.ScanType,
		DeviceID:      e.DeviceID,
		LocalSequence: e.LocalSequence,
		CapturedAt:    e.CapturedAt,
	}
}

// Buffer is the durable on-device queue. Capture order is preserved (local
// sequence is strictly increasing) and entries are never reordered or
// deduplicated locally; they are cleared only after the server confirms them.
type Buffer struct {
	mu       sync.Mutex
	deviceID string
	path     string
	file     *os.File
	entries  []Entry
	nextSeq  int64
	snapshot *Snapshot

	now func() time.Time
}

// Open loads any previously buffered entries from path and prepares the
// buffer for appends. The snapshot is the state cached at last sync.
func Open(path, deviceID string, snapshot *Snapshot) (*Buffer, error) {
	if snapshot == nil {
		snapshot = NewSnapshot()
	}
	b := &Buffer{
		deviceID: deviceID,
		path:     path,
		snapshot: snapshot,
		nextSeq:  1,
		now:      time.Now,
	}
	if err := b.load(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	b.file = file
	return b, nil
}

func (b *Buffer) load() error {
	file, err := os.Open(b.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("corrupt buffer line: %w", err)
		}
		b.entries = append(b.entries, entry)
		if entry.LocalSequence >= b.nextSeq {
			b.nextSeq = entry.LocalSequence + 1
		}
	}
	return scanner.Err()
}

// Capture buffers a scan taken while disconnected and returns it with its
// provisional outcome. The entry is durably appended before returning.
func (b *Buffer) Capture(credentialID, targetID string, scanType domain.ScanType, capturedAt time.Time) (Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if capturedAt.IsZero() {
		capturedAt = b.now()
	}

	decision := b.snapshot.evaluate(credentialID, targetID, scanType, capturedAt)

	entry := Entry{
		CredentialID:  credentialID,
		TargetID:      targetID,
		ScanType:      scanType,
		DeviceID:      b.deviceID,
		LocalSequence: b.nextSeq,
		CapturedAt:    capturedAt,
	}
	if decision.Granted {
		entry.ProvisionalOutcome = domain.OutcomeGranted
	} else {
		entry.ProvisionalOutcome = domain.OutcomeDenied
		reason := decision.Reason
		entry.ProvisionalReason = &reason
	}

	if err := b.append(entry); err != nil {
		return Entry{}, err
	}
	b.entries = append(b.entries, entry)
	b.nextSeq++
	return entry, nil
}

func (b *Buffer) append(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := b.file.Write(append(line, '\n')); err != nil {
		return err
	}
	return b.file.Sync()
}

// Pending returns a copy of the buffered entries in capture order.
func (b *Buffer) Pending() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Ack removes entries whose local sequences the server confirmed, rewriting
// the backing file. Unconfirmed entries stay queued for the next sync.
func (b *Buffer) Ack(sequences []int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	acked := make(map[int64]bool, len(sequences))
	for _, seq := range sequences {
		acked[seq] = true
	}

	remaining := b.entries[:0]
	for _, entry := range b.entries {
		if !acked[entry.LocalSequence] {
			remaining = append(remaining, entry)
		}
	}
	b.entries = remaining
	return b.rewrite()
}

func (b *Buffer) rewrite() error {
	tmp := b.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	for _, entry := range b.entries {
		line, err := json.Marshal(entry)
		if err != nil {
			file.Close()
			return err
		}
		if _, err := file.Write(append(line, '\n')); err != nil {
			file.Close()
			return err
		}
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return err
	}

	if b.file != nil {
		_ = b.file.Close()
	}
	b.file, err = os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	return err
}

// RefreshSnapshot replaces the cached state after a successful sync.
func (b *Buffer) RefreshSnapshot(snapshot *Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if snapshot != nil {
		b.snapshot = snapshot
	}
}

// Close releases the backing file.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}
